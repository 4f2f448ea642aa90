package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/notarydesk/authcore/internal/domain"
)

func newRepoWithMock(t *testing.T) (*PostgresUserRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresUserRepository(db, nil), mock, db
}

var columns = []string{"id", "username", "password_digest", "email", "role", "platform", "business_name", "partner_id", "is_active", "created_at", "updated_at"}

func TestPostgresCreate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	partner := int64(3)
	mock.ExpectQuery(`(?s)^\s*INSERT\s+INTO\s+users`).
		WithArgs("alice", "aa.bb", "a@example.com", "user", "", "", int64(3), true).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(10), "alice", "aa.bb", "a@example.com", "user", "", "", int64(3), true, now, now))

	got, err := repo.Create(context.Background(), &domain.User{
		Username: "alice", PasswordDigest: "aa.bb", Email: "a@example.com",
		Role: domain.RoleUser, PartnerID: &partner, Active: true,
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != 10 || got.PartnerID == nil || *got.PartnerID != 3 || got.Role != domain.RoleUser {
		t.Fatalf("unexpected user: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresCreateDuplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).WillReturnError(&pq.Error{Code: "23505"})

	_, err := repo.Create(context.Background(), &domain.User{Username: "alice", Role: domain.RoleUser})
	if !errors.Is(err, domain.ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestPostgresCreateDBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &domain.User{Username: "alice", Role: domain.RoleUser})
	if err == nil || errors.Is(err, domain.ErrDuplicateUsername) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestPostgresFindByUsernameAbsent(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM users WHERE username = \$1`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	u, err := repo.FindByUsername(context.Background(), "ghost")
	if err != nil || u != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", u, err)
	}
}

func TestPostgresFindByIDNullPartner(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(4), "opAdmin", "aa.bb", "", "admin", "", "", nil, true, now, now))

	u, err := repo.FindByID(context.Background(), 4)
	if err != nil {
		t.Fatalf("FindByID error: %v", err)
	}
	if u.PartnerID != nil || u.Role != domain.RoleAdmin {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestPostgresUpdateNotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)UPDATE\s+users\s+SET\s+email`).WillReturnError(sql.ErrNoRows)

	_, err := repo.Update(context.Background(), &domain.User{ID: 9, Role: domain.RoleUser})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresUpdateSkipsDigestAndActive(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)UPDATE\s+users\s+SET\s+email = \$1, role = \$2, platform = \$3,\s+business_name = \$4, partner_id = \$5, updated_at = NOW\(\)\s+WHERE id = \$6`).
		WithArgs("a@example.com", "seller", "", "Shop", nil, int64(9)).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(9), "alice", "aa.bb", "a@example.com", "seller", "", "Shop", nil, false, now, now))

	u, err := repo.Update(context.Background(), &domain.User{
		ID: 9, Email: "a@example.com", Role: domain.RoleSeller, BusinessName: "Shop",
		PasswordDigest: "ignored", Active: true,
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if u.Active || u.PasswordDigest != "aa.bb" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSetPasswordDigest(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)UPDATE\s+users\s+SET\s+password_digest = \$1, updated_at = NOW\(\)\s+WHERE id = \$2`).
		WithArgs("cc.dd", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)UPDATE\s+users\s+SET\s+password_digest`).
		WithArgs("cc.dd", int64(6)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SetPasswordDigest(context.Background(), 5, "cc.dd"); err != nil {
		t.Fatalf("SetPasswordDigest error: %v", err)
	}
	if err := repo.SetPasswordDigest(context.Background(), 6, "cc.dd"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresDeactivate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)UPDATE\s+users\s+SET\s+is_active = false`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)UPDATE\s+users\s+SET\s+is_active = false`).
		WithArgs(int64(6)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Deactivate(context.Background(), 5); err != nil {
		t.Fatalf("Deactivate error: %v", err)
	}
	if err := repo.Deactivate(context.Background(), 6); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresListByRole(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .* FROM users WHERE role = \$1 ORDER BY id`).
		WithArgs("seller").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(1), "s1", "aa.bb", "", "seller", "", "Shop", nil, true, now, now).
			AddRow(int64(2), "s2", "aa.bb", "", "seller", "web", "", int64(7), false, now, now))

	users, err := repo.ListByRole(context.Background(), domain.RoleSeller)
	if err != nil {
		t.Fatalf("ListByRole error: %v", err)
	}
	if len(users) != 2 || users[0].BusinessName != "Shop" || users[1].Active || *users[1].PartnerID != 7 {
		t.Fatalf("unexpected users: %+v %+v", users[0], users[1])
	}
}
