package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/notarydesk/authcore/internal/domain"
)

var (
	_ domain.UserStore       = (*PostgresUserRepository)(nil)
	_ domain.UserDeactivator = (*PostgresUserRepository)(nil)
)

const uniqueViolation = "23505"

const userColumns = `id, username, password_digest, email, role, platform, business_name, partner_id, is_active, created_at, updated_at`

// PostgresUserRepository implements domain.UserStore using PostgreSQL
type PostgresUserRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresUserRepository creates a new user repository
func NewPostgresUserRepository(db *sql.DB, logger *slog.Logger) *PostgresUserRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresUserRepository{
		db:     db,
		logger: logger,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u       domain.User
		role    string
		partner sql.NullInt64
	)
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordDigest,
		&u.Email,
		&role,
		&u.Platform,
		&u.BusinessName,
		&partner,
		&u.Active,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	if partner.Valid {
		id := partner.Int64
		u.PartnerID = &id
	}
	return &u, nil
}

func nullPartner(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// Create inserts user and returns the stored record with its new id.
func (r *PostgresUserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	if !user.Role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	query := `
		INSERT INTO users (username, password_digest, email, role, platform, business_name, partner_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + userColumns

	created, err := scanUser(r.db.QueryRowContext(ctx, query,
		user.Username,
		user.PasswordDigest,
		user.Email,
		string(user.Role),
		user.Platform,
		user.BusinessName,
		nullPartner(user.PartnerID),
		user.Active,
	))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, domain.ErrDuplicateUsername
		}
		r.logger.Error("failed to create user",
			slog.String("username", user.Username),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return created, nil
}

// FindByID retrieves a user by ID
func (r *PostgresUserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("failed to get user by id",
			slog.Int64("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// FindByUsername retrieves a user by username, active or not.
func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}

	return user, nil
}

// Update writes the profile columns of an existing user. username,
// password_digest, is_active and created_at are never written here.
func (r *PostgresUserRepository) Update(ctx context.Context, user *domain.User) (*domain.User, error) {
	if !user.Role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	query := `
		UPDATE users
		SET email = $1, role = $2, platform = $3,
		    business_name = $4, partner_id = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING ` + userColumns

	updated, err := scanUser(r.db.QueryRowContext(ctx, query,
		user.Email,
		string(user.Role),
		user.Platform,
		user.BusinessName,
		nullPartner(user.PartnerID),
		user.ID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return updated, nil
}

// SetPasswordDigest replaces only the stored password digest.
func (r *PostgresUserRepository) SetPasswordDigest(ctx context.Context, id int64, digest string) error {
	query := `
		UPDATE users
		SET password_digest = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.ExecContext(ctx, query, digest, id)
	if err != nil {
		return fmt.Errorf("failed to set password digest: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// Deactivate suspends a user (sets is_active to false)
func (r *PostgresUserRepository) Deactivate(ctx context.Context, id int64) error {
	query := `
		UPDATE users
		SET is_active = false, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// ListByRole lists all users holding role, oldest first.
func (r *PostgresUserRepository) ListByRole(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, string(role))
	if err != nil {
		r.logger.Error("failed to list users by role",
			slog.String("role", string(role)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			r.logger.Error("failed to scan user row",
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}
