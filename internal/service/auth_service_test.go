package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/notarydesk/authcore/internal/domain"
	"github.com/notarydesk/authcore/internal/featureflags"
	"github.com/notarydesk/authcore/internal/repository"
	"github.com/notarydesk/authcore/internal/security"
	"github.com/notarydesk/authcore/internal/security/audit"
)

var registrationOn = map[string]string{"FLAG_REGISTRATION": "true"}

func TestLogin(t *testing.T) {
	f := newFixture(t, nil)
	partner := int64(77)
	u := f.seed(t, "opAdmin", "adminq", domain.RoleAdmin, true)
	u.PartnerID = &partner
	if _, err := f.store.Update(context.Background(), u); err != nil {
		t.Fatalf("update: %v", err)
	}

	lr, err := f.svc.Login(context.Background(), "opAdmin", "adminq")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if lr.TokenType != "Bearer" || lr.ExpiresIn != 3600 || lr.User.ID != u.ID {
		t.Fatalf("unexpected login result: %+v", lr)
	}

	claims, err := f.tokens.Verify(lr.Token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.UserID != u.ID || claims.Username != "opAdmin" || claims.Role != domain.RoleAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.PartnerID == nil || *claims.PartnerID != 77 {
		t.Fatalf("expected partnerId claim 77, got %v", claims.PartnerID)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "alice", "Password123", domain.RoleUser, true)
	f.seed(t, "suspended", "Password123", domain.RoleUser, false)

	cases := map[string][2]string{
		"wrong password": {"alice", "Password124"},
		"unknown user":   {"nobody", "Password123"},
		"case differs":   {"Alice", "Password123"},
		"inactive":       {"suspended", "Password123"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Login(context.Background(), c[0], c[1])
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}

	if _, err := f.svc.Login(context.Background(), "", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty input, got %v", err)
	}
}

func TestLoginHonoursCancelledContext(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "alice", "Password123", domain.RoleUser, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.svc.Login(ctx, "alice", "Password123"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRegister(t *testing.T) {
	f := newFixture(t, registrationOn)

	r, err := f.svc.Register(context.Background(), RegisterInput{Username: "alice", Password: "Password123", Email: " alice@example.com "})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if r.Token == "" || r.User.Role != domain.RoleUser || r.User.Email != "alice@example.com" {
		t.Fatalf("unexpected register result: %+v", r.User)
	}

	if _, err := f.svc.Register(context.Background(), RegisterInput{Username: "alice", Password: "Password123"}); !errors.Is(err, domain.ErrDuplicateUsername) {
		t.Fatalf("expected duplicate username error, got %v", err)
	}

	if _, err := f.svc.Login(context.Background(), "alice", "Password123"); err != nil {
		t.Fatalf("login after register failed: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t, registrationOn)
	partner := f.seed(t, "channel", "Password123", domain.RolePartner, true)
	seller := f.seed(t, "shop", "Password123", domain.RoleSeller, true)
	missing := int64(999)

	cases := map[string]RegisterInput{
		"empty username":   {Password: "Password123"},
		"spaces":           {Username: "a b", Password: "Password123"},
		"short password":   {Username: "bob", Password: "short"},
		"admin role":       {Username: "bob", Password: "Password123", Role: domain.RoleAdmin},
		"superadmin role":  {Username: "bob", Password: "Password123", Role: domain.RoleSuperAdmin},
		"unknown role":     {Username: "bob", Password: "Password123", Role: "root"},
		"missing partner":  {Username: "bob", Password: "Password123", PartnerID: &missing},
		"non-partner link": {Username: "bob", Password: "Password123", PartnerID: &seller.ID},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := f.svc.Register(context.Background(), in); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}

	r, err := f.svc.Register(context.Background(), RegisterInput{Username: "client", Password: "Password123", PartnerID: &partner.ID})
	if err != nil {
		t.Fatalf("partner-linked register failed: %v", err)
	}
	if r.User.PartnerID == nil || *r.User.PartnerID != partner.ID {
		t.Fatalf("expected partner link, got %+v", r.User)
	}
}

func TestRegisterDisabledByDefault(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Register(context.Background(), RegisterInput{Username: "alice", Password: "Password123"})
	if !errors.Is(err, ErrRegistrationDisabled) {
		t.Fatalf("expected ErrRegistrationDisabled, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t, nil)
	u := f.seed(t, "bob", "OldPass123", domain.RoleUser, true)
	ctx := context.Background()

	if err := f.svc.ChangePassword(ctx, u.ID, "bad", "NewPass123"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}
	if err := f.svc.ChangePassword(ctx, u.ID, "OldPass123", "short"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if err := f.svc.ChangePassword(ctx, 404, "OldPass123", "NewPass123"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := f.svc.ChangePassword(ctx, u.ID, "OldPass123", "NewPass123"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}
	if _, err := f.svc.Login(ctx, "bob", "OldPass123"); err == nil {
		t.Fatalf("expected old password to fail after change")
	}
	if _, err := f.svc.Login(ctx, "bob", "NewPass123"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t, nil)
	u := f.seed(t, "shop", "Password123", domain.RoleUser, true)
	ctx := context.Background()

	admin := security.Principal{UserID: 100, Role: domain.RoleAdmin}
	email := "shop@example.com"
	name := "Shop Ltd"
	role := domain.RoleSeller
	updated, err := f.svc.UpdateProfile(ctx, admin, u.ID, ProfileUpdate{Email: &email, BusinessName: &name, Role: &role})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Email != email || updated.BusinessName != name || updated.Role != domain.RoleSeller || updated.Username != "shop" {
		t.Fatalf("unexpected update: %+v", updated)
	}

	bad := domain.Role("root")
	if _, err := f.svc.UpdateProfile(ctx, admin, u.ID, ProfileUpdate{Role: &bad}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := f.svc.UpdateProfile(ctx, admin, 999, ProfileUpdate{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateProfileRoleChanges(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	admin := f.seed(t, "ops", "Password123", domain.RoleAdmin, true)
	root := f.seed(t, "root", "Password123", domain.RoleSuperAdmin, true)
	plain := f.seed(t, "carol", "Password123", domain.RoleUser, true)

	asAdmin := security.Principal{UserID: admin.ID, Role: domain.RoleAdmin}
	asRoot := security.Principal{UserID: root.ID, Role: domain.RoleSuperAdmin}
	roleOf := func(r domain.Role) *domain.Role { return &r }

	cases := []struct {
		name   string
		actor  security.Principal
		target int64
		role   domain.Role
		denied bool
	}{
		{"admin promotes self", asAdmin, admin.ID, domain.RoleSuperAdmin, true},
		{"admin grants admin", asAdmin, plain.ID, domain.RoleAdmin, true},
		{"admin demotes superadmin", asAdmin, root.ID, domain.RoleUser, true},
		{"superadmin demotes self", asRoot, root.ID, domain.RoleAdmin, true},
		{"admin grants seller", asAdmin, plain.ID, domain.RoleSeller, false},
		{"superadmin grants admin", asRoot, plain.ID, domain.RoleAdmin, false},
	}
	for _, tc := range cases {
		_, err := f.svc.UpdateProfile(ctx, tc.actor, tc.target, ProfileUpdate{Role: roleOf(tc.role)})
		if tc.denied && !errors.Is(err, security.ErrAccessDenied) {
			t.Fatalf("%s: expected ErrAccessDenied, got %v", tc.name, err)
		}
		if !tc.denied && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
	}

	got, _ := f.store.FindByID(ctx, admin.ID)
	if got.Role != domain.RoleAdmin {
		t.Fatalf("admin role changed to %q", got.Role)
	}
	got, _ = f.store.FindByID(ctx, root.ID)
	if got.Role != domain.RoleSuperAdmin {
		t.Fatalf("superadmin role changed to %q", got.Role)
	}

	// Restating one's own role alongside a profile edit is not a change.
	email := "ops@example.com"
	if _, err := f.svc.UpdateProfile(ctx, asAdmin, admin.ID, ProfileUpdate{Email: &email, Role: roleOf(domain.RoleAdmin)}); err != nil {
		t.Fatalf("self profile edit failed: %v", err)
	}
}

func TestUpdateProfileKeepsDigestAndActive(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	u := f.seed(t, "dave", "Password123", domain.RoleUser, true)
	if err := f.svc.Deactivate(ctx, 1, u.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	stale := u.Clone()
	stale.Email = "dave@example.com"
	stale.PasswordDigest = "00.00"
	stale.Active = true
	if _, err := f.store.Update(ctx, stale); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := f.store.FindByID(ctx, u.ID)
	if got.Active || got.PasswordDigest != u.PasswordDigest || got.Email != "dave@example.com" {
		t.Fatalf("profile update touched non-profile fields: %+v", got)
	}
}

// deactivatingStore suspends the account right after it is read, as a
// concurrent admin request would.
type deactivatingStore struct {
	*repository.MemoryUserRepository
}

func (d deactivatingStore) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	u, err := d.MemoryUserRepository.FindByID(ctx, id)
	if err != nil || u == nil {
		return u, err
	}
	if err := d.MemoryUserRepository.Deactivate(ctx, id); err != nil {
		return nil, err
	}
	return u, nil
}

func TestChangePasswordDoesNotUndoDeactivation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	u := f.seed(t, "alice", "OldPass123", domain.RoleUser, true)
	svc := NewAuthService(deactivatingStore{f.store}, f.pool, f.tokens, time.Hour, featureflags.FromMap(nil), audit.NewLogger(nil), nil)

	if err := svc.ChangePassword(ctx, u.ID, "OldPass123", "NewPass123"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}

	got, _ := f.store.FindByID(ctx, u.ID)
	if got.Active {
		t.Fatalf("suspended account was reactivated by a password change")
	}
	if ok, _ := f.pool.Verify(ctx, "NewPass123", got.PasswordDigest); !ok {
		t.Fatalf("new digest was not stored")
	}
}

func TestChangePasswordRejectsSuspended(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	u := f.seed(t, "erin", "OldPass123", domain.RoleUser, false)

	if err := f.svc.ChangePassword(ctx, u.ID, "OldPass123", "NewPass123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	got, _ := f.store.FindByID(ctx, u.ID)
	if got.PasswordDigest != u.PasswordDigest {
		t.Fatalf("digest changed on a suspended account")
	}
}

func TestDeactivate(t *testing.T) {
	f := newFixture(t, nil)
	u := f.seed(t, "alice", "Password123", domain.RoleUser, true)
	ctx := context.Background()

	if err := f.svc.Deactivate(ctx, 1, u.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if _, err := f.svc.Login(ctx, "alice", "Password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected suspended account to be refused, got %v", err)
	}
	if err := f.svc.Deactivate(ctx, 1, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeactivateWithoutCapability(t *testing.T) {
	f := newFixture(t, nil)
	svc := NewAuthService(storeWithoutDeactivate{f.store}, f.pool, f.tokens, time.Hour, featureflags.FromMap(nil), audit.NewLogger(nil), nil)

	if err := svc.Deactivate(context.Background(), 1, 1); !errors.Is(err, domain.ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
}

func TestMeAndListByRole(t *testing.T) {
	f := newFixture(t, nil)
	u := f.seed(t, "alice", "Password123", domain.RoleSeller, true)
	f.seed(t, "bob", "Password123", domain.RoleUser, true)
	ctx := context.Background()

	me, err := f.svc.Me(ctx, u.ID)
	if err != nil || me.Username != "alice" {
		t.Fatalf("Me: %v %+v", err, me)
	}
	if _, err := f.svc.Me(ctx, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	sellers, err := f.svc.ListByRole(ctx, domain.RoleSeller)
	if err != nil || len(sellers) != 1 || sellers[0].ID != u.ID {
		t.Fatalf("ListByRole: %v %v", err, sellers)
	}
	if _, err := f.svc.ListByRole(ctx, "root"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
