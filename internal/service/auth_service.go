package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/notarydesk/authcore/internal/domain"
	"github.com/notarydesk/authcore/internal/featureflags"
	"github.com/notarydesk/authcore/internal/observability/metrics"
	"github.com/notarydesk/authcore/internal/observability/tracing"
	"github.com/notarydesk/authcore/internal/security"
	"github.com/notarydesk/authcore/internal/security/audit"
	"github.com/notarydesk/authcore/internal/security/auth"
	"github.com/notarydesk/authcore/internal/security/password"
)

// MinPasswordLength applies to registration and password changes.
const MinPasswordLength = 8

const maxUsernameLength = 64

// selfServiceRoles are the roles a caller may pick when registering.
var selfServiceRoles = map[domain.Role]bool{
	domain.RoleUser:    true,
	domain.RolePartner: true,
	domain.RoleSeller:  true,
}

// AuthService handles authentication operations
type AuthService struct {
	store    domain.UserStore
	hashes   *password.Pool
	tokens   *auth.TokenManager
	tokenTTL time.Duration
	flags    *featureflags.Set
	audit    *audit.Logger
	logger   *slog.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	store domain.UserStore,
	hashes *password.Pool,
	tokens *auth.TokenManager,
	tokenTTL time.Duration,
	flags *featureflags.Set,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	if tokenTTL <= 0 {
		tokenTTL = auth.DefaultTTL
	}

	return &AuthService{
		store:    store,
		hashes:   hashes,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		flags:    flags,
		audit:    auditLog,
		logger:   logger,
	}
}

// LoginResult represents login response
type LoginResult struct {
	Token     string       `json:"token"`
	TokenType string       `json:"tokenType"`
	ExpiresIn int          `json:"expiresIn"` // seconds
	User      *domain.User `json:"user"`
}

// RegisterInput is a self-registration request.
type RegisterInput struct {
	Username     string      `json:"username"`
	Password     string      `json:"password"`
	Email        string      `json:"email"`
	Role         domain.Role `json:"role"`
	Platform     string      `json:"platform"`
	BusinessName string      `json:"businessName"`
	PartnerID    *int64      `json:"partnerId"`
}

// ProfileUpdate lists the fields an update may change. Nil fields are left
// alone.
type ProfileUpdate struct {
	Email        *string      `json:"email"`
	BusinessName *string      `json:"businessName"`
	Platform     *string      `json:"platform"`
	Role         *domain.Role `json:"role"`
}

// Login authenticates a user and returns a session token. Unknown users,
// wrong passwords and suspended accounts are indistinguishable to the
// caller.
func (s *AuthService) Login(ctx context.Context, username, plaintext string) (*LoginResult, error) {
	ctx, span := tracing.Tracer().Start(ctx, "AuthService.Login")
	defer span.End()

	if username == "" || plaintext == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrValidation)
	}

	user, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		metrics.ObserveLogin("error")
		span.SetStatus(codes.Error, "lookup failed")
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if user == nil {
		// Unknown usernames still cost one derivation.
		if _, err := s.hashes.Verify(ctx, plaintext, ""); err != nil {
			return nil, err
		}
		s.loginFailed(ctx, 0, username, "unknown_user")
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hashes.Verify(ctx, plaintext, user.PasswordDigest)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.loginFailed(ctx, user.ID, username, "wrong_password")
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		s.loginFailed(ctx, user.ID, username, "inactive")
		return nil, ErrInvalidCredentials
	}

	token, err := s.issue(user)
	if err != nil {
		metrics.ObserveLogin("error")
		return nil, err
	}

	metrics.ObserveLogin("success")
	s.audit.LogLogin(ctx, user.ID, user.Username, "success")
	span.SetAttributes(attribute.Int64("user.id", user.ID), attribute.String("user.role", string(user.Role)))
	s.logger.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)

	return &LoginResult{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int(s.tokenTTL / time.Second),
		User:      user,
	}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, userID int64, username, reason string) {
	metrics.ObserveLogin("invalid")
	s.audit.LogLogin(ctx, userID, username, "failed")
	s.logger.Info("login failed",
		slog.String("username", username),
		slog.String("reason", reason),
	)
}

// Register creates a new self-service account and logs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*LoginResult, error) {
	ctx, span := tracing.Tracer().Start(ctx, "AuthService.Register")
	defer span.End()

	if !s.flags.Enabled(featureflags.Registration) {
		return nil, ErrRegistrationDisabled
	}

	if err := validateUsername(in.Username); err != nil {
		return nil, err
	}
	if len(in.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}

	role := in.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	if !selfServiceRoles[role] {
		return nil, fmt.Errorf("%w: role %q cannot be self-assigned", ErrValidation, role)
	}

	if in.PartnerID != nil {
		partner, err := s.store.FindByID(ctx, *in.PartnerID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up partner: %w", err)
		}
		if partner == nil || partner.Role != domain.RolePartner || !partner.Active {
			return nil, fmt.Errorf("%w: unknown partner", ErrValidation)
		}
	}

	digest, err := s.hashes.Hash(ctx, in.Password)
	if err != nil {
		return nil, err
	}

	user, err := s.store.Create(ctx, &domain.User{
		Username:       in.Username,
		PasswordDigest: digest,
		Email:          strings.TrimSpace(in.Email),
		Role:           role,
		Platform:       in.Platform,
		BusinessName:   in.BusinessName,
		PartnerID:      in.PartnerID,
		Active:         true,
	})
	if err != nil {
		return nil, err
	}

	token, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	s.audit.LogUserChange(ctx, user.ID, audit.ActionRegister, user.ID, "success")
	s.logger.Info("user registered",
		slog.Int64("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)

	return &LoginResult{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int(s.tokenTTL / time.Second),
		User:      user,
	}, nil
}

// ChangePassword changes a user's password
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return fmt.Errorf("%w: new password must be at least %d characters", ErrValidation, MinPasswordLength)
	}

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return domain.ErrNotFound
	}
	if !user.Active {
		s.audit.LogUserChange(ctx, userID, audit.ActionPasswordChanged, userID, "denied")
		return ErrInvalidCredentials
	}

	ok, err := s.hashes.Verify(ctx, oldPassword, user.PasswordDigest)
	if err != nil {
		return err
	}
	if !ok {
		s.audit.LogUserChange(ctx, userID, audit.ActionPasswordChanged, userID, "denied")
		return ErrWrongPassword
	}

	digest, err := s.hashes.Hash(ctx, newPassword)
	if err != nil {
		return err
	}
	if err := s.store.SetPasswordDigest(ctx, userID, digest); err != nil {
		s.logger.Error("failed to update user password", slog.String("error", err.Error()))
		return fmt.Errorf("failed to change password: %w", err)
	}

	s.audit.LogUserChange(ctx, userID, audit.ActionPasswordChanged, userID, "success")
	s.logger.Info("user changed password", slog.Int64("user_id", userID))
	return nil
}

// UpdateProfile applies upd to the user with id on behalf of actor. Role
// changes to one's own account are refused, and only a superadmin may grant
// or revoke the admin and superadmin roles.
func (s *AuthService) UpdateProfile(ctx context.Context, actor security.Principal, id int64, upd ProfileUpdate) (*domain.User, error) {
	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}

	if upd.Email != nil {
		user.Email = strings.TrimSpace(*upd.Email)
	}
	if upd.BusinessName != nil {
		user.BusinessName = *upd.BusinessName
	}
	if upd.Platform != nil {
		user.Platform = *upd.Platform
	}
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, *upd.Role)
		}
		if *upd.Role != user.Role {
			if err := checkRoleChange(actor, user, *upd.Role); err != nil {
				s.audit.LogDenied(ctx, actor.UserID, "role change "+string(user.Role)+" -> "+string(*upd.Role))
				return nil, err
			}
		}
		user.Role = *upd.Role
	}

	updated, err := s.store.Update(ctx, user)
	if err != nil {
		return nil, err
	}
	s.audit.LogUserChange(ctx, actor.UserID, audit.ActionProfileUpdated, id, "success")
	return updated, nil
}

// Deactivate suspends an account. Backends without the capability yield
// domain.ErrNotImplemented.
func (s *AuthService) Deactivate(ctx context.Context, actor, id int64) error {
	d, ok := s.store.(domain.UserDeactivator)
	if !ok {
		return domain.ErrNotImplemented
	}
	if err := d.Deactivate(ctx, id); err != nil {
		return err
	}
	s.audit.LogUserChange(ctx, actor, audit.ActionDeactivated, id, "success")
	s.logger.Info("user deactivated", slog.Int64("user_id", id), slog.Int64("actor_id", actor))
	return nil
}

// Me returns the user with id.
func (s *AuthService) Me(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

// ListByRole lists the users holding role.
func (s *AuthService) ListByRole(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	return s.store.ListByRole(ctx, role)
}

func (s *AuthService) issue(user *domain.User) (string, error) {
	token, err := s.tokens.Issue(auth.SessionClaims{
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		PartnerID: user.PartnerID,
	}, s.tokenTTL)
	if err != nil {
		s.logger.Error("failed to sign token", slog.String("error", err.Error()))
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return token, nil
}

func validateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrValidation)
	}
	if len(username) > maxUsernameLength {
		return fmt.Errorf("%w: username longer than %d characters", ErrValidation, maxUsernameLength)
	}
	for _, r := range username {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: username contains whitespace", ErrValidation)
		}
	}
	return nil
}

func privileged(r domain.Role) bool {
	return r == domain.RoleAdmin || r == domain.RoleSuperAdmin
}

func checkRoleChange(actor security.Principal, target *domain.User, to domain.Role) error {
	if actor.UserID == target.ID {
		return security.ErrAccessDenied
	}
	if actor.Role != domain.RoleSuperAdmin && (privileged(target.Role) || privileged(to)) {
		return security.ErrAccessDenied
	}
	return nil
}
