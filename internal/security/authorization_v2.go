package security

import (
	"errors"
	"log/slog"

	"github.com/notarydesk/authcore/internal/domain"
)

// ErrAccessDenied is returned when an identity may not touch an account.
var ErrAccessDenied = errors.New("access denied")

// Principal is the verified caller an access decision is made for.
type Principal struct {
	UserID    int64
	Role      domain.Role
	PartnerID *int64
}

// AccessService makes record-level decisions on user accounts, on top of the
// route-level Policy check.
type AccessService struct {
	logger *slog.Logger
}

// NewAccessService creates a new account access checker
func NewAccessService(logger *slog.Logger) *AccessService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessService{logger: logger}
}

// ValidateAccountAccess allows the account owner, admins, and the partner
// that onboarded the account.
func (a *AccessService) ValidateAccountAccess(p Principal, target *domain.User) error {
	if AdminOnly.Allows(p.Role) {
		return nil
	}
	if target == nil {
		return ErrAccessDenied
	}
	if p.UserID == target.ID {
		return nil
	}
	if p.Role == domain.RolePartner && target.PartnerID != nil && *target.PartnerID == p.UserID {
		return nil
	}

	a.logger.Warn("account access denied",
		slog.Int64("user_id", p.UserID),
		slog.String("role", string(p.Role)),
		slog.Int64("target_id", target.ID),
	)
	return ErrAccessDenied
}
