package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/notarydesk/authcore/internal/domain"
	"github.com/notarydesk/authcore/internal/observability/metrics"
	"github.com/notarydesk/authcore/internal/security/audit"
	"github.com/notarydesk/authcore/internal/security/password"
)

// Bootstrap outcomes.
const (
	BootstrapCreated = "created"
	BootstrapRotated = "rotated"
	BootstrapFailed  = "failed"
)

// BootstrapAccount is a well-known account that must exist after startup
// with exactly this password.
type BootstrapAccount struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
	Email    string      `json:"email,omitempty"`
}

// BootstrapResult reports what Ensure did for one account.
type BootstrapResult struct {
	Username string
	Action   string
	UserID   int64
	Err      error
}

// DefaultBootstrapAccounts is the account list used when no file is
// configured.
func DefaultBootstrapAccounts() []BootstrapAccount {
	return []BootstrapAccount{
		{Username: "opAdmin", Password: "adminq", Role: domain.RoleAdmin},
	}
}

// LoadBootstrapAccounts decodes a JSON array of accounts.
func LoadBootstrapAccounts(r io.Reader) ([]BootstrapAccount, error) {
	var accounts []BootstrapAccount
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&accounts); err != nil {
		return nil, fmt.Errorf("decode bootstrap accounts: %w", err)
	}
	for i, a := range accounts {
		if a.Username == "" || a.Password == "" {
			return nil, fmt.Errorf("bootstrap account %d: username and password are required", i)
		}
		if !a.Role.Valid() {
			return nil, fmt.Errorf("bootstrap account %q: %w", a.Username, domain.ErrInvalidRole)
		}
	}
	return accounts, nil
}

// LoadBootstrapAccountsFile reads accounts from path, or returns the
// defaults when path is empty.
func LoadBootstrapAccountsFile(path string) ([]BootstrapAccount, error) {
	if path == "" {
		return DefaultBootstrapAccounts(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bootstrap accounts: %w", err)
	}
	defer f.Close()
	return LoadBootstrapAccounts(f)
}

// Bootstrapper makes sure well-known accounts exist with known passwords.
type Bootstrapper struct {
	store  domain.UserStore
	hashes *password.Pool
	audit  *audit.Logger
	logger *slog.Logger
}

func NewBootstrapper(store domain.UserStore, hashes *password.Pool, auditLog *audit.Logger, logger *slog.Logger) *Bootstrapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrapper{store: store, hashes: hashes, audit: auditLog, logger: logger}
}

// Ensure creates each missing account and rotates the password digest of
// each existing one. The username is the only identity key, so running it
// twice leaves a single record per account. A failure on one account is
// reported in its result and does not stop the others.
func (b *Bootstrapper) Ensure(ctx context.Context, accounts []BootstrapAccount) []BootstrapResult {
	results := make([]BootstrapResult, 0, len(accounts))
	for _, acct := range accounts {
		res := b.ensureOne(ctx, acct)
		metrics.ObserveBootstrap(res.Action)
		if res.Err != nil {
			b.logger.Error("bootstrap account failed",
				slog.String("username", acct.Username),
				slog.String("error", res.Err.Error()),
			)
			b.audit.LogAction(ctx, 0, audit.ActionBootstrap, "user", acct.Username, "failed", "")
		} else {
			b.logger.Info("bootstrap account ensured",
				slog.String("username", acct.Username),
				slog.String("action", res.Action),
				slog.Int64("user_id", res.UserID),
			)
			b.audit.LogAction(ctx, 0, audit.ActionBootstrap, "user", acct.Username, res.Action, "")
		}
		results = append(results, res)
	}
	return results
}

func (b *Bootstrapper) ensureOne(ctx context.Context, acct BootstrapAccount) BootstrapResult {
	res := BootstrapResult{Username: acct.Username, Action: BootstrapFailed}

	digest, err := b.hashes.Hash(ctx, acct.Password)
	if err != nil {
		res.Err = err
		return res
	}

	existing, err := b.store.FindByUsername(ctx, acct.Username)
	if err != nil {
		res.Err = fmt.Errorf("look up %q: %w", acct.Username, err)
		return res
	}

	if existing == nil {
		created, err := b.store.Create(ctx, &domain.User{
			Username:       acct.Username,
			PasswordDigest: digest,
			Email:          acct.Email,
			Role:           acct.Role,
			Active:         true,
		})
		if err == nil {
			res.Action = BootstrapCreated
			res.UserID = created.ID
			return res
		}
		if !errors.Is(err, domain.ErrDuplicateUsername) {
			res.Err = fmt.Errorf("create %q: %w", acct.Username, err)
			return res
		}
		// Lost a create race with another instance; rotate instead.
		existing, err = b.store.FindByUsername(ctx, acct.Username)
		if err != nil {
			res.Err = fmt.Errorf("reload %q after duplicate: %w", acct.Username, err)
			return res
		}
		if existing == nil {
			res.Err = fmt.Errorf("reload %q after duplicate: %w", acct.Username, domain.ErrNotFound)
			return res
		}
	}

	if err := b.store.SetPasswordDigest(ctx, existing.ID, digest); err != nil {
		res.Err = fmt.Errorf("rotate %q: %w", acct.Username, err)
		return res
	}
	res.Action = BootstrapRotated
	res.UserID = existing.ID
	return res
}
