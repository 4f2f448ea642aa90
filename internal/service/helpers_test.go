package service

import (
	"context"
	"testing"
	"time"

	"github.com/notarydesk/authcore/internal/domain"
	"github.com/notarydesk/authcore/internal/featureflags"
	"github.com/notarydesk/authcore/internal/repository"
	"github.com/notarydesk/authcore/internal/security/audit"
	"github.com/notarydesk/authcore/internal/security/auth"
	"github.com/notarydesk/authcore/internal/security/password"
)

func testPool() *password.Pool {
	p := password.DefaultParams()
	p.Memory = 1024
	p.Threads = 1
	return password.NewPool(password.NewHasher(p), 4)
}

type fixture struct {
	store  *repository.MemoryUserRepository
	pool   *password.Pool
	tokens *auth.TokenManager
	svc    *AuthService
}

func newFixture(t *testing.T, flags map[string]string) *fixture {
	t.Helper()
	store := repository.NewMemoryUserRepository()
	pool := testPool()
	tokens := auth.NewTokenManager("service-test-secret", "authcore-test")
	svc := NewAuthService(store, pool, tokens, time.Hour, featureflags.FromMap(flags), audit.NewLogger(nil), nil)
	return &fixture{store: store, pool: pool, tokens: tokens, svc: svc}
}

func (f *fixture) seed(t *testing.T, username, plaintext string, role domain.Role, active bool) *domain.User {
	t.Helper()
	digest, err := f.pool.Hash(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u, err := f.store.Create(context.Background(), &domain.User{
		Username: username, PasswordDigest: digest, Role: role, Active: active,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", username, err)
	}
	return u
}

// storeWithoutDeactivate hides the optional capability of the memory store.
type storeWithoutDeactivate struct {
	domain.UserStore
}
