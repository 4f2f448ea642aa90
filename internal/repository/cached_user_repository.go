package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/notarydesk/authcore/internal/domain"
	"github.com/notarydesk/authcore/pkg/cache"
)

var (
	_ domain.UserStore       = (*CachedUserRepository)(nil)
	_ domain.UserDeactivator = (*CachedUserRepository)(nil)
)

const userIDKeyPrefix = "user:id:"

// CachedUserRepository caches FindByID results of another store. Username
// lookups always go to the backing store so logins see fresh digests.
type CachedUserRepository struct {
	next  domain.UserStore
	cache *cache.Cache[*domain.User]
	ttl   time.Duration
}

func NewCachedUserRepository(next domain.UserStore, c *cache.Cache[*domain.User], ttl time.Duration) *CachedUserRepository {
	if c == nil {
		c = cache.New[*domain.User]()
	}
	return &CachedUserRepository{next: next, cache: c, ttl: ttl}
}

func idKey(id int64) string {
	return userIDKeyPrefix + strconv.FormatInt(id, 10)
}

func (r *CachedUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.next.FindByUsername(ctx, username)
}

func (r *CachedUserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	if u, ok := r.cache.Get(idKey(id)); ok {
		return u.Clone(), nil
	}
	u, err := r.next.FindByID(ctx, id)
	if err != nil || u == nil {
		return u, err
	}
	r.cache.Set(idKey(id), u.Clone(), r.ttl)
	return u, nil
}

func (r *CachedUserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	return r.next.Create(ctx, user)
}

func (r *CachedUserRepository) Update(ctx context.Context, user *domain.User) (*domain.User, error) {
	r.cache.Delete(idKey(user.ID))
	updated, err := r.next.Update(ctx, user)
	r.cache.Delete(idKey(user.ID))
	return updated, err
}

func (r *CachedUserRepository) SetPasswordDigest(ctx context.Context, id int64, digest string) error {
	r.cache.Delete(idKey(id))
	err := r.next.SetPasswordDigest(ctx, id, digest)
	r.cache.Delete(idKey(id))
	return err
}

func (r *CachedUserRepository) ListByRole(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	return r.next.ListByRole(ctx, role)
}

// Deactivate forwards to the backing store, or reports ErrNotImplemented
// when that store cannot suspend accounts.
func (r *CachedUserRepository) Deactivate(ctx context.Context, id int64) error {
	d, ok := r.next.(domain.UserDeactivator)
	if !ok {
		return domain.ErrNotImplemented
	}
	err := d.Deactivate(ctx, id)
	r.cache.Delete(idKey(id))
	return err
}
