package repository

import (
	"context"
	"sync"
	"time"

	"github.com/notarydesk/authcore/internal/domain"
)

var (
	_ domain.UserStore       = (*MemoryUserRepository)(nil)
	_ domain.UserDeactivator = (*MemoryUserRepository)(nil)
)

// MemoryUserRepository keeps users in insertion order behind one RWMutex.
// Every returned user is a copy.
type MemoryUserRepository struct {
	mu     sync.RWMutex
	users  []*domain.User
	nextID int64
	now    func() time.Time
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{nextID: 1, now: time.Now}
}

// FindByUsername returns (nil, nil) when no user matches.
func (r *MemoryUserRepository) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Username == username {
			return u.Clone(), nil
		}
	}
	return nil, nil
}

// FindByID returns (nil, nil) when no user matches.
func (r *MemoryUserRepository) FindByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(id); i >= 0 {
		return r.users[i].Clone(), nil
	}
	return nil, nil
}

func (r *MemoryUserRepository) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	if !user.Role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == user.Username {
			return nil, domain.ErrDuplicateUsername
		}
	}

	stored := user.Clone()
	stored.ID = r.nextID
	r.nextID++
	now := r.now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.users = append(r.users, stored)
	return stored.Clone(), nil
}

// Update replaces the profile fields of the user with user.ID.
func (r *MemoryUserRepository) Update(_ context.Context, user *domain.User) (*domain.User, error) {
	if !user.Role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(user.ID)
	if i < 0 {
		return nil, domain.ErrNotFound
	}
	stored := r.users[i]
	stored.Email = user.Email
	stored.Role = user.Role
	stored.Platform = user.Platform
	stored.BusinessName = user.BusinessName
	stored.PartnerID = user.Clone().PartnerID
	stored.UpdatedAt = r.now().UTC()
	return stored.Clone(), nil
}

func (r *MemoryUserRepository) SetPasswordDigest(_ context.Context, id int64, digest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return domain.ErrNotFound
	}
	r.users[i].PasswordDigest = digest
	r.users[i].UpdatedAt = r.now().UTC()
	return nil
}

func (r *MemoryUserRepository) ListByRole(_ context.Context, role domain.Role) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*domain.User{}
	for _, u := range r.users {
		if u.Role == role {
			out = append(out, u.Clone())
		}
	}
	return out, nil
}

func (r *MemoryUserRepository) Deactivate(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return domain.ErrNotFound
	}
	r.users[i].Active = false
	r.users[i].UpdatedAt = r.now().UTC()
	return nil
}

// indexOf must be called with mu held.
func (r *MemoryUserRepository) indexOf(id int64) int {
	for i, u := range r.users {
		if u.ID == id {
			return i
		}
	}
	return -1
}
