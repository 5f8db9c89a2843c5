package repository

import (
	"context"
	"strings"
	"sync"

	"blueprint-auth/internal/autherr"
	"blueprint-auth/internal/user/domain"
)

// MemoryRepository is an in-process Repository used by tests and local development.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]*domain.User)}
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) GetByPhone(_ context.Context, phone string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if phone != "" && u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.taken(u) {
		return autherr.New(autherr.ErrDuplicateResource, "email", u.Email)
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; !ok {
		return autherr.New(autherr.ErrUserNotFound, "user_id", u.ID)
	}
	if r.taken(u) {
		return autherr.New(autherr.ErrDuplicateResource, "email", u.Email)
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	return nil
}

// taken reports whether another user already owns u's email or phone. Caller holds mu.
func (r *MemoryRepository) taken(u *domain.User) bool {
	for id, other := range r.users {
		if id == u.ID {
			continue
		}
		if strings.EqualFold(other.Email, u.Email) || (u.Phone != "" && other.Phone == u.Phone) {
			return true
		}
	}
	return false
}
