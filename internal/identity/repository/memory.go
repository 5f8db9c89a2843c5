package repository

import (
	"context"
	"sync"

	"blueprint-auth/internal/autherr"
	"blueprint-auth/internal/identity/domain"
)

// MemoryRepository is an in-process Repository used by tests and local development.
type MemoryRepository struct {
	mu         sync.RWMutex
	identities map[string]*domain.Identity
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{identities: make(map[string]*domain.Identity)}
}

func (r *MemoryRepository) GetByUserAndProvider(_ context.Context, userID string, provider domain.IdentityProvider) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, i := range r.identities {
		if i.UserID == userID && i.Provider == provider {
			cp := *i
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Create(_ context.Context, i *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.identities {
		if existing.Provider == i.Provider && existing.ProviderID == i.ProviderID {
			return autherr.New(autherr.ErrDuplicateResource, "provider", string(i.Provider))
		}
	}
	cp := *i
	r.identities[i.ID] = &cp
	return nil
}

func (r *MemoryRepository) UpdatePasswordHash(_ context.Context, id string, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.identities[id]; ok {
		i.PasswordHash = passwordHash
	}
	return nil
}
