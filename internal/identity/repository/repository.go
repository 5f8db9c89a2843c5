package repository

import (
	"context"

	"blueprint-auth/internal/identity/domain"
)

// Repository defines persistence for identities. Lookups return (nil, nil) when absent.
type Repository interface {
	GetByUserAndProvider(ctx context.Context, userID string, provider domain.IdentityProvider) (*domain.Identity, error)
	// Create returns an autherr.ErrDuplicateResource error when (provider, provider_id) exists.
	Create(ctx context.Context, i *domain.Identity) error
	UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error
}
