package repository

import (
	"context"

	"blueprint-auth/internal/policy/domain"
)

// Repository defines persistence for issuance policies.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Policy, error)
	// ListEnabled returns enabled policies ordered by creation time.
	ListEnabled(ctx context.Context) ([]*domain.Policy, error)
	Create(ctx context.Context, p *domain.Policy) error
	Update(ctx context.Context, p *domain.Policy) error
}
