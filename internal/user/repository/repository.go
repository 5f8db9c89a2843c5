package repository

import (
	"context"

	"blueprint-auth/internal/user/domain"
)

// Repository defines persistence for users. Lookups return (nil, nil) when no row matches.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	// Create returns an autherr.ErrDuplicateResource error when the email or phone is taken.
	Create(ctx context.Context, u *domain.User) error
	// Update persists email, name, phone, role and status. Same duplicate rule as Create.
	Update(ctx context.Context, u *domain.User) error
	// Delete removes the user and, through cascade, its identities. Missing ids are not an error.
	Delete(ctx context.Context, id string) error
}
