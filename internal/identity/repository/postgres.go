package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"blueprint-auth/internal/autherr"
	"blueprint-auth/internal/db"
	"blueprint-auth/internal/identity/domain"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an identity repository backed by the given pool.
func NewPostgresRepository(pool db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: pool}
}

// GetByUserAndProvider returns the identity for the given user and provider, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByUserAndProvider(ctx context.Context, userID string, provider domain.IdentityProvider) (*domain.Identity, error) {
	var (
		i        domain.Identity
		prov     string
		password *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, provider, provider_id, password_hash, created_at
		 FROM identities WHERE user_id = $1 AND provider = $2
		 ORDER BY created_at DESC LIMIT 1`,
		userID, string(provider),
	).Scan(&i.ID, &i.UserID, &prov, &i.ProviderID, &password, &i.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, oops.In("identity_repository").With("user_id", userID).Wrapf(err, "get identity")
	}
	i.Provider = domain.IdentityProvider(prov)
	if password != nil {
		i.PasswordHash = *password
	}
	return &i, nil
}

// Create persists the identity. The identity must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, i *domain.Identity) error {
	var password *string
	if i.PasswordHash != "" {
		password = &i.PasswordHash
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO identities (id, user_id, provider, provider_id, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		i.ID, i.UserID, string(i.Provider), i.ProviderID, password, i.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return autherr.New(autherr.ErrDuplicateResource, "provider", string(i.Provider))
		}
		return oops.In("identity_repository").With("user_id", i.UserID).Wrapf(err, "create identity")
	}
	return nil
}

// UpdatePasswordHash replaces the stored digest of a local identity.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error {
	_, err := r.db.Exec(ctx, `UPDATE identities SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return oops.In("identity_repository").Wrapf(err, "update password hash")
	}
	return nil
}
