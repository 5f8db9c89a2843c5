package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"blueprint-auth/internal/db"
	"blueprint-auth/internal/magiclink/domain"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a magic-link repository backed by the given pool.
func NewPostgresRepository(pool db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, c *domain.Challenge) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO magic_links (id, email, token_hash, expires_at, used_at, created_at)
		 VALUES ($1, $2, $3, $4, NULL, $5)`,
		c.ID, c.Email, c.TokenHash, c.ExpiresAt, c.CreatedAt,
	)
	if err != nil {
		return oops.In("magiclink_repository").Wrapf(err, "create challenge")
	}
	return nil
}

// LatestUnused returns the newest unused challenge for email, or nil if none.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) LatestUnused(ctx context.Context, email string) (*domain.Challenge, error) {
	var c domain.Challenge
	err := r.db.QueryRow(ctx,
		`SELECT id, email, token_hash, expires_at, used_at, created_at
		 FROM magic_links WHERE lower(email) = lower($1) AND used_at IS NULL
		 ORDER BY created_at DESC LIMIT 1`,
		email,
	).Scan(&c.ID, &c.Email, &c.TokenHash, &c.ExpiresAt, &c.UsedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, oops.In("magiclink_repository").Wrapf(err, "find challenge")
	}
	return &c, nil
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE magic_links SET used_at = $2 WHERE id = $1 AND used_at IS NULL`,
		id, at.UTC(),
	)
	if err != nil {
		return false, oops.In("magiclink_repository").Wrapf(err, "mark challenge used")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM magic_links WHERE expires_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, oops.In("magiclink_repository").Wrapf(err, "delete expired challenges")
	}
	return tag.RowsAffected(), nil
}
