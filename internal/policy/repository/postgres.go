package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"blueprint-auth/internal/autherr"
	"blueprint-auth/internal/db"
	"blueprint-auth/internal/policy/domain"
)

const policyColumns = `id, name, rules, enabled, created_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a policy repository backed by the given pool.
func NewPostgresRepository(pool db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: pool}
}

// GetByID returns the policy for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Policy, error) {
	p, err := scanPolicy(r.db.QueryRow(ctx, `SELECT `+policyColumns+` FROM issuance_policies WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, oops.In("policy_repository").Wrapf(err, "get policy")
	}
	return p, nil
}

// ListEnabled returns all enabled policies, oldest first.
func (r *PostgresRepository) ListEnabled(ctx context.Context) ([]*domain.Policy, error) {
	rows, err := r.db.Query(ctx, `SELECT `+policyColumns+` FROM issuance_policies WHERE enabled ORDER BY created_at`)
	if err != nil {
		return nil, oops.In("policy_repository").Wrapf(err, "list policies")
	}
	defer rows.Close()
	var out []*domain.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, oops.In("policy_repository").Wrapf(err, "scan policy")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.In("policy_repository").Wrapf(err, "list policies")
	}
	return out, nil
}

// Create persists the policy. The policy must have ID set; a duplicate name is ErrDuplicateResource.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Policy) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO issuance_policies (id, name, rules, enabled, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Name, p.Rules, p.Enabled, createdAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return autherr.New(autherr.ErrDuplicateResource, "name", p.Name)
		}
		return oops.In("policy_repository").With("name", p.Name).Wrapf(err, "create policy")
	}
	return nil
}

// Update replaces rules and enabled flag. Updating a missing policy is an error.
func (r *PostgresRepository) Update(ctx context.Context, p *domain.Policy) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE issuance_policies SET rules = $2, enabled = $3 WHERE id = $1`,
		p.ID, p.Rules, p.Enabled,
	)
	if err != nil {
		return oops.In("policy_repository").With("id", p.ID).Wrapf(err, "update policy")
	}
	if tag.RowsAffected() == 0 {
		return oops.In("policy_repository").With("id", p.ID).Errorf("policy not found")
	}
	return nil
}

func scanPolicy(row pgx.Row) (*domain.Policy, error) {
	var p domain.Policy
	if err := row.Scan(&p.ID, &p.Name, &p.Rules, &p.Enabled, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
