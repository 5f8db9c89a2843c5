package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"blueprint-auth/internal/audit/domain"
	"blueprint-auth/internal/db"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an audit event repository backed by the given pool.
func NewPostgresRepository(pool db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: pool}
}

// Create persists the event. The event must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Event) error {
	var meta []byte
	if len(e.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(e.Metadata); err != nil {
			return oops.In("audit_repository").Wrapf(err, "encode metadata")
		}
	}
	var subject *string
	if e.SubjectID != "" {
		subject = &e.SubjectID
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO audit_events (id, action, resource, subject_id, ip, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Action, e.Resource, subject, e.IP, meta, e.CreatedAt,
	)
	if err != nil {
		return oops.In("audit_repository").With("action", e.Action).Wrapf(err, "create audit event")
	}
	return nil
}

// ListBySubject returns the subject's events, newest first, paginated by limit and offset.
func (r *PostgresRepository) ListBySubject(ctx context.Context, subjectID string, limit, offset int32) ([]*domain.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, action, resource, COALESCE(subject_id, ''), ip, metadata, created_at
		 FROM audit_events WHERE subject_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		subjectID, limit, offset,
	)
	if err != nil {
		return nil, oops.In("audit_repository").Wrapf(err, "list audit events")
	}
	defer rows.Close()
	var out []*domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, oops.In("audit_repository").Wrapf(err, "scan audit event")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.In("audit_repository").Wrapf(err, "list audit events")
	}
	return out, nil
}

// DeleteOlderThan removes events created before cutoff.
func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM audit_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, oops.In("audit_repository").Wrapf(err, "delete old audit events")
	}
	return tag.RowsAffected(), nil
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var (
		e    domain.Event
		meta []byte
	)
	if err := row.Scan(&e.ID, &e.Action, &e.Resource, &e.SubjectID, &e.IP, &meta, &e.CreatedAt); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, err
		}
	}
	return &e, nil
}
