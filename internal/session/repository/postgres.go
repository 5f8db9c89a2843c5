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
	"blueprint-auth/internal/session/domain"
)

const sessionColumns = `token_id, subject_id, expires_at, revoked_at, created_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a session repository backed by the given pool.
func NewPostgresRepository(pool db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: pool}
}

// Create inserts the session. A duplicate token id maps to autherr.ErrConflict.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO sessions (token_id, subject_id, expires_at, revoked_at, created_at)
		 VALUES ($1, $2, $3, NULL, $4)`,
		s.TokenID, s.SubjectID, s.ExpiresAt, createdAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return autherr.New(autherr.ErrConflict, "subject_id", s.SubjectID)
		}
		return oops.In("session_repository").With("subject_id", s.SubjectID).Wrapf(err, "create session")
	}
	return nil
}

// FindByTokenID returns the session for tokenID, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) FindByTokenID(ctx context.Context, tokenID string) (*domain.Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token_id = $1`, tokenID)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, oops.In("session_repository").Wrapf(err, "find session")
	}
	return s, nil
}

// Revoke sets revoked_at when it is still NULL.
func (r *PostgresRepository) Revoke(ctx context.Context, tokenID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE sessions SET revoked_at = $2 WHERE token_id = $1 AND revoked_at IS NULL`,
		tokenID, time.Now().UTC(),
	)
	if err != nil {
		return oops.In("session_repository").Wrapf(err, "revoke session")
	}
	return nil
}

// RevokeIfActive is a single conditional UPDATE; Postgres row locking makes
// exactly one concurrent caller see one affected row.
func (r *PostgresRepository) RevokeIfActive(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE sessions SET revoked_at = $2
		 WHERE token_id = $1 AND revoked_at IS NULL AND expires_at > $2`,
		tokenID, now.UTC(),
	)
	if err != nil {
		return false, oops.In("session_repository").Wrapf(err, "revoke active session")
	}
	return tag.RowsAffected() == 1, nil
}

// ListBySubject returns all sessions for the subject, newest first.
func (r *PostgresRepository) ListBySubject(ctx context.Context, subjectID string) ([]*domain.Session, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE subject_id = $1 ORDER BY created_at DESC`,
		subjectID,
	)
	if err != nil {
		return nil, oops.In("session_repository").With("subject_id", subjectID).Wrapf(err, "list sessions")
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, oops.In("session_repository").Wrapf(err, "scan session")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.In("session_repository").Wrapf(err, "iterate sessions")
	}
	return out, nil
}

// RevokeAllBySubject revokes every non-revoked session of the subject.
func (r *PostgresRepository) RevokeAllBySubject(ctx context.Context, subjectID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE sessions SET revoked_at = $2 WHERE subject_id = $1 AND revoked_at IS NULL`,
		subjectID, time.Now().UTC(),
	)
	if err != nil {
		return 0, oops.In("session_repository").With("subject_id", subjectID).Wrapf(err, "revoke all sessions")
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes rows expired or revoked before cutoff.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM sessions WHERE expires_at < $1 OR revoked_at < $1`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, oops.In("session_repository").Wrapf(err, "delete expired sessions")
	}
	return tag.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	if err := row.Scan(&s.TokenID, &s.SubjectID, &s.ExpiresAt, &s.RevokedAt, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
