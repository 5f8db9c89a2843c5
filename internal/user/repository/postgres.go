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
	"blueprint-auth/internal/user/domain"
)

const userColumns = `id, email, name, phone, role, status, created_at, updated_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a user repository backed by the given pool.
func NewPostgresRepository(pool db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: pool}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail matches case-insensitively.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

// GetByPhone expects an E.164 number.
func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, oops.In("user_repository").Wrapf(err, "get user")
	}
	return u, nil
}

// Create persists the user. The user must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (id, email, name, phone, role, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, u.Name, nullString(u.Phone), string(u.Role), string(u.Status), u.CreatedAt, u.UpdatedAt,
	)
	return mapWriteError(err, u, "create user")
}

// Update overwrites the mutable columns and bumps updated_at to u.UpdatedAt.
func (r *PostgresRepository) Update(ctx context.Context, u *domain.User) error {
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = time.Now().UTC()
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET email = $2, name = $3, phone = $4, role = $5, status = $6, updated_at = $7
		 WHERE id = $1`,
		u.ID, u.Email, u.Name, nullString(u.Phone), string(u.Role), string(u.Status), u.UpdatedAt,
	)
	if err := mapWriteError(err, u, "update user"); err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return autherr.New(autherr.ErrUserNotFound, "user_id", u.ID)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return oops.In("user_repository").With("user_id", id).Wrapf(err, "delete user")
	}
	return nil
}

func mapWriteError(err error, u *domain.User, op string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return autherr.New(autherr.ErrDuplicateResource, "email", u.Email)
	}
	return oops.In("user_repository").With("user_id", u.ID).Wrapf(err, "%s", op)
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u            domain.User
		phone        *string
		role, status string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &phone, &role, &status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if phone != nil {
		u.Phone = *phone
	}
	u.Role = domain.Role(role)
	u.Status = domain.UserStatus(status)
	return &u, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
