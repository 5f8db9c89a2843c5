package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blueprint-auth/internal/autherr"
	"blueprint-auth/internal/identity/domain"
)

func TestPostgresRepository_GetByUserAndProvider(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	hash := "$2a$04$abc"
	mock.ExpectQuery(`SELECT .* FROM identities WHERE user_id = \$1 AND provider = \$2`).
		WithArgs("u1", "local").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "provider", "provider_id", "password_hash", "created_at"}).
			AddRow("i1", "u1", "local", "a@b.com", &hash, now))
	mock.ExpectQuery(`SELECT .* FROM identities`).
		WithArgs("u2", "local").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "provider", "provider_id", "password_hash", "created_at"}))

	repo := NewPostgresRepository(mock)
	got, err := repo.GetByUserAndProvider(context.Background(), "u1", domain.IdentityProviderLocal)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.HasPassword())
	assert.Equal(t, hash, got.PasswordHash)

	missing, err := repo.GetByUserAndProvider(context.Background(), "u2", domain.IdentityProviderLocal)
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CreateDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO identities`).
		WithArgs("i1", "u1", "local", "a@b.com", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
	err = NewPostgresRepository(mock).Create(context.Background(), &domain.Identity{
		ID: "i1", UserID: "u1", Provider: domain.IdentityProviderLocal, ProviderID: "a@b.com", PasswordHash: "h",
	})
	assert.ErrorIs(t, err, autherr.ErrDuplicateResource)
	assert.NoError(t, mock.ExpectationsWereMet())
}
