package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DBTX is the subset of *pgxpool.Pool used by repositories. pgxmock pools satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Options tunes Open. Zero values use the defaults.
type Options struct {
	MaxConns       int32
	ConnectRetries uint64
	RetryBase      time.Duration
}

const (
	defaultConnectRetries = 5
	defaultRetryBase      = 200 * time.Millisecond
)

// ErrEmptyDSN is returned by Open when no DSN is configured.
var ErrEmptyDSN = errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")

// Open creates a Postgres pool for dsn and pings it, retrying with exponential
// backoff while the database comes up. Caller must call Close when done.
func Open(ctx context.Context, dsn string, opts Options) (*pgxpool.Pool, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, ErrEmptyDSN
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.In("db").Wrapf(err, "parse database url")
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.In("db").Wrapf(err, "create pool")
	}

	retries := opts.ConnectRetries
	if retries == 0 {
		retries = defaultConnectRetries
	}
	base := opts.RetryBase
	if base <= 0 {
		base = defaultRetryBase
	}
	backoff := retry.WithMaxRetries(retries, retry.NewExponential(base))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := pool.Ping(ctx); pingErr != nil {
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.In("db").With("host", cfg.ConnConfig.Host).Wrapf(err, "ping database")
	}
	return pool, nil
}
