// Package bootstrap opens the persistence backends selected by config and
// hands out repositories to the commands.
package bootstrap

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	auditrepo "blueprint-auth/internal/audit/repository"
	"blueprint-auth/internal/config"
	"blueprint-auth/internal/db"
	identityrepo "blueprint-auth/internal/identity/repository"
	magiclinkrepo "blueprint-auth/internal/magiclink/repository"
	policyrepo "blueprint-auth/internal/policy/repository"
	sessionrepo "blueprint-auth/internal/session/repository"
	userrepo "blueprint-auth/internal/user/repository"
)

// Stores holds one repository per aggregate. Without DATABASE_URL every store is
// in memory and Policies is nil.
type Stores struct {
	Pool  *pgxpool.Pool
	Redis *redis.Client

	Users      userrepo.Repository
	Identities identityrepo.Repository
	Challenges magiclinkrepo.Repository
	Sessions   sessionrepo.Repository
	Audit      auditrepo.Repository
	Policies   policyrepo.Repository
}

// OpenStores connects to Postgres and Redis as configured. Caller must call Close.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	s := &Stores{}
	if cfg.DatabaseURL != "" {
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
		if err != nil {
			return nil, err
		}
		s.Pool = pool
		s.Users = userrepo.NewPostgresRepository(pool)
		s.Identities = identityrepo.NewPostgresRepository(pool)
		s.Challenges = magiclinkrepo.NewPostgresRepository(pool)
		s.Audit = auditrepo.NewPostgresRepository(pool)
		s.Policies = policyrepo.NewPostgresRepository(pool)
	} else {
		slog.Warn("DATABASE_URL not set; using in-memory stores")
		s.Users = userrepo.NewMemoryRepository()
		s.Identities = identityrepo.NewMemoryRepository()
		s.Challenges = magiclinkrepo.NewMemoryRepository()
		s.Audit = auditrepo.NewMemoryRepository()
	}

	switch cfg.SessionStoreKind() {
	case config.StorePostgres:
		if s.Pool == nil {
			s.Close()
			return nil, oops.In("bootstrap").Errorf("postgres session store requires DATABASE_URL")
		}
		s.Sessions = sessionrepo.NewPostgresRepository(s.Pool)
	case config.StoreRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			s.Close()
			return nil, oops.In("bootstrap").Wrapf(err, "parse REDIS_URL")
		}
		s.Redis = redis.NewClient(opts)
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			s.Close()
			return nil, oops.In("bootstrap").Wrapf(err, "ping redis")
		}
		s.Sessions = sessionrepo.NewRedisRepository(s.Redis, "blueprint-auth", cfg.SessionRetention)
	default:
		s.Sessions = sessionrepo.NewMemoryRepository()
	}
	return s, nil
}

// Ready pings every remote backend.
func (s *Stores) Ready(ctx context.Context) bool {
	if s.Pool != nil {
		if err := s.Pool.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "readiness: postgres ping failed", "error", err)
			return false
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			slog.WarnContext(ctx, "readiness: redis ping failed", "error", err)
			return false
		}
	}
	return true
}

// Close releases connections. Safe to call more than once.
func (s *Stores) Close() {
	if s.Redis != nil {
		_ = s.Redis.Close()
		s.Redis = nil
	}
	if s.Pool != nil {
		s.Pool.Close()
		s.Pool = nil
	}
}
