package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"

	"blueprint-auth/internal/bootstrap"
)

type expiredDeleter interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type auditPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// sweeper removes rows that are no longer needed. Sessions and audit events are
// kept for a retention window after they stop being useful.
type sweeper struct {
	sessions         expiredDeleter
	challenges       expiredDeleter
	audit            auditPruner
	sessionRetention time.Duration
	auditRetention   time.Duration
	retryBase        time.Duration
	maxRetries       uint64
	now              func() time.Time
	logger           *slog.Logger
}

type sweepResult struct {
	Sessions   int64
	Challenges int64
	Audit      int64
}

// runOnce sweeps every store, retrying each step with exponential backoff.
func (s *sweeper) runOnce(ctx context.Context) (sweepResult, error) {
	var res sweepResult
	now := s.now().UTC()
	steps := []struct {
		name string
		out  *int64
		fn   func(context.Context) (int64, error)
	}{
		{"sessions", &res.Sessions, func(ctx context.Context) (int64, error) {
			return s.sessions.DeleteExpired(ctx, now.Add(-s.sessionRetention))
		}},
		{"magic_links", &res.Challenges, func(ctx context.Context) (int64, error) {
			return s.challenges.DeleteExpired(ctx, now)
		}},
		{"audit_events", &res.Audit, func(ctx context.Context) (int64, error) {
			return s.audit.DeleteOlderThan(ctx, now.Add(-s.auditRetention))
		}},
	}
	for _, step := range steps {
		backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.retryBase))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			n, err := step.fn(ctx)
			if err != nil {
				return retry.RetryableError(err)
			}
			*step.out = n
			return nil
		})
		if err != nil {
			return res, oops.In("sweep").With("step", step.name).Wrap(err)
		}
	}
	return res, nil
}

// loop sweeps immediately and then every interval until ctx is done. A failed
// sweep is logged and retried on the next tick.
func (s *sweeper) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		res, err := s.runOnce(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "sweep failed", "error", err)
		} else if err == nil {
			s.logger.InfoContext(ctx, "sweep complete",
				"sessions", res.Sessions, "magic_links", res.Challenges, "audit_events", res.Audit)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func newSweepCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired sessions, magic-link challenges and old audit events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			stores, err := bootstrap.OpenStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer stores.Close()

			s := &sweeper{
				sessions:         stores.Sessions,
				challenges:       stores.Challenges,
				audit:            stores.Audit,
				sessionRetention: cfg.SessionRetention,
				auditRetention:   cfg.AuditRetention,
				retryBase:        500 * time.Millisecond,
				maxRetries:       3,
				now:              time.Now,
				logger:           slog.Default(),
			}
			if once {
				res, err := s.runOnce(ctx)
				if err != nil {
					return err
				}
				cmd.Printf("removed %d sessions, %d magic links, %d audit events\n", res.Sessions, res.Challenges, res.Audit)
				return nil
			}
			slog.InfoContext(ctx, "sweeper started", "interval", cfg.SweepInterval)
			s.loop(ctx, cfg.SweepInterval)
			slog.InfoContext(ctx, "sweeper stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single sweep and exit")
	return cmd
}
