// worker runs background jobs that stay off the request path:
//
//	sweep          deletes expired sessions, magic-link challenges and old audit events
//	audit-forward  consumes audit events from Kafka and pushes them to Loki
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"blueprint-auth/internal/config"
	"blueprint-auth/internal/logging"
)

const serviceName = "blueprint-auth-worker"

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "worker",
		Short:        "Background jobs for blueprint-auth",
		Version:      version,
		SilenceUsage: true,
	}
	cmd.AddCommand(newSweepCmd())
	cmd.AddCommand(newForwardCmd())
	return cmd
}

// loadConfig loads config and installs the default logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.SetDefault(serviceName, version, cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))
	return cfg, nil
}
