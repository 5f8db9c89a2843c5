// migrate runs DB migrations from embedded SQL: go run ./cmd/migrate up|down|version.
package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"blueprint-auth/internal/config"
	"blueprint-auth/internal/db/migrate"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var databaseURL string
	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the blueprint-auth database schema",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres DSN (defaults to DATABASE_URL)")

	dsn := func() (string, error) {
		if databaseURL != "" {
			return databaseURL, nil
		}
		cfg, err := config.Load()
		if err != nil {
			return "", oops.Code("CONFIG_INVALID").Wrap(err)
		}
		if cfg.DatabaseURL == "" {
			return "", oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL is not set; create a .env from .env.example or pass --database-url")
		}
		return cfg.DatabaseURL, nil
	}

	cmd.AddCommand(newApplyCmd(migrate.Up, "Apply all pending migrations", dsn))
	cmd.AddCommand(newApplyCmd(migrate.Down, "Roll back every migration", dsn))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := dsn()
			if err != nil {
				return err
			}
			v, dirty, err := migrate.Version(url)
			if err != nil {
				return err
			}
			if dirty {
				cmd.Printf("version %d (dirty)\n", v)
				return nil
			}
			cmd.Printf("version %d\n", v)
			return nil
		},
	})
	return cmd
}

func newApplyCmd(direction migrate.Direction, short string, dsn func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   string(direction),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := dsn()
			if err != nil {
				return err
			}
			if err := migrate.Run(url, direction); err != nil {
				return oops.Code("MIGRATION_FAILED").With("direction", string(direction)).Wrap(err)
			}
			cmd.Printf("migrations %s: ok\n", direction)
			return nil
		},
	}
}
