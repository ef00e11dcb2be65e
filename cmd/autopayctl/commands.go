package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/autopay/internal/app"
	"github.com/BradenHooton/autopay/internal/config"
	"github.com/BradenHooton/autopay/internal/database"
	"github.com/spf13/cobra"
)

// connect loads configuration and opens the database
func connect() (*config.Config, *database.DB, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := app.NewLogger(cfg.Server.LogLevel)

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return cfg, db, logger, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, _, err := connect()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	var at string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one mandate sweep now",
		Long: `Evaluate every active mandate once and charge the ones that are due.

Running this next to the API is safe: each due interval is claimed on the
mandate row in the same transaction that moves the money, so a mandate is
charged at most once per interval no matter which process gets there
first. Mandates paused or cancelled before the claim are not charged.

--at replays a past instant, for example after an outage. Future times
are rejected because they would charge intervals early.

Examples:
  autopayctl sweep
  autopayctl sweep --at 2026-03-01T00:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				if parsed.After(now) {
					return fmt.Errorf("invalid --at: %s is in the future", parsed.Format(time.RFC3339))
				}
				now = parsed
			}

			cfg, db, logger, err := connect()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			publisher, closePublisher := app.Publisher(ctx, cfg.Redis, logger)
			defer closePublisher()
			notifier := app.Notifier(ctx, cfg.Email, logger)

			report, err := app.Scheduler(db, cfg.Scheduler, publisher, notifier, logger).Sweep(ctx, now)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "evaluate as of this past RFC3339 time instead of now")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "abort the sweep after this long")
	return cmd
}
