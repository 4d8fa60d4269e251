// Package main implements aimate-admin, the operator CLI for schema migrations and outbox replay.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aimate/internal/config"
	"aimate/pkg/db"
	"aimate/pkg/mq"
	"aimate/pkg/outbox"
)

var replayLimit int

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "aimate-admin",
	Short:        "Operator commands for the AIMate API",
	SilenceUsage: true,
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	outboxReplayFailedCmd.Flags().IntVar(&replayLimit, "limit", 100, "maximum number of failed events to replay")
	outboxCmd.AddCommand(outboxReplayCmd, outboxReplayFailedCmd)
	rootCmd.AddCommand(migrateCmd, outboxCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := db.MigrateUp(config.Load().DB); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back the most recent migrations (default 1)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, err := parseSteps(args)
		if err != nil {
			return err
		}
		if err := db.MigrateDown(config.Load().DB, steps); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		version, dirty, err := db.MigrationVersion(config.Load().DB)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
		return nil
	},
}

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and replay domain events",
}

var outboxReplayCmd = &cobra.Command{
	Use:   "replay <event-id>",
	Short: "Reset one event and publish it again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid event id %q", args[0])
		}
		return withReplay(cmd.Context(), func(ctx context.Context, s *outbox.ReplayService) error {
			if err := s.ReplayEvent(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "event %d replayed\n", id)
			return nil
		})
	},
}

var outboxReplayFailedCmd = &cobra.Command{
	Use:   "replay-failed",
	Short: "Replay events that exhausted their retries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReplay(cmd.Context(), func(ctx context.Context, s *outbox.ReplayService) error {
			n, err := s.ReplayFailedEvents(ctx, replayLimit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d event(s) replayed\n", n)
			return nil
		})
	},
}

func parseSteps(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}
	steps, err := strconv.Atoi(args[0])
	if err != nil || steps <= 0 {
		return 0, fmt.Errorf("steps must be a positive integer, got %q", args[0])
	}
	return steps, nil
}

func withReplay(ctx context.Context, fn func(context.Context, *outbox.ReplayService) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.Load()

	dbConn, err := db.NewConnection(ctx, cfg.DB, zap.NewNop())
	if err != nil {
		return err
	}
	defer dbConn.Close()

	publisher, err := mq.NewPublisher(cfg.MQ.URL, "aimate-admin")
	if err != nil {
		return err
	}
	defer publisher.Close()

	return fn(ctx, outbox.NewReplayService(outbox.NewRepository(dbConn), publisher))
}
