package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-rewards/internal/app"
	"github.com/stemsi/exstem-rewards/internal/config"
	"github.com/stemsi/exstem-rewards/internal/logger"
)

// runFunc runs one trigger against a connected pipeline and returns the
// report to print.
type runFunc func(ctx context.Context, a *app.App) (any, error)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "rewardctl",
		Short:        "Run exam completion, settlement and notification triggers once",
		SilenceUsage: true,
	}

	cmd.AddCommand(newDetectCmd())
	cmd.AddCommand(newSettleCmd())
	cmd.AddCommand(newDispatchCmd())
	cmd.AddCommand(newQueueCmd())
	return cmd
}

func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Detect completed exams and sweep exhausted sessions",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app.App) (any, error) {
			return a.Completion.DetectCompletion(ctx)
		}),
	}
}

func newSettleCmd() *cobra.Command {
	var examID string

	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Settle rewards for pending exams, or a single exam with --exam",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if examID == "" {
				return withApp(func(ctx context.Context, a *app.App) (any, error) {
					return a.Settlement.SettlePending(ctx)
				})(cmd, args)
			}

			id, err := uuid.Parse(examID)
			if err != nil {
				return fmt.Errorf("invalid --exam: %w", err)
			}
			return withApp(func(ctx context.Context, a *app.App) (any, error) {
				return a.Settlement.SettleByID(ctx, id)
			})(cmd, args)
		},
	}

	cmd.Flags().StringVar(&examID, "exam", "", "settle only this exam ID")
	return cmd
}

func newDispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Enqueue the next pending result notification",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app.App) (any, error) {
			enqueued, err := a.Notifications.DispatchNext(ctx)
			return map[string]bool{"enqueued": enqueued}, err
		}),
	}
}

// withApp loads config, connects the pipeline, runs fn and prints its
// report as JSON. The report is printed even when fn fails.
func withApp(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg := config.Load()
		log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.TriggerTimeout)
		defer cancel()

		a, err := app.New(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		report, runErr := fn(ctx, a)
		if err := printReport(cmd, report); err != nil {
			return err
		}
		return runErr
	}
}

func printReport(cmd *cobra.Command, report any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
