package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mailroom/internal/intake"
	"mailroom/internal/workflow"
)

func newIntakeCommand(ctx *commandContext) *cobra.Command {
	intakeCmd := &cobra.Command{
		Use:   "intake",
		Short: "Claim files from the attachments folder",
	}
	intakeCmd.AddCommand(newIntakeNextCommand(ctx))
	intakeCmd.AddCommand(newIntakeDrainCommand(ctx))
	intakeCmd.AddCommand(newIntakeWatchCommand(ctx))
	return intakeCmd
}

func newIntakeNextCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Record and print the next unprocessed file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			outcome := a.coordinator.NextUnprocessed(cmd.Context(), a.cfg.Paths.AttachmentsDir, a.cfg.Intake.Extensions)
			if jsonOutput {
				if err := writeJSON(cmd, outcome); err != nil {
					return err
				}
			} else {
				printOutcome(cmd.OutOrStdout(), outcome)
			}
			if outcome.Status == intake.StatusError {
				return outcome.Err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newIntakeDrainCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var analyze bool
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Process every unprocessed file once and archive the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := appOptions{withArchive: true}
			if cmd.Flags().Changed("analyze") {
				opts.analyze = &analyze
			}
			a, err := ctx.openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if analyze {
				if err := a.requireLLM(); err != nil {
					return err
				}
			}

			summary, drainErr := a.processor.Drain(cmd.Context())
			if jsonOutput {
				if err := writeJSON(cmd, summary); err != nil {
					return err
				}
			} else {
				printSummary(cmd.OutOrStdout(), summary)
			}
			return drainErr
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&analyze, "analyze", false, "Extract invoice fields with the LLM (overrides intake.analyze)")
	return cmd
}

func newIntakeWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Drain the attachments folder on every poll interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := ctx.openApp(appOptions{withArchive: true})
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s every %s (Ctrl+C to stop)\n", a.cfg.Paths.AttachmentsDir, a.cfg.PollInterval())
			watcher := workflow.NewWatcher(a.processor, a.cfg.PollInterval(), a.logger)
			if err := watcher.Run(runCtx); err != nil && runCtx.Err() == nil {
				return err
			}
			status := watcher.Status()
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped after %d passes\n", status.Passes)
			return nil
		},
	}
}

func printOutcome(out io.Writer, outcome intake.Outcome) {
	switch outcome.Status {
	case intake.StatusFound:
		fmt.Fprintf(out, "Found: %s\n", outcome.FileName)
		fmt.Fprintf(out, "  Path:   %s\n", outcome.FilePath)
		fmt.Fprintf(out, "  Digest: %s\n", outcome.ContentDigest)
		if outcome.ProcessedAt != nil {
			fmt.Fprintf(out, "  Recorded: %s\n", outcome.ProcessedAt.Format("2006-01-02 15:04:05"))
		}
	case intake.StatusError:
		fmt.Fprintf(out, "Error (%s): %s\n", outcome.Kind, outcome.Message)
	default:
		fmt.Fprintln(out, outcome.Message)
	}
	if outcome.LedgerReset {
		fmt.Fprintln(out, "Ledger was unreadable and has been reset")
	}
	for _, skipped := range outcome.Skipped {
		fmt.Fprintf(out, "Skipped %s: %s\n", skipped.FileName, skipped.Error)
	}
}

func printSummary(out io.Writer, summary workflow.Summary) {
	fmt.Fprintf(out, "Processed: %d\n", summary.Processed)
	fmt.Fprintf(out, "Failed:    %d\n", summary.Failed)
	if summary.Skipped > 0 {
		fmt.Fprintf(out, "Skipped:   %d\n", summary.Skipped)
	}
	fmt.Fprintf(out, "Duration:  %s\n", summary.Duration().Round(time.Millisecond))
	if summary.Last.Message != "" {
		fmt.Fprintf(out, "Last:      %s\n", summary.Last.Message)
	}
}
