package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"mailroom/internal/daemon"
	"mailroom/internal/logging"
	"mailroom/internal/workflow"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Watch the attachments folder and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := ctx.openApp(appOptions{daemonLogging: true, withArchive: true})
			if err != nil {
				return err
			}

			pidPath := filepath.Join(a.cfg.Paths.StateDir, "mailroom.pid")
			if err := writePIDFile(pidPath); err != nil {
				_ = a.Close()
				return fmt.Errorf("write pid file: %w", err)
			}
			defer os.Remove(pidPath)

			d, err := daemon.New(daemon.Deps{
				Config:      a.cfg,
				Coordinator: a.coordinator,
				Processor:   a.processor,
				Watcher:     workflow.NewWatcher(a.processor, a.cfg.PollInterval(), a.logger),
				Archive:     a.archive,
				Metrics:     a.metrics,
				Notifier:    a.notifier,
				Logger:      a.logger,
			})
			if err != nil {
				_ = a.Close()
				return fmt.Errorf("create daemon: %w", err)
			}
			// The daemon owns the archive from here on.
			defer d.Close()

			if err := d.Start(signalCtx); err != nil {
				return err
			}
			if addr := d.APIAddress(); addr != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "API listening on http://%s\n", addr)
			}

			<-signalCtx.Done()
			a.logger.Info("mailroom daemon shutting down", logging.String("reason", signalCtx.Err().Error()))
			return nil
		},
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
