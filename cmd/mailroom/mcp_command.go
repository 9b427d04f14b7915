package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mailroom/internal/mcptools"
)

func newMCPCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve file_intake, pdf_reader and compare_invoices as MCP tools on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := ctx.openApp(appOptions{withArchive: true})
			if err != nil {
				return err
			}
			defer a.Close()

			srv := mcptools.New(mcptools.Options{
				Name:       a.cfg.MCP.Name,
				Version:    a.cfg.MCP.Version,
				Dir:        a.cfg.Paths.AttachmentsDir,
				Extensions: a.cfg.Intake.Extensions,
				Intake:     a.coordinator,
				Comparer:   a.processor,
				Logger:     a.logger,
			})
			a.logger.Info("mcp server listening on stdio")
			return srv.ServeStdio(runCtx, os.Stdin, os.Stdout)
		},
	}
}
