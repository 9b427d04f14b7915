package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"mailroom/internal/archive"
	"mailroom/internal/config"
	"mailroom/internal/intake"
	"mailroom/internal/invoice"
	"mailroom/internal/logging"
	"mailroom/internal/metrics"
	"mailroom/internal/notifications"
	"mailroom/internal/services/llm"
	"mailroom/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// app holds the collaborators one command invocation needs.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	metrics     *metrics.Metrics
	coordinator *intake.Coordinator
	archive     *archive.Store
	notifier    notifications.Service
	analyzer    *invoice.Analyzer
	processor   *workflow.Processor
}

type appOptions struct {
	// daemonLogging sends logs to stdout instead of stderr.
	daemonLogging bool
	// withArchive opens the SQLite archive.
	withArchive bool
	// analyze overrides intake.analyze when set.
	analyze *bool
}

func (c *commandContext) openApp(opts appOptions) (*app, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	var logger *slog.Logger
	if opts.daemonLogging {
		logger, err = logging.NewFromConfig(cfg)
	} else {
		logger, err = logging.NewForStdio(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics.New(),
		notifier: notifications.NewService(cfg),
	}
	a.coordinator = intake.NewCoordinator(intake.Options{
		LedgerPath:   cfg.Paths.LedgerPath,
		LockTimeout:  cfg.LockTimeout(),
		StrictLedger: cfg.Intake.StrictLedger,
		Logger:       logger,
		Observer:     a.metrics,
	})

	var completer invoice.Completer
	if cfg.LLMEnabled() {
		llmCfg := cfg.GetLLM()
		completer = llm.NewClient(llm.Config{
			APIKey:         llmCfg.APIKey,
			BaseURL:        llmCfg.BaseURL,
			Model:          llmCfg.Model,
			Referer:        llmCfg.Referer,
			Title:          llmCfg.Title,
			TimeoutSeconds: llmCfg.TimeoutSeconds,
		}, llm.WithObserver(a.metrics.LLMRequest))
	}
	a.analyzer = invoice.NewAnalyzer(completer, logger)

	analyze := cfg.Intake.Analyze && cfg.LLMEnabled()
	if opts.analyze != nil {
		analyze = *opts.analyze
	}
	workflowOpts := workflow.Options{
		Dir:        cfg.Paths.AttachmentsDir,
		Extensions: cfg.Intake.Extensions,
		Analyze:    analyze,
		Intake:     a.coordinator,
		Analyzer:   a.analyzer,
		Notifier:   a.notifier,
		Metrics:    a.metrics,
		Logger:     logger,
	}
	if opts.withArchive {
		store, err := archive.Open(cfg.Paths.ArchivePath)
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		a.archive = store
		workflowOpts.Archive = store
	}
	a.processor = workflow.NewProcessor(workflowOpts)
	return a, nil
}

func (a *app) Close() error {
	if a == nil || a.archive == nil {
		return nil
	}
	return a.archive.Close()
}

func (a *app) requireLLM() error {
	if !a.cfg.LLMEnabled() {
		return errors.New("llm api key not configured; set [llm] api_key or export GROQ_API_KEY")
	}
	return nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
