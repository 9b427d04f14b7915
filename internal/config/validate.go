package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateIntake(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.AttachmentsDir) == "" {
		return errors.New("paths.attachments_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LedgerPath) == "" {
		return errors.New("paths.ledger_path must be set")
	}
	if c.Paths.LedgerPath == c.Paths.ArchivePath {
		return errors.New("paths.ledger_path and paths.archive_path must differ")
	}
	return nil
}

func (c *Config) validateIntake() error {
	if len(c.Intake.Extensions) == 0 {
		return errors.New("intake.extensions must include at least one extension")
	}
	for _, ext := range c.Intake.Extensions {
		if ext == "." || strings.ContainsAny(ext, `/\`) {
			return fmt.Errorf("intake.extensions: invalid extension %q", ext)
		}
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	return ensurePositiveMap(map[string]int{
		"intake.poll_interval":          c.Intake.PollInterval,
		"intake.lock_timeout":           c.Intake.LockTimeout,
		"llm.timeout_seconds":           c.LLM.TimeoutSeconds,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
