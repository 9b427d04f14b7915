package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeIntake()
	c.normalizeLLM()
	c.normalizeNotifications()
	c.normalizeLogging()
	c.normalizeMCP()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.AttachmentsDir) == "" {
		c.Paths.AttachmentsDir = defaultAttachmentsDir
	}
	if c.Paths.AttachmentsDir, err = expandPath(c.Paths.AttachmentsDir); err != nil {
		return fmt.Errorf("paths.attachments_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LedgerPath) == "" {
		c.Paths.LedgerPath = filepath.Join(c.Paths.StateDir, defaultLedgerFile)
	}
	if c.Paths.LedgerPath, err = expandPath(c.Paths.LedgerPath); err != nil {
		return fmt.Errorf("paths.ledger_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.ArchivePath) == "" {
		c.Paths.ArchivePath = filepath.Join(c.Paths.StateDir, defaultArchiveFile)
	}
	if c.Paths.ArchivePath, err = expandPath(c.Paths.ArchivePath); err != nil {
		return fmt.Errorf("paths.archive_path: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("MAILROOM_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeIntake() {
	if len(c.Intake.Extensions) == 0 {
		c.Intake.Extensions = append([]string(nil), defaultExtensions...)
	} else {
		exts := make([]string, 0, len(c.Intake.Extensions))
		seen := make(map[string]struct{}, len(c.Intake.Extensions))
		for _, ext := range c.Intake.Extensions {
			normalized := strings.ToLower(strings.TrimSpace(ext))
			if normalized == "" {
				continue
			}
			if !strings.HasPrefix(normalized, ".") {
				normalized = "." + normalized
			}
			if _, exists := seen[normalized]; exists {
				continue
			}
			seen[normalized] = struct{}{}
			exts = append(exts, normalized)
		}
		c.Intake.Extensions = exts
	}
	if c.Intake.PollInterval <= 0 {
		c.Intake.PollInterval = defaultPollInterval
	}
	if c.Intake.LockTimeout <= 0 {
		c.Intake.LockTimeout = defaultLockTimeout
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("GROQ_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if value, ok := os.LookupEnv("OPENAI_API_BASE"); ok && strings.TrimSpace(value) != "" {
		c.LLM.BaseURL = chatCompletionsURL(value)
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if value, ok := os.LookupEnv("OPENAI_MODEL_NAME"); ok && strings.TrimSpace(value) != "" {
		c.LLM.Model = strings.TrimSpace(value)
	}
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

// chatCompletionsURL accepts either an API root (".../openai/v1") or a full
// chat completions endpoint.
func chatCompletionsURL(value string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(value), "/")
	if strings.HasSuffix(trimmed, "/chat/completions") {
		return trimmed
	}
	return trimmed + "/chat/completions"
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeMCP() {
	c.MCP.Name = strings.TrimSpace(c.MCP.Name)
	if c.MCP.Name == "" {
		c.MCP.Name = defaultMCPName
	}
	c.MCP.Version = strings.TrimSpace(c.MCP.Version)
	if c.MCP.Version == "" {
		c.MCP.Version = defaultMCPVersion
	}
}
