package config

const (
	defaultAttachmentsDir    = "attachments"
	defaultStateDir          = "~/.local/share/mailroom"
	defaultLogDir            = "~/.local/share/mailroom/logs"
	defaultLedgerFile        = "processed_files.json"
	defaultArchiveFile       = "archive.db"
	defaultAPIBind           = "127.0.0.1:7590"
	defaultPollInterval      = 10
	defaultLockTimeout       = 5
	defaultLLMBaseURL        = "https://api.groq.com/openai/v1/chat/completions"
	defaultLLMModel          = "openai/gpt-oss-120b"
	defaultLLMReferer        = "https://github.com/mailroom/mailroom"
	defaultLLMTitle          = "mailroom"
	defaultLLMTimeoutSeconds = 60
	defaultNotifyTimeout     = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultMCPName           = "mailroom"
	defaultMCPVersion        = "0.1.0"
)

var defaultExtensions = []string{".pdf", ".xls", ".xlsx"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			AttachmentsDir: defaultAttachmentsDir,
			StateDir:       defaultStateDir,
			LogDir:         defaultLogDir,
			APIBind:        defaultAPIBind,
		},
		Intake: Intake{
			Extensions:   append([]string(nil), defaultExtensions...),
			PollInterval: defaultPollInterval,
			LockTimeout:  defaultLockTimeout,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Found:          true,
			Comparisons:    true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		MCP: MCP{
			Name:    defaultMCPName,
			Version: defaultMCPVersion,
		},
	}
}
