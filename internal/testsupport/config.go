package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"mailroom/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The attachments folder is created so intake finds an empty inbox.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.AttachmentsDir = filepath.Join(base, "attachments")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "state", "logs")
	cfgVal.Paths.LedgerPath = filepath.Join(base, "state", "processed_files.json")
	cfgVal.Paths.ArchivePath = filepath.Join(base, "state", "archive.db")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.LLM.APIKey = ""
	cfgVal.Notifications.NtfyTopic = ""

	if err := os.MkdirAll(cfgVal.Paths.AttachmentsDir, 0o755); err != nil {
		t.Fatalf("mkdir attachments: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithLLM points the LLM settings at baseURL with a test key.
func WithLLM(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.APIKey = "test-key"
		b.cfg.LLM.BaseURL = baseURL
		b.cfg.LLM.TimeoutSeconds = 5
	}
}

// WithAPIToken requires bearer authentication on the daemon API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithAnalyze enables per-document invoice analysis.
func WithAnalyze() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Intake.Analyze = true
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.AttachmentsDir)
}
