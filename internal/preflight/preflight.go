package preflight

import (
	"context"

	"mailroom/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
// The LLM check only runs when an API key is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryReadable("Attachments directory", cfg.Paths.AttachmentsDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckFreeSpace("State free space", cfg.Paths.StateDir, MinFreeBytes),
	}

	if cfg.LLMEnabled() {
		results = append(results, CheckLLM(ctx, "Invoice LLM", cfg.GetLLM()))
	} else {
		results = append(results, Result{Name: "Invoice LLM", Passed: true, Detail: "Disabled (no API key)"})
	}

	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
