package testsupport

import (
	"testing"

	"mailroom/internal/archive"
	"mailroom/internal/config"
)

// MustOpenArchive opens the archive configured in cfg and registers cleanup.
func MustOpenArchive(t testing.TB, cfg *config.Config) *archive.Store {
	t.Helper()

	store, err := archive.Open(cfg.Paths.ArchivePath)
	if err != nil {
		t.Fatalf("archive.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
