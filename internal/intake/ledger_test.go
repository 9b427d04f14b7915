package intake_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/require"

	"mailroom/internal/intake"
)

const ledgerPath = "/state/processed_files.json"

func TestLoadBootstrapsMissingLedger(t *testing.T) {
	fsys := memfs.New()
	store := intake.NewStore(fsys, ledgerPath, false, nil)

	ledger, err := store.Load()
	require.NoError(t, err)
	require.Zero(t, ledger.Len())
	require.False(t, ledger.Recovered())
	require.JSONEq(t, `{}`, readFile(t, fsys, ledgerPath))
}

func TestSaveRoundTripPreservesUnknownFields(t *testing.T) {
	fsys := memfs.New()
	writeFile(t, fsys, ledgerPath, `{
  "aaa": {"file_name": "a.pdf", "file_path": "/inbox/a.pdf", "processed_at": "2025-08-01T10:11:12.123456", "reviewer": "ops"},
  "bbb": "legacy-value"
}`)
	store := intake.NewStore(fsys, ledgerPath, false, nil)

	ledger, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, 2, ledger.Len())

	rec, ok := ledger.Get("aaa")
	require.True(t, ok)
	require.Equal(t, "a.pdf", rec.FileName)
	require.Equal(t, 2025, rec.ProcessedAt.Year())
	require.Equal(t, 123456000, rec.ProcessedAt.Nanosecond())

	require.NoError(t, ledger.Add(intake.Record{
		ContentDigest: "ccc",
		FileName:      "c.pdf",
		FilePath:      "/inbox/c.pdf",
		ProcessedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}))
	require.NoError(t, store.Save(ledger))

	var persisted map[string]any
	require.NoError(t, json.Unmarshal([]byte(readFile(t, fsys, ledgerPath)), &persisted))
	require.Len(t, persisted, 3)
	require.Equal(t, "legacy-value", persisted["bbb"])
	aaa := persisted["aaa"].(map[string]any)
	require.Equal(t, "ops", aaa["reviewer"])
	ccc := persisted["ccc"].(map[string]any)
	require.Equal(t, "2026-01-02T03:04:05Z", ccc["processed_at"])
	require.Equal(t, "/inbox/c.pdf", ccc["file_path"])
}

func TestAddNeverReplacesExistingDigest(t *testing.T) {
	ledger := intake.NewLedger()
	require.NoError(t, ledger.Add(intake.Record{ContentDigest: "d1", FileName: "first.pdf"}))
	require.Error(t, ledger.Add(intake.Record{ContentDigest: "d1", FileName: "second.pdf"}))
	require.Error(t, ledger.Add(intake.Record{FileName: "nodigest.pdf"}))

	rec, _ := ledger.Get("d1")
	require.Equal(t, "first.pdf", rec.FileName)
}

func TestRecordsNewestFirst(t *testing.T) {
	ledger := intake.NewLedger()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, ledger.Add(intake.Record{ContentDigest: "old", ProcessedAt: base}))
	require.NoError(t, ledger.Add(intake.Record{ContentDigest: "new", ProcessedAt: base.Add(time.Hour)}))
	require.NoError(t, ledger.Add(intake.Record{ContentDigest: "mid", ProcessedAt: base.Add(time.Minute)}))

	var order []string
	for _, rec := range ledger.Records() {
		order = append(order, rec.ContentDigest)
	}
	require.Equal(t, []string{"new", "mid", "old"}, order)
}

func TestLoadCorruptLedgerResetsAndKeepsBackup(t *testing.T) {
	for name, payload := range map[string]string{
		"garbage":   "not json at all",
		"array":     `["a", "b"]`,
		"null":      "null",
		"truncated": `{"aaa": {"file_name": "a.pdf"`,
	} {
		t.Run(name, func(t *testing.T) {
			fsys := memfs.New()
			writeFile(t, fsys, ledgerPath, payload)

			ledger, err := intake.NewStore(fsys, ledgerPath, false, nil).Load()
			require.NoError(t, err)
			require.Zero(t, ledger.Len())
			require.True(t, ledger.Recovered())
			require.Equal(t, payload, readFile(t, fsys, ledgerPath+".corrupt"))
			require.JSONEq(t, `{}`, readFile(t, fsys, ledgerPath))

			again, err := intake.NewStore(fsys, ledgerPath, false, nil).Load()
			require.NoError(t, err)
			require.False(t, again.Recovered())
		})
	}
}

func TestLoadEmptyFileIsCorruptWithoutBackup(t *testing.T) {
	fsys := memfs.New()
	writeFile(t, fsys, ledgerPath, "")

	ledger, err := intake.NewStore(fsys, ledgerPath, false, nil).Load()
	require.NoError(t, err)
	require.True(t, ledger.Recovered())
	_, statErr := fsys.Stat(ledgerPath + ".corrupt")
	require.Error(t, statErr)
}

func TestLoadKeepsCorruptLedgerWhenBackupFails(t *testing.T) {
	base := memfs.New()
	writeFile(t, base, ledgerPath, "{broken")
	fsys := &faultFS{Filesystem: base, failRename: true}

	ledger, err := intake.NewStore(fsys, ledgerPath, false, nil).Load()
	require.NoError(t, err)
	require.True(t, ledger.Recovered())
	require.Equal(t, "{broken", readFile(t, base, ledgerPath))
}

func TestSnapshotNeverWrites(t *testing.T) {
	fsys := memfs.New()
	store := intake.NewStore(fsys, ledgerPath, false, nil)

	ledger, err := store.Snapshot()
	require.NoError(t, err)
	require.Zero(t, ledger.Len())
	_, statErr := fsys.Stat(ledgerPath)
	require.Error(t, statErr)

	writeFile(t, fsys, ledgerPath, "not json")
	ledger, err = store.Snapshot()
	require.NoError(t, err)
	require.True(t, ledger.Recovered())
	require.Equal(t, "not json", readFile(t, fsys, ledgerPath))
	_, statErr = fsys.Stat(ledgerPath + ".corrupt")
	require.Error(t, statErr)

	_, err = intake.NewStore(fsys, ledgerPath, true, nil).Snapshot()
	require.ErrorIs(t, err, intake.ErrLedgerCorrupt)
}

func TestStrictStoreRejectsCorruptLedger(t *testing.T) {
	fsys := memfs.New()
	writeFile(t, fsys, ledgerPath, "{broken")

	_, err := intake.NewStore(fsys, ledgerPath, true, nil).Load()
	require.ErrorIs(t, err, intake.ErrLedgerCorrupt)
}

func TestSaveFailureLeavesPreviousLedger(t *testing.T) {
	base := memfs.New()
	writeFile(t, base, ledgerPath, `{"aaa": {"file_name": "a.pdf", "file_path": "/inbox/a.pdf", "processed_at": "2026-01-01T00:00:00Z"}}`)
	fsys := &faultFS{Filesystem: base, failRename: true}
	store := intake.NewStore(fsys, ledgerPath, false, nil)

	ledger, err := store.Load()
	require.NoError(t, err)
	require.NoError(t, ledger.Add(intake.Record{ContentDigest: "bbb", FileName: "b.pdf"}))

	err = store.Save(ledger)
	require.ErrorIs(t, err, intake.ErrPersist)

	reloaded, err := intake.NewStore(base, ledgerPath, false, nil).Load()
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.Len())
	require.False(t, reloaded.Has("bbb"))
}
