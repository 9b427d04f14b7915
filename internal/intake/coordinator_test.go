package intake_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/gofrs/flock"
	"github.com/stretchr/testify/require"

	"mailroom/internal/intake"
)

var accepted = []string{".pdf", ".xls", ".xlsx"}

type countingObserver struct {
	outcomes   map[string]int
	readErrors int
}

func (o *countingObserver) IntakeOutcome(status string) {
	if o.outcomes == nil {
		o.outcomes = map[string]int{}
	}
	o.outcomes[status]++
}

func (o *countingObserver) IntakeReadError() { o.readErrors++ }

func newCoordinator(fsys billy.Filesystem, obs intake.Observer) *intake.Coordinator {
	return intake.NewCoordinator(intake.Options{
		Filesystem:  fsys,
		LedgerPath:  ledgerPath,
		DisableLock: true,
		Clock:       newStepClock().Now,
		Observer:    obs,
	})
}

func TestNameOrderDeterminism(t *testing.T) {
	fsys := newFS(t, map[string]string{"b.pdf": "bravo", "a.pdf": "alpha"})
	c := newCoordinator(fsys, nil)
	ctx := context.Background()

	first := c.NextUnprocessed(ctx, inbox, accepted)
	require.Equal(t, intake.StatusFound, first.Status)
	require.Equal(t, "a.pdf", first.FileName)
	require.Equal(t, "/inbox/a.pdf", first.FilePath)
	require.Equal(t, 2, first.Candidates)

	second := c.NextUnprocessed(ctx, inbox, accepted)
	require.Equal(t, intake.StatusFound, second.Status)
	require.Equal(t, "b.pdf", second.FileName)
	require.True(t, second.ProcessedAt.After(*first.ProcessedAt))
}

func TestRescanAfterConsumptionIsIdempotent(t *testing.T) {
	fsys := newFS(t, map[string]string{"a.pdf": "alpha", "b.xlsx": "bravo"})
	obs := &countingObserver{}
	c := newCoordinator(fsys, obs)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.Equal(t, intake.StatusFound, c.NextUnprocessed(ctx, inbox, accepted).Status)
	}
	for i := 0; i < 3; i++ {
		out := c.NextUnprocessed(ctx, inbox, accepted)
		require.Equal(t, intake.StatusAllProcessed, out.Status)
		require.True(t, out.Drained())
		require.Empty(t, out.FileName)
	}
	require.Equal(t, 2, obs.outcomes["found"])
	require.Equal(t, 3, obs.outcomes["all_processed"])
}

func TestIdenticalContentIsDeliveredOnce(t *testing.T) {
	fsys := newFS(t, map[string]string{"invoice.pdf": "same bytes", "invoice-copy.pdf": "same bytes"})
	c := newCoordinator(fsys, nil)
	ctx := context.Background()

	out := c.NextUnprocessed(ctx, inbox, accepted)
	require.Equal(t, intake.StatusFound, out.Status)
	require.Equal(t, "invoice-copy.pdf", out.FileName)

	require.Equal(t, intake.StatusAllProcessed, c.NextUnprocessed(ctx, inbox, accepted).Status)

	// A later copy under a new name is still known content.
	writeFile(t, fsys, "/inbox/0-renamed.pdf", "same bytes")
	require.Equal(t, intake.StatusAllProcessed, c.NextUnprocessed(ctx, inbox, accepted).Status)
}

func TestCorruptLedgerSelfHeals(t *testing.T) {
	fsys := newFS(t, map[string]string{"a.pdf": "alpha"})
	c := newCoordinator(fsys, nil)
	ctx := context.Background()

	require.Equal(t, intake.StatusFound, c.NextUnprocessed(ctx, inbox, accepted).Status)
	require.Equal(t, intake.StatusAllProcessed, c.NextUnprocessed(ctx, inbox, accepted).Status)

	writeFile(t, fsys, ledgerPath, "<<< definitely not json")

	out := c.NextUnprocessed(ctx, inbox, accepted)
	require.Equal(t, intake.StatusFound, out.Status)
	require.Equal(t, "a.pdf", out.FileName)
	require.True(t, out.LedgerReset)

	next := c.NextUnprocessed(ctx, inbox, accepted)
	require.Equal(t, intake.StatusAllProcessed, next.Status)
	require.False(t, next.LedgerReset)
}

func TestStrictLedgerReportsCorruption(t *testing.T) {
	fsys := newFS(t, map[string]string{"a.pdf": "alpha"})
	writeFile(t, fsys, ledgerPath, "<<<")
	c := intake.NewCoordinator(intake.Options{
		Filesystem:   fsys,
		LedgerPath:   ledgerPath,
		DisableLock:  true,
		StrictLedger: true,
	})

	out := c.NextUnprocessed(context.Background(), inbox, accepted)
	require.Equal(t, intake.StatusError, out.Status)
	require.Equal(t, intake.KindLedgerCorrupt, out.Kind)
	require.ErrorIs(t, out.Err, intake.ErrLedgerCorrupt)
}

func TestUnreadableFileDoesNotBlockIntake(t *testing.T) {
	base := newFS(t, map[string]string{"a-locked.pdf": "secret", "b-open.pdf": "public"})
	fsys := &faultFS{Filesystem: base, unreadable: map[string]bool{"a-locked.pdf": true}}
	obs := &countingObserver{}
	c := newCoordinator(fsys, obs)

	out := c.NextUnprocessed(context.Background(), inbox, accepted)
	require.Equal(t, intake.StatusFound, out.Status)
	require.Equal(t, "b-open.pdf", out.FileName)
	require.Len(t, out.Skipped, 1)
	require.Equal(t, "a-locked.pdf", out.Skipped[0].FileName)
	require.Equal(t, 1, obs.readErrors)

	// Once readable, the skipped file is offered normally.
	delete(fsys.unreadable, "a-locked.pdf")
	again := c.NextUnprocessed(context.Background(), inbox, accepted)
	require.Equal(t, intake.StatusFound, again.Status)
	require.Equal(t, "a-locked.pdf", again.FileName)
}

func TestOnlyUnreadableFilesReportsAllProcessed(t *testing.T) {
	base := newFS(t, map[string]string{"a.pdf": "alpha"})
	fsys := &faultFS{Filesystem: base, unreadable: map[string]bool{"a.pdf": true}}

	out := newCoordinator(fsys, nil).NextUnprocessed(context.Background(), inbox, accepted)
	require.Equal(t, intake.StatusAllProcessed, out.Status)
	require.Len(t, out.Skipped, 1)
}

func TestEmptyDirectoryReportsNoFiles(t *testing.T) {
	fsys := newFS(t, map[string]string{"notes.txt": "not an invoice"})

	out := newCoordinator(fsys, nil).NextUnprocessed(context.Background(), inbox, accepted)
	require.Equal(t, intake.StatusNoFiles, out.Status)
	require.Empty(t, out.Kind)
	require.Nil(t, out.Err)
}

func TestMissingDirectoryReportsError(t *testing.T) {
	fsys := newFS(t, nil)

	out := newCoordinator(fsys, nil).NextUnprocessed(context.Background(), "/nowhere", accepted)
	require.Equal(t, intake.StatusError, out.Status)
	require.Equal(t, intake.KindDirectoryNotFound, out.Kind)
	require.Contains(t, out.Message, "/nowhere")
	require.ErrorIs(t, out.Err, intake.ErrDirectoryNotFound)
}

func TestPersistFailureIsReportedAndNotCommitted(t *testing.T) {
	base := newFS(t, map[string]string{"a.pdf": "alpha"})
	writeFile(t, base, ledgerPath, "{}")
	fsys := &faultFS{Filesystem: base, failRename: true}
	c := newCoordinator(fsys, nil)

	out := c.NextUnprocessed(context.Background(), inbox, accepted)
	require.Equal(t, intake.StatusError, out.Status)
	require.Equal(t, intake.KindPersist, out.Kind)
	require.JSONEq(t, "{}", readFile(t, base, ledgerPath))

	fsys.failRename = false
	retry := c.NextUnprocessed(context.Background(), inbox, accepted)
	require.Equal(t, intake.StatusFound, retry.Status)
	require.Equal(t, "a.pdf", retry.FileName)
}

func TestLedgerLockTimeout(t *testing.T) {
	fsys := newFS(t, map[string]string{"a.pdf": "alpha"})
	lockPath := filepath.Join(t.TempDir(), "processed_files.json.lock")

	holder := flock.New(lockPath)
	locked, err := holder.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	c := intake.NewCoordinator(intake.Options{
		Filesystem:  fsys,
		LedgerPath:  ledgerPath,
		LockPath:    lockPath,
		LockTimeout: 150 * time.Millisecond,
	})
	out := c.NextUnprocessed(context.Background(), inbox, accepted)
	require.Equal(t, intake.StatusError, out.Status)
	require.Equal(t, intake.KindLock, out.Kind)

	require.NoError(t, holder.Unlock())
	require.Equal(t, intake.StatusFound, c.NextUnprocessed(context.Background(), inbox, accepted).Status)
}

func TestRecordsListsLedgerNewestFirst(t *testing.T) {
	fsys := newFS(t, map[string]string{"a.pdf": "alpha", "b.pdf": "bravo"})
	c := intake.NewCoordinator(intake.Options{
		Filesystem: fsys,
		LedgerPath: ledgerPath,
		LockPath:   filepath.Join(t.TempDir(), "ledger.lock"),
		Clock:      newStepClock().Now,
	})
	ctx := context.Background()
	c.NextUnprocessed(ctx, inbox, accepted)
	c.NextUnprocessed(ctx, inbox, accepted)

	records, err := c.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "b.pdf", records[0].FileName)
	require.Equal(t, "a.pdf", records[1].FileName)
}

func TestRecordsDoesNotCreateLedger(t *testing.T) {
	ledger := filepath.Join(t.TempDir(), "state", "processed_files.json")
	c := intake.NewCoordinator(intake.Options{LedgerPath: ledger})

	records, err := c.Records(context.Background())
	require.NoError(t, err)
	require.Empty(t, records)
	_, statErr := os.Stat(ledger)
	require.True(t, os.IsNotExist(statErr), "ledger should not exist, stat err=%v", statErr)
}

func TestHostFilesystemIntake(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "attachments")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.PDF"), []byte("bravo"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.xlsx"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "c.pdf"), []byte("charlie"), 0o644))
	ledger := filepath.Join(base, "state", "processed_files.json")
	c := intake.NewCoordinator(intake.Options{LedgerPath: ledger})
	ctx := context.Background()

	first := c.NextUnprocessed(ctx, dir, accepted)
	require.Equal(t, intake.StatusFound, first.Status, first.Message)
	require.Equal(t, "a.xlsx", first.FileName)
	require.Equal(t, filepath.Join(dir, "a.xlsx"), first.FilePath)

	second := c.NextUnprocessed(ctx, dir, accepted)
	require.Equal(t, intake.StatusFound, second.Status, second.Message)
	require.Equal(t, "b.PDF", second.FileName)

	require.Equal(t, intake.StatusAllProcessed, c.NextUnprocessed(ctx, dir, accepted).Status)

	data, err := os.ReadFile(ledger)
	require.NoError(t, err)
	var persisted map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &persisted))
	require.Len(t, persisted, 2)
	require.Equal(t, "a.xlsx", persisted[first.ContentDigest]["file_name"])
	_, err = os.Stat(ledger + ".lock")
	require.NoError(t, err)
}

func TestConcurrentCoordinatorsDeliverEachFileOnce(t *testing.T) {
	const (
		workers = 8
		files   = 20
	)
	base := t.TempDir()
	dir := filepath.Join(base, "attachments")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for i := range files {
		name := fmt.Sprintf("invoice-%02d.pdf", i)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("invoice body "+name), 0o644))
	}
	ledger := filepath.Join(base, "state", "processed_files.json")

	var (
		mu        sync.Mutex
		delivered = map[string]int{}
		wg        sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := intake.NewCoordinator(intake.Options{
				LedgerPath:  ledger,
				LockTimeout: 30 * time.Second,
			})
			for {
				out := c.NextUnprocessed(context.Background(), dir, accepted)
				switch {
				case out.Status == intake.StatusFound:
					mu.Lock()
					delivered[out.FileName]++
					mu.Unlock()
				case out.Drained():
					return
				default:
					t.Errorf("unexpected outcome %s: %s", out.Status, out.Message)
					return
				}
			}
		}()
	}
	wg.Wait()

	require.Len(t, delivered, files)
	for name, count := range delivered {
		require.Equal(t, 1, count, "%s delivered %d times", name, count)
	}

	records, err := intake.NewCoordinator(intake.Options{LedgerPath: ledger}).Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, files)
}

func TestOutcomeJSONContract(t *testing.T) {
	fsys := newFS(t, map[string]string{"a.pdf": "alpha"})
	out := newCoordinator(fsys, nil).NextUnprocessed(context.Background(), inbox, accepted)

	data, err := json.Marshal(out)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "found", decoded["status"])
	require.Equal(t, "a.pdf", decoded["file_name"])
	require.Equal(t, "/inbox/a.pdf", decoded["file_path"])
	require.Len(t, decoded["content_digest"], 64)
	require.Contains(t, decoded, "processed_at")
	require.Contains(t, decoded, "timestamp")
	require.NotContains(t, decoded, "kind")
	require.NotContains(t, decoded, "Err")

	record, ok := out.Record()
	require.True(t, ok)
	require.Equal(t, out.ContentDigest, record.ContentDigest)
}
