package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"mailroom/internal/logging"
)

// Observer receives intake events, typically for metrics.
type Observer interface {
	IntakeOutcome(status string)
	IntakeReadError()
}

// Options configures a Coordinator.
type Options struct {
	// Filesystem holds the watched folder and the ledger. Defaults to the host filesystem.
	Filesystem billy.Filesystem
	LedgerPath string
	// LockPath defaults to LedgerPath + ".lock".
	LockPath    string
	DisableLock bool
	LockTimeout time.Duration
	// StrictLedger turns a corrupt ledger into an error instead of a reset.
	StrictLedger bool
	Clock        func() time.Time
	Logger       *slog.Logger
	Observer     Observer
}

// Coordinator selects and records the next unprocessed file.
type Coordinator struct {
	fs          billy.Filesystem
	store       *Store
	lockPath    string
	lockTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger
	observer    Observer
}

// NewCoordinator builds a coordinator from opts.
func NewCoordinator(opts Options) *Coordinator {
	fsys := opts.Filesystem
	if fsys == nil {
		fsys = osfs.New("/")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	lockPath := opts.LockPath
	if lockPath == "" && !opts.DisableLock {
		lockPath = opts.LedgerPath + ".lock"
	}
	if opts.DisableLock {
		lockPath = ""
	}
	return &Coordinator{
		fs:          fsys,
		store:       NewStore(fsys, opts.LedgerPath, opts.StrictLedger, opts.Logger),
		lockPath:    lockPath,
		lockTimeout: opts.LockTimeout,
		now:         clock,
		logger:      logging.NewComponentLogger(opts.Logger, "intake"),
		observer:    opts.Observer,
	}
}

// LedgerPath returns the persisted ledger location.
func (c *Coordinator) LedgerPath() string { return c.store.Path() }

// NextUnprocessed scans dir for files with an accepted extension, hashes them
// in name order, and records the first digest absent from the ledger. The
// returned file is already committed as processed when the call returns.
func (c *Coordinator) NextUnprocessed(ctx context.Context, dir string, extensions []string) Outcome {
	outcome := c.nextUnprocessed(ctx, absPath(dir), extensions)
	outcome.Timestamp = c.now()
	if c.observer != nil {
		c.observer.IntakeOutcome(string(outcome.Status))
	}
	return outcome
}

func (c *Coordinator) nextUnprocessed(ctx context.Context, dir string, extensions []string) Outcome {
	logger := logging.WithContext(ctx, c.logger)

	names, err := ScanDirectory(c.fs, dir, extensions)
	if err != nil {
		if errors.Is(err, ErrDirectoryNotFound) {
			return errorOutcome(err, fmt.Sprintf("Attachments folder not found: %s", dir))
		}
		return errorOutcome(err, err.Error())
	}
	if len(names) == 0 {
		return Outcome{
			Status:  StatusNoFiles,
			Message: fmt.Sprintf("No matching files found in %s", dir),
		}
	}

	release, err := c.lock(ctx)
	if err != nil {
		logging.WarnWithContext(logger, "intake ledger lock unavailable", "ledger_lock_timeout",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "another mailroom process may be running intake"),
			logging.String(logging.FieldImpact, "this intake attempt was skipped"))
		return errorOutcome(err, err.Error())
	}
	defer release()

	ledger, err := c.store.Load()
	if err != nil {
		logging.ErrorWithContext(logger, "load intake ledger failed", "ledger_load_failed",
			logging.Error(err), logging.String("path", c.store.Path()))
		return errorOutcome(err, err.Error())
	}

	var skipped []SkippedFile
	for _, name := range names {
		path := filepath.Join(dir, name)
		digest, err := Digest(c.fs, path)
		if err != nil {
			skipped = append(skipped, SkippedFile{FileName: name, Error: err.Error()})
			if c.observer != nil {
				c.observer.IntakeReadError()
			}
			logging.WarnWithContext(logger, "skipping unreadable file", "intake_read_failed",
				logging.FileName(name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check file permissions"),
				logging.String(logging.FieldImpact, "file will be retried on the next intake"))
			continue
		}
		if ledger.Has(digest) {
			continue
		}

		rec := Record{
			ContentDigest: digest,
			FileName:      name,
			FilePath:      path,
			ProcessedAt:   c.now().UTC(),
		}
		if err := ledger.Add(rec); err != nil {
			return errorOutcome(newError(KindPersist, c.store.Path(), err), err.Error())
		}
		if err := c.store.Save(ledger); err != nil {
			logging.ErrorWithContext(logger, "persist intake ledger failed", "ledger_persist_failed",
				logging.Error(err),
				logging.FileName(name),
				logging.String(logging.FieldErrorHint, "check free space and permissions on the state directory"))
			return errorOutcome(err, err.Error())
		}
		logger.Info("new file recorded",
			logging.FileName(name),
			logging.Digest(digest),
			logging.Bool("ledger_reset", ledger.Recovered()))
		processedAt := rec.ProcessedAt
		return Outcome{
			Status:        StatusFound,
			FileName:      name,
			FilePath:      path,
			ContentDigest: digest,
			ProcessedAt:   &processedAt,
			Message:       fmt.Sprintf("New file detected and marked as processed: %s", name),
			Candidates:    len(names),
			Skipped:       skipped,
			LedgerReset:   ledger.Recovered(),
		}
	}

	logger.Debug("no unprocessed files", logging.Int("candidates", len(names)), logging.Int("skipped", len(skipped)))
	return Outcome{
		Status:      StatusAllProcessed,
		Message:     fmt.Sprintf("All %d files in folder have been processed", len(names)),
		Candidates:  len(names),
		Skipped:     skipped,
		LedgerReset: ledger.Recovered(),
	}
}

// Records returns the ledger entries, newest first, under a shared lock.
func (c *Coordinator) Records(ctx context.Context) ([]Record, error) {
	release, err := c.lockShared(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	ledger, err := c.store.Snapshot()
	if err != nil {
		return nil, err
	}
	return ledger.Records(), nil
}

func (c *Coordinator) lock(ctx context.Context) (func(), error) {
	if c.lockPath == "" {
		return func() {}, nil
	}
	return acquireLock(ctx, c.lockPath, c.lockTimeout, false)
}

func (c *Coordinator) lockShared(ctx context.Context) (func(), error) {
	if c.lockPath == "" {
		return func() {}, nil
	}
	return acquireLock(ctx, c.lockPath, c.lockTimeout, true)
}

func errorOutcome(err error, message string) Outcome {
	out := Outcome{Status: StatusError, Message: message, Err: err}
	var ie *Error
	if errors.As(err, &ie) {
		out.Kind = ie.Kind
	}
	return out
}

func absPath(dir string) string {
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}
