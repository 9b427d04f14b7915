package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"mailroom/internal/archive"
	"mailroom/internal/config"
	"mailroom/internal/intake"
	"mailroom/internal/logging"
	"mailroom/internal/metrics"
	"mailroom/internal/notifications"
	"mailroom/internal/workflow"
)

// Deps are the collaborators a daemon runs.
type Deps struct {
	Config      *config.Config
	Coordinator *intake.Coordinator
	Processor   *workflow.Processor
	Watcher     *workflow.Watcher
	Archive     *archive.Store
	Metrics     *metrics.Metrics
	Notifier    notifications.Service
	Logger      *slog.Logger
}

// Daemon runs the watcher and the HTTP API and enforces single-instance
// execution.
type Daemon struct {
	cfg         *config.Config
	coordinator *intake.Coordinator
	processor   *workflow.Processor
	watcher     *workflow.Watcher
	archive     *archive.Store
	metrics     *metrics.Metrics
	notifier    notifications.Service
	logger      *slog.Logger

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool                   `json:"running"`
	PID            int                    `json:"pid"`
	AttachmentsDir string                 `json:"attachments_dir"`
	LedgerPath     string                 `json:"ledger_path"`
	ArchivePath    string                 `json:"archive_path"`
	LockFilePath   string                 `json:"lock_file_path"`
	LedgerEntries  int                    `json:"ledger_entries"`
	Documents      map[archive.Status]int `json:"documents,omitempty"`
	Watcher        workflow.Status        `json:"watcher"`
	Errors         []string               `json:"errors,omitempty"`
}

// New constructs a daemon with initialized dependencies.
func New(deps Deps) (*Daemon, error) {
	if deps.Config == nil || deps.Coordinator == nil || deps.Processor == nil || deps.Watcher == nil {
		return nil, errors.New("daemon requires config, intake coordinator, processor, and watcher")
	}
	logger := logging.NewComponentLogger(deps.Logger, "daemon")
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(deps.Config)
	}
	lockPath := deps.Config.LockPath()
	d := &Daemon{
		cfg:         deps.Config,
		coordinator: deps.Coordinator,
		processor:   deps.Processor,
		watcher:     deps.Watcher,
		archive:     deps.Archive,
		metrics:     deps.Metrics,
		notifier:    notifier,
		logger:      logger,
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
	}
	d.api = newAPIServer(deps.Config, d, deps.Logger)
	return d, nil
}

// Start acquires the daemon lock, launches the watcher and starts the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another mailroom daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.watcher.Run(runCtx); err != nil {
			d.logger.Error("watcher exited", logging.Error(err))
		}
	}()

	d.running.Store(true)
	d.logger.Info("mailroom daemon started",
		logging.String("lock", d.lockPath),
		logging.String("attachments_dir", d.cfg.Paths.AttachmentsDir),
		logging.String("api", d.APIAddress()))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_unlock_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if the next start fails"))
	}
	d.running.Store(false)
	d.logger.Info("mailroom daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.archive != nil {
		return d.archive.Close()
	}
	return nil
}

// APIAddress returns the bound API address, or "" when the API is disabled or
// not yet listening.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		AttachmentsDir: d.cfg.Paths.AttachmentsDir,
		LedgerPath:     d.coordinator.LedgerPath(),
		ArchivePath:    d.cfg.Paths.ArchivePath,
		LockFilePath:   d.lockPath,
		Watcher:        d.watcher.Status(),
	}
	if records, err := d.coordinator.Records(ctx); err != nil {
		status.Errors = append(status.Errors, "ledger: "+err.Error())
	} else {
		status.LedgerEntries = len(records)
	}
	if d.archive != nil {
		if counts, err := d.archive.CountByStatus(ctx); err != nil {
			status.Errors = append(status.Errors, "archive: "+err.Error())
		} else {
			status.Documents = counts
		}
	}
	return status
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
