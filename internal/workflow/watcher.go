package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mailroom/internal/logging"
	"mailroom/internal/services"
)

// Drainer is the part of Processor the watcher drives.
type Drainer interface {
	Drain(ctx context.Context) (Summary, error)
}

// Status is a snapshot of watcher progress.
type Status struct {
	Running   bool      `json:"running"`
	Passes    int       `json:"passes"`
	LastRunID string    `json:"last_run_id,omitempty"`
	LastRun   *Summary  `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	NextRunAt time.Time `json:"next_run_at,omitempty"`
}

// Watcher drains the attachments folder immediately and then once per
// interval until its context ends.
type Watcher struct {
	drainer  Drainer
	interval time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	status Status
}

// NewWatcher builds a watcher. Intervals below one second are raised to one
// second.
func NewWatcher(drainer Drainer, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval < time.Second {
		interval = time.Second
	}
	return &Watcher{
		drainer:  drainer,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "watcher"),
	}
}

// Run blocks until ctx is done. Drain errors are logged and retried on the
// next tick.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.status.Running {
		w.mu.Unlock()
		return errors.New("watcher already running")
	}
	w.status.Running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.status.Running = false
		w.mu.Unlock()
	}()

	w.logger.Info("watcher started", logging.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.pass(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single drain pass and records it in Status.
func (w *Watcher) RunOnce(ctx context.Context) (Summary, error) {
	return w.pass(ctx)
}

func (w *Watcher) pass(ctx context.Context) (Summary, error) {
	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, w.logger)

	summary, err := w.drainer.Drain(ctx)

	w.mu.Lock()
	w.status.Passes++
	w.status.LastRunID = runID
	w.status.LastRun = &summary
	w.status.NextRunAt = time.Now().Add(w.interval)
	if err != nil {
		w.status.LastError = err.Error()
	} else {
		w.status.LastError = ""
	}
	w.mu.Unlock()

	switch {
	case err == nil:
		if summary.Processed+summary.Failed > 0 {
			logger.Info("drain pass complete",
				logging.Int("processed", summary.Processed),
				logging.Int("failed", summary.Failed),
				logging.Duration("duration", summary.Duration()))
		} else {
			logger.Debug("drain pass found nothing new", logging.String("status", string(summary.Last.Status)))
		}
	case errors.Is(err, context.Canceled):
	default:
		logging.WarnWithContext(logger, "drain pass failed", "drain_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, summary.Last.Message),
			logging.String(logging.FieldImpact, "files will be retried on the next pass"))
	}
	return summary, err
}

// Status returns a copy of the current watcher state.
func (w *Watcher) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	snapshot := w.status
	if snapshot.LastRun != nil {
		last := *snapshot.LastRun
		snapshot.LastRun = &last
	}
	return snapshot
}
