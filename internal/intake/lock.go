package intake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 50 * time.Millisecond

// acquireLock takes an advisory lock on path, waiting at most timeout. The lock
// file always lives on the host filesystem because flock needs a real
// descriptor. Shared locks are used for read-only ledger access.
func acquireLock(ctx context.Context, path string, timeout time.Duration, shared bool) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, newError(KindLock, path, fmt.Errorf("ensure lock directory: %w", err))
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fl := flock.New(path)
	var (
		locked bool
		err    error
	)
	if shared {
		locked, err = fl.TryRLockContext(lockCtx, lockRetryDelay)
	} else {
		locked, err = fl.TryLockContext(lockCtx, lockRetryDelay)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("held by another process after %s", timeout)
		}
		return nil, newError(KindLock, path, err)
	}
	if !locked {
		return nil, newError(KindLock, path, errors.New("held by another process"))
	}
	return func() { _ = fl.Unlock() }, nil
}
