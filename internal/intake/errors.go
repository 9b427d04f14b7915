package intake

import (
	"errors"
	"fmt"
)

// Kind classifies intake failures for callers and the outcome contract.
type Kind string

const (
	KindDirectoryNotFound Kind = "directory_not_found"
	KindFileRead          Kind = "file_read_error"
	KindLedgerCorrupt     Kind = "ledger_corrupt"
	KindPersist           Kind = "persist_error"
	KindLock              Kind = "lock_error"
)

var (
	ErrDirectoryNotFound = errors.New("directory not found")
	ErrFileRead          = errors.New("file read error")
	ErrLedgerCorrupt     = errors.New("ledger corrupt")
	ErrPersist           = errors.New("ledger persist error")
	ErrLock              = errors.New("ledger lock unavailable")
)

// Error is the typed failure returned by intake operations.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel that corresponds to the error kind.
func (e *Error) Is(target error) bool {
	return target == sentinel(e.Kind)
}

// ErrorKind reports the stable kind string.
func (e *Error) ErrorKind() string { return string(e.Kind) }

func sentinel(kind Kind) error {
	switch kind {
	case KindDirectoryNotFound:
		return ErrDirectoryNotFound
	case KindFileRead:
		return ErrFileRead
	case KindLedgerCorrupt:
		return ErrLedgerCorrupt
	case KindPersist:
		return ErrPersist
	case KindLock:
		return ErrLock
	default:
		return nil
	}
}

func newError(kind Kind, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Err: err}
}
