package intake

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sort"

	billy "github.com/go-git/go-billy/v5"

	"mailroom/internal/fileutil"
	"mailroom/internal/logging"
)

// Ledger is an in-memory snapshot of the persisted digest to record mapping.
// Snapshots are single use: load one, decide, save it, discard it.
type Ledger struct {
	records   map[string]Record
	recovered bool
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{records: make(map[string]Record)}
}

// Has reports whether digest was already processed.
func (l *Ledger) Has(digest string) bool {
	_, ok := l.records[digest]
	return ok
}

// Get returns the record stored for digest.
func (l *Ledger) Get(digest string) (Record, bool) {
	rec, ok := l.records[digest]
	return rec, ok
}

// Add records a new digest. Existing entries are never replaced.
func (l *Ledger) Add(rec Record) error {
	if rec.ContentDigest == "" {
		return errors.New("content digest cannot be empty")
	}
	if _, exists := l.records[rec.ContentDigest]; exists {
		return fmt.Errorf("digest %s already recorded", rec.ContentDigest)
	}
	l.records[rec.ContentDigest] = rec
	return nil
}

// Len returns the number of recorded digests.
func (l *Ledger) Len() int { return len(l.records) }

// Recovered reports whether this snapshot replaced a corrupt ledger file.
func (l *Ledger) Recovered() bool { return l.recovered }

// Records returns all entries sorted by ProcessedAt descending (newest first).
func (l *Ledger) Records() []Record {
	out := make([]Record, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ProcessedAt.Equal(out[j].ProcessedAt) {
			return out[i].ProcessedAt.After(out[j].ProcessedAt)
		}
		return out[i].ContentDigest < out[j].ContentDigest
	})
	return out
}

// Store persists ledgers as a single human-readable JSON document.
type Store struct {
	fs     billy.Filesystem
	path   string
	strict bool
	logger *slog.Logger
}

// NewStore creates a store for the ledger file at path. When strict is set a
// corrupt ledger is reported as ErrLedgerCorrupt instead of being reset.
func NewStore(fsys billy.Filesystem, path string, strict bool, logger *slog.Logger) *Store {
	return &Store{
		fs:     fsys,
		path:   path,
		strict: strict,
		logger: logging.NewComponentLogger(logger, "ledger"),
	}
}

// Path returns the ledger file location.
func (s *Store) Path() string { return s.path }

// Load reads the full ledger. A missing file is bootstrapped as an empty
// ledger. A file that is not a JSON object is backed up, replaced by an empty
// ledger and flagged as recovered, unless the store is strict.
func (s *Store) Load() (*Ledger, error) {
	return s.load(true)
}

// Snapshot reads the ledger without writing anything. A missing file reads as
// empty; a corrupt one reads as empty and recovered, or fails when strict.
func (s *Store) Snapshot() (*Ledger, error) {
	return s.load(false)
}

func (s *Store) load(repair bool) (*Ledger, error) {
	data, err := s.read()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, newError(KindFileRead, s.path, err)
		}
		if repair {
			if err := fileutil.WriteAtomic(s.fs, s.path, []byte("{}\n")); err != nil {
				return nil, newError(KindPersist, s.path, err)
			}
			s.logger.Info("created empty intake ledger", logging.String("path", s.path))
		}
		return NewLedger(), nil
	}

	var entries map[string]json.RawMessage
	decodeErr := json.Unmarshal(data, &entries)
	if decodeErr == nil && entries == nil {
		decodeErr = errors.New("ledger is null")
	}
	if decodeErr != nil {
		corrupt := newError(KindLedgerCorrupt, s.path, decodeErr)
		if s.strict {
			return nil, corrupt
		}
		if !repair {
			ledger := NewLedger()
			ledger.recovered = true
			return ledger, nil
		}
		return s.recover(data, corrupt)
	}

	ledger := NewLedger()
	for digest, raw := range entries {
		ledger.records[digest] = unmarshalEntry(digest, raw)
	}
	return ledger, nil
}

// recover backs up a corrupt ledger and replaces it with an empty one so the
// reset is reported once. Without a backup the corrupt file is left in place.
func (s *Store) recover(data []byte, corrupt *Error) (*Ledger, error) {
	backup := s.path + ".corrupt"
	attrs := []logging.Attr{
		logging.Error(corrupt),
		logging.String("path", s.path),
		logging.String(logging.FieldErrorHint, "inspect "+backup+" and restore entries by hand if needed"),
		logging.String(logging.FieldImpact, "previously processed files will be offered again"),
	}
	backedUp := true
	if len(bytes.TrimSpace(data)) > 0 {
		if err := fileutil.WriteAtomic(s.fs, backup, data); err != nil {
			backedUp = false
			attrs = append(attrs, logging.String("backup_error", err.Error()))
		} else {
			attrs = append(attrs, logging.String("backup_path", backup))
		}
	}
	if backedUp {
		if err := fileutil.WriteAtomic(s.fs, s.path, []byte("{}\n")); err != nil {
			attrs = append(attrs, logging.String("reset_error", err.Error()))
		}
	}
	logging.WarnWithContext(s.logger, "intake ledger is corrupt; starting from an empty ledger", "ledger_corrupt", attrs...)
	ledger := NewLedger()
	ledger.recovered = true
	return ledger, nil
}

// Save overwrites the persisted ledger with the full content of l using an
// atomic replace, so a failed save leaves the previous file intact.
func (s *Store) Save(l *Ledger) error {
	entries := make(map[string]json.RawMessage, len(l.records))
	for digest, rec := range l.records {
		raw, err := rec.marshalEntry()
		if err != nil {
			return newError(KindPersist, s.path, fmt.Errorf("encode %s: %w", digest, err))
		}
		entries[digest] = raw
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return newError(KindPersist, s.path, err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteAtomic(s.fs, s.path, data); err != nil {
		return newError(KindPersist, s.path, err)
	}
	return nil
}

func (s *Store) read() ([]byte, error) {
	f, err := s.fs.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
