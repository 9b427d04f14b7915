package intake

import "time"

// Status enumerates intake outcomes.
type Status string

const (
	StatusFound        Status = "found"
	StatusNoFiles      Status = "no_files"
	StatusAllProcessed Status = "all_processed"
	StatusError        Status = "error"
)

// SkippedFile describes a candidate that could not be hashed.
type SkippedFile struct {
	FileName string `json:"file_name"`
	Error    string `json:"error"`
}

// Outcome is the result of one NextUnprocessed call. Callers poll until the
// status is no_files or all_processed.
type Outcome struct {
	Status        Status        `json:"status"`
	FileName      string        `json:"file_name,omitempty"`
	FilePath      string        `json:"file_path,omitempty"`
	ContentDigest string        `json:"content_digest,omitempty"`
	ProcessedAt   *time.Time    `json:"processed_at,omitempty"`
	Kind          Kind          `json:"kind,omitempty"`
	Message       string        `json:"message"`
	Candidates    int           `json:"candidates"`
	Skipped       []SkippedFile `json:"skipped,omitempty"`
	LedgerReset   bool          `json:"ledger_reset,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`

	Err error `json:"-"`
}

// Record returns the ledger entry carried by a found outcome.
func (o Outcome) Record() (Record, bool) {
	if o.Status != StatusFound || o.ProcessedAt == nil {
		return Record{}, false
	}
	return Record{
		ContentDigest: o.ContentDigest,
		FileName:      o.FileName,
		FilePath:      o.FilePath,
		ProcessedAt:   *o.ProcessedAt,
	}, true
}

// Drained reports whether the folder has nothing left to offer.
func (o Outcome) Drained() bool {
	return o.Status == StatusNoFiles || o.Status == StatusAllProcessed
}
