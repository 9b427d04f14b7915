package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"mailroom/internal/invoice"
)

// Status describes what happened to a document after intake.
type Status string

const (
	StatusExtracted   Status = "extracted"
	StatusAnalyzed    Status = "analyzed"
	StatusUnsupported Status = "unsupported"
	StatusFailed      Status = "failed"
)

// Document is one archived intake result.
type Document struct {
	ID            int64            `json:"id"`
	ContentDigest string           `json:"content_digest"`
	FileName      string           `json:"file_name"`
	FilePath      string           `json:"file_path"`
	Format        string           `json:"format,omitempty"`
	Pages         int              `json:"pages"`
	TextChars     int              `json:"text_chars"`
	Invoice       *invoice.Invoice `json:"invoice,omitempty"`
	Status        Status           `json:"status"`
	Error         string           `json:"error,omitempty"`
	ProcessedAt   time.Time        `json:"processed_at"`
}

const documentColumns = "id, content_digest, file_name, file_path, format, pages, text_chars, invoice_json, status, error, processed_at"

// RecordDocument inserts doc, or replaces the row with the same content digest,
// and returns the row id.
func (s *Store) RecordDocument(ctx context.Context, doc Document) (int64, error) {
	if strings.TrimSpace(doc.ContentDigest) == "" {
		return 0, errors.New("record document: content digest required")
	}
	if doc.Status == "" {
		doc.Status = StatusExtracted
	}
	if doc.ProcessedAt.IsZero() {
		doc.ProcessedAt = time.Now()
	}
	var invoiceJSON sql.NullString
	if doc.Invoice != nil {
		encoded, err := json.Marshal(doc.Invoice)
		if err != nil {
			return 0, fmt.Errorf("encode invoice: %w", err)
		}
		invoiceJSON = sql.NullString{String: string(encoded), Valid: true}
	}

	var id int64
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, `
INSERT INTO documents (content_digest, file_name, file_path, format, pages, text_chars, invoice_json, status, error, processed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(content_digest) DO UPDATE SET
    file_name = excluded.file_name,
    file_path = excluded.file_path,
    format = excluded.format,
    pages = excluded.pages,
    text_chars = excluded.text_chars,
    invoice_json = excluded.invoice_json,
    status = excluded.status,
    error = excluded.error,
    processed_at = excluded.processed_at
RETURNING id`,
			doc.ContentDigest, doc.FileName, doc.FilePath, nullString(doc.Format), doc.Pages, doc.TextChars,
			invoiceJSON, string(doc.Status), nullString(doc.Error), formatTime(doc.ProcessedAt),
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("record document: %w", err)
	}
	return id, nil
}

// RecordFailure archives a document that could not be processed.
func (s *Store) RecordFailure(ctx context.Context, digest, fileName, filePath string, status Status, cause error) (int64, error) {
	if status == "" {
		status = StatusFailed
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.RecordDocument(ctx, Document{
		ContentDigest: digest,
		FileName:      fileName,
		FilePath:      filePath,
		Status:        status,
		Error:         msg,
	})
}

// ListDocuments returns archived documents newest first. A limit of zero or
// less returns everything.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]Document, error) {
	query := "SELECT " + documentColumns + " FROM documents ORDER BY processed_at DESC, id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// GetDocument fetches a document by row id.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	return scanOne(row, fmt.Sprintf("id %d", id))
}

// GetDocumentByDigest fetches a document by content digest.
func (s *Store) GetDocumentByDigest(ctx context.Context, digest string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE content_digest = ?", digest)
	return scanOne(row, "digest "+digest)
}

// CountByStatus returns the number of archived documents per status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM documents GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	defer rows.Close()
	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

func scanOne(row *sql.Row, label string) (*Document, error) {
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, label)
	}
	return doc, err
}

func scanDocument(scanner interface{ Scan(dest ...any) error }) (*Document, error) {
	var (
		doc          Document
		format       sql.NullString
		invoiceJSON  sql.NullString
		status       string
		errorMessage sql.NullString
		processedRaw string
	)
	if err := scanner.Scan(
		&doc.ID,
		&doc.ContentDigest,
		&doc.FileName,
		&doc.FilePath,
		&format,
		&doc.Pages,
		&doc.TextChars,
		&invoiceJSON,
		&status,
		&errorMessage,
		&processedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.Format = format.String
	doc.Status = Status(status)
	doc.Error = errorMessage.String
	doc.ProcessedAt = parseTime(processedRaw)
	if invoiceJSON.Valid && invoiceJSON.String != "" {
		var inv invoice.Invoice
		if err := json.Unmarshal([]byte(invoiceJSON.String), &inv); err != nil {
			return nil, fmt.Errorf("decode invoice for %s: %w", doc.FileName, err)
		}
		doc.Invoice = &inv
	}
	return &doc, nil
}

func nullString(value string) sql.NullString {
	value = strings.TrimSpace(value)
	return sql.NullString{String: value, Valid: value != ""}
}
