package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mailroom/internal/archive"
	"mailroom/internal/document"
	"mailroom/internal/intake"
	"mailroom/internal/invoice"
	"mailroom/internal/logging"
	"mailroom/internal/metrics"
	"mailroom/internal/notifications"
	"mailroom/internal/services"
)

// IntakeSource hands out the next unprocessed file of a folder.
type IntakeSource interface {
	NextUnprocessed(ctx context.Context, dir string, extensions []string) intake.Outcome
}

// InvoiceAnalyzer reads invoice fields from extracted documents.
type InvoiceAnalyzer interface {
	Extract(ctx context.Context, doc document.Document) (invoice.Invoice, error)
	Compare(ctx context.Context, left, right document.Document) (invoice.Comparison, error)
}

// Archive stores per-document and comparison results.
type Archive interface {
	RecordDocument(ctx context.Context, doc archive.Document) (int64, error)
	RecordFailure(ctx context.Context, digest, fileName, filePath string, status archive.Status, cause error) (int64, error)
	RecordComparison(ctx context.Context, leftPath, rightPath string, result invoice.Comparison) (int64, error)
}

// Options configures a Processor.
type Options struct {
	Dir        string
	Extensions []string
	// Analyze sends every extracted document through the invoice analyzer.
	Analyze bool

	Intake   IntakeSource
	Analyzer InvoiceAnalyzer
	Archive  Archive
	Notifier notifications.Service
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// Extract defaults to document.Extract.
	Extract func(path string) (document.Document, error)
}

// Processor drains the attachments folder one file at a time.
type Processor struct {
	dir        string
	extensions []string
	analyze    bool

	intake   IntakeSource
	analyzer InvoiceAnalyzer
	archive  Archive
	notifier notifications.Service
	metrics  *metrics.Metrics
	logger   *slog.Logger
	extract  func(path string) (document.Document, error)
}

// Summary describes one drain pass.
type Summary struct {
	Processed  int            `json:"processed"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	Last       intake.Outcome `json:"last"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Duration returns how long the pass ran.
func (s Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// NewProcessor builds a processor. Intake is required; every other
// collaborator is optional.
func NewProcessor(opts Options) *Processor {
	p := &Processor{
		dir:        opts.Dir,
		extensions: append([]string(nil), opts.Extensions...),
		analyze:    opts.Analyze,
		intake:     opts.Intake,
		analyzer:   opts.Analyzer,
		archive:    opts.Archive,
		notifier:   opts.Notifier,
		metrics:    opts.Metrics,
		logger:     logging.NewComponentLogger(opts.Logger, "workflow"),
		extract:    opts.Extract,
	}
	if p.extract == nil {
		p.extract = document.Extract
	}
	return p
}

// Next performs a single intake call and processes the file it returns.
func (p *Processor) Next(ctx context.Context) intake.Outcome {
	outcome := p.intake.NextUnprocessed(services.WithStage(ctx, "intake"), p.dir, p.extensions)
	switch outcome.Status {
	case intake.StatusFound:
		p.process(ctx, outcome)
	case intake.StatusError:
		p.notifyError(ctx, outcome.Err, "intake")
	}
	return outcome
}

// Drain calls intake until the folder reports no_files or all_processed and
// processes every file handed out on the way. A found file stays consumed even
// when its extraction fails.
func (p *Processor) Drain(ctx context.Context) (summary Summary, err error) {
	summary = Summary{StartedAt: time.Now()}
	defer func() {
		summary.FinishedAt = time.Now()
		p.metrics.ObserveDrain(summary.Duration().Seconds())
	}()

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return summary, ctxErr
		}
		outcome := p.intake.NextUnprocessed(services.WithStage(ctx, "intake"), p.dir, p.extensions)
		summary.Last = outcome
		summary.Skipped = len(outcome.Skipped)

		switch outcome.Status {
		case intake.StatusFound:
			if p.process(ctx, outcome) {
				summary.Processed++
			} else {
				summary.Failed++
			}
		case intake.StatusError:
			p.notifyError(ctx, outcome.Err, "intake")
			if outcome.Err != nil {
				return summary, outcome.Err
			}
			return summary, errors.New(outcome.Message)
		default:
			if summary.Processed+summary.Failed > 0 && p.notifier != nil {
				if nerr := p.notifier.NotifyDrainCompleted(ctx, summary.Processed, summary.Failed, time.Since(summary.StartedAt)); nerr != nil {
					p.logger.Debug("drain notification failed", logging.Error(nerr))
				}
			}
			return summary, nil
		}
	}
}

// process extracts, optionally analyzes, and archives one found file. It
// reports whether the document was archived without a failure status.
func (p *Processor) process(ctx context.Context, outcome intake.Outcome) bool {
	ctx = services.WithFile(ctx, outcome.FileName)
	logger := logging.WithContext(ctx, p.logger)

	if p.notifier != nil {
		if err := p.notifier.NotifyFileFound(ctx, outcome.FileName, outcome.ContentDigest); err != nil {
			logger.Debug("file found notification failed", logging.Error(err))
		}
	}

	doc, err := p.extract(outcome.FilePath)
	if err != nil {
		status := archive.StatusFailed
		if errors.Is(err, document.ErrUnsupportedFormat) {
			status = archive.StatusUnsupported
			logger.Info("document format not supported; archived without text",
				logging.Digest(outcome.ContentDigest),
				logging.Error(err))
		} else {
			logging.WarnWithContext(logger, "document extraction failed", "extract_failed",
				logging.Digest(outcome.ContentDigest),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "open the file manually to check it is not damaged"),
				logging.String(logging.FieldImpact, "file is recorded as processed without extracted text"))
			p.notifyError(ctx, err, "extract "+outcome.FileName)
		}
		p.recordFailure(ctx, outcome, status, err)
		return status == archive.StatusUnsupported
	}

	record := archive.Document{
		ContentDigest: outcome.ContentDigest,
		FileName:      outcome.FileName,
		FilePath:      outcome.FilePath,
		Format:        string(doc.Format),
		Pages:         doc.Pages,
		TextChars:     len([]rune(doc.Text)),
		Status:        archive.StatusExtracted,
	}
	if outcome.ProcessedAt != nil {
		record.ProcessedAt = *outcome.ProcessedAt
	}

	if p.analyze && p.analyzer != nil {
		inv, err := p.analyzer.Extract(services.WithStage(ctx, "analyze"), doc)
		if err != nil {
			logging.WarnWithContext(logger, "invoice analysis failed", "analyze_failed",
				logging.Error(err),
				logging.String("error_kind", services.ErrorKind(err)),
				logging.String(logging.FieldErrorHint, "check llm api key and endpoint with mailroom preflight"),
				logging.String(logging.FieldImpact, "document archived with text only"))
			record.Error = err.Error()
		} else {
			record.Invoice = &inv
			record.Status = archive.StatusAnalyzed
			if p.notifier != nil {
				if nerr := p.notifier.NotifyDocumentAnalyzed(ctx, outcome.FileName, deref(inv.CustomerName), deref(inv.Total)); nerr != nil {
					logger.Debug("analysis notification failed", logging.Error(nerr))
				}
			}
		}
	}

	if p.archive != nil {
		if _, err := p.archive.RecordDocument(ctx, record); err != nil {
			logging.ErrorWithContext(logger, "archive document failed", "archive_write_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the archive database path and free space"))
			return false
		}
	}
	p.metrics.DocumentArchived(string(record.Status))
	logger.Info("document processed",
		logging.Digest(outcome.ContentDigest),
		logging.String("format", string(doc.Format)),
		logging.Int("pages", doc.Pages),
		logging.String("status", string(record.Status)))
	return true
}

func (p *Processor) recordFailure(ctx context.Context, outcome intake.Outcome, status archive.Status, cause error) {
	if p.archive != nil {
		if _, err := p.archive.RecordFailure(ctx, outcome.ContentDigest, outcome.FileName, outcome.FilePath, status, cause); err != nil {
			logging.ErrorWithContext(logging.WithContext(ctx, p.logger), "archive failure record failed", "archive_write_failed",
				logging.Error(err))
			return
		}
	}
	p.metrics.DocumentArchived(string(status))
}

func (p *Processor) notifyError(ctx context.Context, err error, label string) {
	if p.notifier == nil || err == nil {
		return
	}
	if nerr := p.notifier.NotifyError(ctx, err, label); nerr != nil {
		if errors.Is(nerr, context.Canceled) {
			p.logger.Debug("shutting down, could not send error notification")
			return
		}
		p.logger.Debug("error notification failed", logging.Error(nerr))
	}
}

// Compare extracts two documents, compares them as invoices and archives the
// result.
func (p *Processor) Compare(ctx context.Context, leftPath, rightPath string) (invoice.Comparison, error) {
	if p.analyzer == nil {
		return invoice.Comparison{}, services.Wrap(services.ErrConfiguration, "compare", "analyzer", "llm api key not configured", nil)
	}
	ctx = services.WithStage(ctx, "compare")
	left, err := p.extract(leftPath)
	if err != nil {
		return invoice.Comparison{}, fmt.Errorf("read %s: %w", leftPath, err)
	}
	right, err := p.extract(rightPath)
	if err != nil {
		return invoice.Comparison{}, fmt.Errorf("read %s: %w", rightPath, err)
	}
	result, err := p.analyzer.Compare(ctx, left, right)
	if err != nil {
		p.notifyError(ctx, err, "compare")
		return invoice.Comparison{}, err
	}
	if p.archive != nil {
		if _, err := p.archive.RecordComparison(ctx, leftPath, rightPath, result); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, p.logger), "archive comparison failed", "archive_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "comparison returned but not stored"))
		} else {
			p.metrics.ComparisonArchived()
		}
	}
	if p.notifier != nil {
		if err := p.notifier.NotifyComparisonReady(ctx, left.Name, right.Name, result.Differences); err != nil {
			p.logger.Debug("comparison notification failed", logging.Error(err))
		}
	}
	return result, nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
