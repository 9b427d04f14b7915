package archive_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mailroom/internal/archive"
	"mailroom/internal/invoice"
)

func openStore(t *testing.T) *archive.Store {
	t.Helper()
	store, err := archive.Open(filepath.Join(t.TempDir(), "state", "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func strPtr(v string) *string { return &v }

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	first, err := archive.Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := archive.Open(path)
	require.NoError(t, err)
	require.Equal(t, path, second.Path())
	require.NoError(t, second.Close())
}

func TestRecordDocumentUpsertsByDigest(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	id, err := store.RecordDocument(ctx, archive.Document{
		ContentDigest: "abc",
		FileName:      "a.pdf",
		FilePath:      "/inbox/a.pdf",
		Format:        "pdf",
		Pages:         2,
		TextChars:     120,
		ProcessedAt:   at,
	})
	require.NoError(t, err)
	require.Positive(t, id)

	again, err := store.RecordDocument(ctx, archive.Document{
		ContentDigest: "abc",
		FileName:      "renamed.pdf",
		FilePath:      "/inbox/renamed.pdf",
		Format:        "pdf",
		Pages:         2,
		Invoice:       &invoice.Invoice{Total: strPtr("42.00")},
		Status:        archive.StatusAnalyzed,
		ProcessedAt:   at.Add(time.Minute),
	})
	require.NoError(t, err)
	require.Equal(t, id, again)

	doc, err := store.GetDocument(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "renamed.pdf", doc.FileName)
	require.Equal(t, archive.StatusAnalyzed, doc.Status)
	require.NotNil(t, doc.Invoice)
	require.Equal(t, "42.00", *doc.Invoice.Total)
	require.Nil(t, doc.Invoice.Date)
	require.True(t, doc.ProcessedAt.Equal(at.Add(time.Minute)))

	byDigest, err := store.GetDocumentByDigest(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, id, byDigest.ID)
}

func TestRecordDocumentRequiresDigest(t *testing.T) {
	_, err := openStore(t).RecordDocument(context.Background(), archive.Document{FileName: "x.pdf"})
	require.Error(t, err)
}

func TestRecordFailureAndCounts(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	_, err := store.RecordFailure(ctx, "d1", "old.xls", "/inbox/old.xls", archive.StatusUnsupported, errors.New("legacy workbook"))
	require.NoError(t, err)
	_, err = store.RecordFailure(ctx, "d2", "bad.pdf", "/inbox/bad.pdf", "", errors.New("broken xref"))
	require.NoError(t, err)
	_, err = store.RecordDocument(ctx, archive.Document{ContentDigest: "d3", FileName: "ok.pdf", FilePath: "/inbox/ok.pdf"})
	require.NoError(t, err)

	failed, err := store.GetDocumentByDigest(ctx, "d2")
	require.NoError(t, err)
	require.Equal(t, archive.StatusFailed, failed.Status)
	require.Equal(t, "broken xref", failed.Error)

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, map[archive.Status]int{
		archive.StatusUnsupported: 1,
		archive.StatusFailed:      1,
		archive.StatusExtracted:   1,
	}, counts)
}

func TestListDocumentsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"first.pdf", "second.pdf", "third.pdf"} {
		_, err := store.RecordDocument(ctx, archive.Document{
			ContentDigest: name,
			FileName:      name,
			FilePath:      "/inbox/" + name,
			ProcessedAt:   base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	all, err := store.ListDocuments(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "third.pdf", all[0].FileName)
	require.Equal(t, "first.pdf", all[2].FileName)

	limited, err := store.ListDocuments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, "third.pdf", limited[0].FileName)
}

func TestGetDocumentNotFound(t *testing.T) {
	_, err := openStore(t).GetDocument(context.Background(), 99)
	require.ErrorIs(t, err, archive.ErrNotFound)
}

func TestComparisonsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	result := invoice.Comparison{
		Invoice1:    invoice.Invoice{CustomerName: strPtr("Acme")},
		Invoice2:    invoice.Invoice{CustomerName: strPtr("Acme Ltd")},
		Differences: "Customer name differs.",
	}
	id, err := store.RecordComparison(ctx, "/inbox/a.pdf", "/inbox/b.pdf", result)
	require.NoError(t, err)
	require.Positive(t, id)

	list, err := store.ListComparisons(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "/inbox/b.pdf", list[0].RightPath)
	require.Equal(t, "Customer name differs.", list[0].Result.Differences)
	require.Equal(t, "Acme Ltd", *list[0].Result.Invoice2.CustomerName)
	require.False(t, list[0].CreatedAt.IsZero())
}
