package invoice_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"mailroom/internal/document"
	"mailroom/internal/invoice"
	"mailroom/internal/services"
)

type fakeCompleter struct {
	response string
	err      error
	system   string
	user     string
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, system, user string) (string, error) {
	f.system = system
	f.user = user
	return f.response, f.err
}

const plannerReply = "Here is the comparison.\n```json\n" + `{
    "invoice1": {
        "date": "2025-07-01",
        "customer_name": "Acme Ltd",
        "item": "Widgets",
        "quantity": 10,
        "price": 2.5,
        "total": "25.00"
    },
    "invoice2": {
        "date": "2025-07-03",
        "customer_name": "Acme Ltd",
        "item": "Widgets",
        "quantity": 12,
        "price": 2.5,
        "total": "30.00"
    },
    "differences": "Quantity and total differ."
}` + "\n```\nTERMINATE"

func TestParseComparisonHandlesFencesAndSentinel(t *testing.T) {
	cmp, err := invoice.ParseComparison(plannerReply)
	require.NoError(t, err)
	require.Equal(t, "2025-07-01", *cmp.Invoice1.Date)
	require.Equal(t, "10", *cmp.Invoice1.Quantity)
	require.Equal(t, "2.5", *cmp.Invoice1.Price)
	require.Equal(t, "30.00", *cmp.Invoice2.Total)
	require.Equal(t, "Quantity and total differ.", cmp.Differences)
	require.Equal(t, plannerReply, cmp.Raw)
}

func TestParseComparisonMissingFieldsAreNil(t *testing.T) {
	reply := `{invoice1: {date: null, customer_name: "Bob", item: "", total: "N/A",}, invoice2: {}, differences: "Only one invoice has a customer",}`

	cmp, err := invoice.ParseComparison(reply)
	require.NoError(t, err)
	require.Nil(t, cmp.Invoice1.Date)
	require.Nil(t, cmp.Invoice1.Item)
	require.Nil(t, cmp.Invoice1.Total)
	require.Nil(t, cmp.Invoice1.Quantity)
	require.Equal(t, "Bob", *cmp.Invoice1.CustomerName)
	require.Zero(t, cmp.Invoice2.FieldCount())
}

func TestParseComparisonRejectsGarbage(t *testing.T) {
	for _, reply := range []string{"", "TERMINATE", "I could not read the invoices.", `["a"]`, `{"unrelated": 1}`} {
		_, err := invoice.ParseComparison(reply)
		require.Error(t, err, "reply %q", reply)
	}
}

func TestParseInvoiceAcceptsWrappedObject(t *testing.T) {
	inv, err := invoice.ParseInvoice(`{"invoice": {"date": "2025-01-02", "total": 99.5}}`)
	require.NoError(t, err)
	require.Equal(t, "2025-01-02", *inv.Date)
	require.Equal(t, "99.5", *inv.Total)
	require.Equal(t, 2, inv.FieldCount())

	flat, err := invoice.ParseInvoice(`{"customer_name": "Acme", "item": ["bolts", "nuts"]}`)
	require.NoError(t, err)
	require.Equal(t, "Acme", *flat.CustomerName)
	require.Equal(t, "bolts, nuts", *flat.Item)
}

func TestAnalyzerCompareBuildsPrompt(t *testing.T) {
	fake := &fakeCompleter{response: plannerReply}
	analyzer := invoice.NewAnalyzer(fake, nil)

	left := document.Document{Name: "a.pdf", Text: "Invoice A total 25.00"}
	right := document.Document{Name: "b.pdf", Text: "Invoice B total 30.00"}
	cmp, err := analyzer.Compare(context.Background(), left, right)
	require.NoError(t, err)
	require.Equal(t, "Quantity and total differ.", cmp.Differences)

	require.Contains(t, fake.system, "invoice1")
	require.Contains(t, fake.system, "TERMINATE")
	require.True(t, strings.Index(fake.user, "INVOICE 1 (a.pdf)") < strings.Index(fake.user, "INVOICE 2 (b.pdf)"))
	require.Contains(t, fake.user, "Invoice B total 30.00")
}

func TestAnalyzerExtract(t *testing.T) {
	fake := &fakeCompleter{response: `{"date": "2025-02-02", "customer_name": "Zed", "item": null, "quantity": "1", "price": "5", "total": "5"}`}
	inv, err := invoice.NewAnalyzer(fake, nil).Extract(context.Background(), document.Document{Name: "z.pdf", Text: "stuff"})
	require.NoError(t, err)
	require.Equal(t, 5, inv.FieldCount())
	require.Nil(t, inv.Item)
	require.Contains(t, fake.user, "INVOICE (z.pdf)")
}

func TestAnalyzerErrors(t *testing.T) {
	_, err := invoice.NewAnalyzer(nil, nil).Compare(context.Background(), document.Document{}, document.Document{})
	require.ErrorIs(t, err, services.ErrConfiguration)

	upstream := errors.New("boom")
	_, err = invoice.NewAnalyzer(&fakeCompleter{err: upstream}, nil).Extract(context.Background(), document.Document{Text: "x"})
	require.ErrorIs(t, err, upstream)

	_, err = invoice.NewAnalyzer(&fakeCompleter{response: "no json here"}, nil).Extract(context.Background(), document.Document{Text: "x"})
	require.ErrorIs(t, err, services.ErrValidation)
}
