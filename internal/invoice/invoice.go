package invoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/sen"

	"mailroom/internal/document"
	"mailroom/internal/logging"
	"mailroom/internal/services"
	"mailroom/internal/services/llm"
)

// defaultMaxChars bounds how much document text is sent per invoice.
const defaultMaxChars = 24000

// Invoice holds the fields the model extracted. Nil means not found.
type Invoice struct {
	Date         *string `json:"date"`
	CustomerName *string `json:"customer_name"`
	Item         *string `json:"item"`
	Quantity     *string `json:"quantity"`
	Price        *string `json:"price"`
	Total        *string `json:"total"`
}

// Comparison is the planner's verdict on two invoices.
type Comparison struct {
	Invoice1    Invoice `json:"invoice1"`
	Invoice2    Invoice `json:"invoice2"`
	Differences string  `json:"differences"`
	Raw         string  `json:"-"`
}

// Completer is the subset of the LLM client the analyzer needs.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Analyzer runs invoice prompts against an LLM.
type Analyzer struct {
	llm      Completer
	maxChars int
	logger   *slog.Logger
}

// NewAnalyzer wraps completer. A nil completer yields an analyzer whose calls
// fail with a configuration error.
func NewAnalyzer(completer Completer, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		llm:      completer,
		maxChars: defaultMaxChars,
		logger:   logging.NewComponentLogger(logger, "invoice"),
	}
}

// Compare extracts fields from both documents and describes their differences.
func (a *Analyzer) Compare(ctx context.Context, left, right document.Document) (Comparison, error) {
	if a.llm == nil {
		return Comparison{}, services.Wrap(services.ErrConfiguration, "invoice", "compare", "llm api key not configured", nil)
	}
	prompt := fmt.Sprintf("INVOICE 1 (%s):\n%s\n\nINVOICE 2 (%s):\n%s",
		left.Name, left.Excerpt(a.maxChars), right.Name, right.Excerpt(a.maxChars))
	content, err := a.llm.CompleteJSON(ctx, compareSystemPrompt, prompt)
	if err != nil {
		return Comparison{}, err
	}
	cmp, err := ParseComparison(content)
	if err != nil {
		return Comparison{}, services.Wrap(services.ErrValidation, "invoice", "compare", "parse model output", err)
	}
	logging.WithContext(ctx, a.logger).Info("invoices compared",
		logging.String("left", left.Name),
		logging.String("right", right.Name),
		logging.Bool("differences_found", cmp.Differences != ""))
	return cmp, nil
}

// Extract pulls invoice fields out of a single document.
func (a *Analyzer) Extract(ctx context.Context, doc document.Document) (Invoice, error) {
	if a.llm == nil {
		return Invoice{}, services.Wrap(services.ErrConfiguration, "invoice", "extract", "llm api key not configured", nil)
	}
	content, err := a.llm.CompleteJSON(ctx, extractSystemPrompt, fmt.Sprintf("INVOICE (%s):\n%s", doc.Name, doc.Excerpt(a.maxChars)))
	if err != nil {
		return Invoice{}, err
	}
	inv, err := ParseInvoice(content)
	if err != nil {
		return Invoice{}, services.Wrap(services.ErrValidation, "invoice", "extract", "parse model output", err)
	}
	logging.WithContext(ctx, a.logger).Debug("invoice fields extracted",
		logging.FileName(doc.Name),
		logging.Int("fields", inv.FieldCount()))
	return inv, nil
}

// ParseComparison decodes a planner response.
func ParseComparison(content string) (Comparison, error) {
	root, err := parseLenient(content)
	if err != nil {
		return Comparison{}, err
	}
	if _, ok := root.(map[string]any); !ok {
		return Comparison{}, errors.New("expected a JSON object")
	}
	cmp := Comparison{
		Invoice1: invoiceAt(root, "$.invoice1"),
		Invoice2: invoiceAt(root, "$.invoice2"),
		Raw:      content,
	}
	if diff := stringAt(root, "$.differences"); diff != nil {
		cmp.Differences = *diff
	}
	if cmp.Invoice1.FieldCount() == 0 && cmp.Invoice2.FieldCount() == 0 && cmp.Differences == "" {
		return Comparison{}, errors.New("response has no invoice fields")
	}
	return cmp, nil
}

// ParseInvoice decodes a single-invoice extraction response. Responses that
// wrap the fields in an "invoice" object are accepted too.
func ParseInvoice(content string) (Invoice, error) {
	root, err := parseLenient(content)
	if err != nil {
		return Invoice{}, err
	}
	if _, ok := root.(map[string]any); !ok {
		return Invoice{}, errors.New("expected a JSON object")
	}
	if nested := jp.MustParseString("$.invoice").First(root); nested != nil {
		if _, ok := nested.(map[string]any); ok {
			return invoiceAt(root, "$.invoice"), nil
		}
	}
	return invoiceAt(root, "$"), nil
}

// FieldCount returns how many fields were found.
func (inv Invoice) FieldCount() int {
	n := 0
	for _, field := range []*string{inv.Date, inv.CustomerName, inv.Item, inv.Quantity, inv.Price, inv.Total} {
		if field != nil {
			n++
		}
	}
	return n
}

func parseLenient(content string) (any, error) {
	cleaned := strings.ReplaceAll(content, Sentinel, "")
	cleaned = llm.ExtractJSON(cleaned)
	if cleaned == "" {
		return nil, errors.New("empty model output")
	}
	root, err := sen.Parse([]byte(cleaned))
	if err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	return root, nil
}

func invoiceAt(root any, base string) Invoice {
	field := func(name string) *string {
		return stringAt(root, base+"."+name)
	}
	return Invoice{
		Date:         field("date"),
		CustomerName: field("customer_name"),
		Item:         field("item"),
		Quantity:     field("quantity"),
		Price:        field("price"),
		Total:        field("total"),
	}
}

func stringAt(root any, path string) *string {
	expr, err := jp.ParseString(path)
	if err != nil {
		return nil
	}
	var text string
	switch v := expr.First(root).(type) {
	case nil:
		return nil
	case string:
		text = strings.TrimSpace(v)
	case int64:
		text = strconv.FormatInt(v, 10)
	case float64:
		text = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		text = strconv.FormatBool(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, strings.TrimSpace(fmt.Sprint(item)))
		}
		text = strings.Join(parts, ", ")
	default:
		return nil
	}
	switch strings.ToLower(text) {
	case "", "null", "n/a", "none", "...":
		return nil
	}
	return &text
}
