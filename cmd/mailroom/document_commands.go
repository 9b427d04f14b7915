package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mailroom/internal/archive"
	"mailroom/internal/document"
	"mailroom/internal/invoice"
)

const readPreviewChars = 2000

func newReadCommand() *cobra.Command {
	var jsonOutput bool
	var full bool
	cmd := &cobra.Command{
		Use:         "read <file>",
		Short:       "Extract the text of a PDF or Excel attachment",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := document.Extract(args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, doc)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s, %d pages, %s chars)\n\n", doc.Name, doc.Format, doc.Pages, humanize.Comma(int64(len(doc.Text))))
			if full {
				fmt.Fprintln(out, doc.Text)
			} else {
				fmt.Fprintln(out, doc.Excerpt(readPreviewChars))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&full, "full", false, "Print the whole text instead of a preview")
	return cmd
}

func newCompareCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "compare <invoice1> <invoice2>",
		Short: "Compare two invoices field by field using the LLM",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp(appOptions{withArchive: true})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireLLM(); err != nil {
				return err
			}

			result, err := a.processor.Compare(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, result)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderInvoiceTable(result.Invoice1, result.Invoice2))
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Differences: %s\n", result.Differences)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newDocumentsCommand(ctx *commandContext) *cobra.Command {
	docsCmd := &cobra.Command{
		Use:   "documents",
		Short: "Inspect archived documents",
	}
	docsCmd.AddCommand(newDocumentsListCommand(ctx))
	docsCmd.AddCommand(newDocumentsShowCommand(ctx))
	return docsCmd
}

func newDocumentsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived documents, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp(appOptions{withArchive: true})
			if err != nil {
				return err
			}
			defer a.Close()

			docs, err := a.archive.ListDocuments(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, docs)
			}
			out := cmd.OutOrStdout()
			if len(docs) == 0 {
				fmt.Fprintln(out, "No archived documents")
				return nil
			}
			rows := make([][]string, 0, len(docs))
			for _, doc := range docs {
				customer, total := "", ""
				if doc.Invoice != nil {
					customer = valueOr(doc.Invoice.CustomerName, "")
					total = valueOr(doc.Invoice.Total, "")
				}
				rows = append(rows, []string{
					strconv.FormatInt(doc.ID, 10),
					doc.FileName,
					string(doc.Status),
					customer,
					total,
					humanize.Time(doc.ProcessedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "File", "Status", "Customer", "Total", "Processed"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of documents (0 for all)")
	return cmd
}

func newDocumentsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show <id|digest>",
		Short: "Show one archived document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp(appOptions{withArchive: true})
			if err != nil {
				return err
			}
			defer a.Close()

			key := strings.TrimSpace(args[0])
			var doc *archive.Document
			if id, parseErr := strconv.ParseInt(key, 10, 64); parseErr == nil {
				doc, err = a.archive.GetDocument(cmd.Context(), id)
			} else {
				doc, err = a.archive.GetDocumentByDigest(cmd.Context(), key)
			}
			if err != nil {
				if errors.Is(err, archive.ErrNotFound) {
					return fmt.Errorf("document %s not found", key)
				}
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, doc)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Document %d: %s\n", doc.ID, doc.FileName)
			fmt.Fprintf(out, "  Path:      %s\n", doc.FilePath)
			fmt.Fprintf(out, "  Digest:    %s\n", doc.ContentDigest)
			fmt.Fprintf(out, "  Status:    %s\n", doc.Status)
			if doc.Format != "" {
				fmt.Fprintf(out, "  Format:    %s (%d pages, %s chars)\n", doc.Format, doc.Pages, humanize.Comma(int64(doc.TextChars)))
			}
			fmt.Fprintf(out, "  Processed: %s\n", doc.ProcessedAt.Local().Format("2006-01-02 15:04:05"))
			if doc.Error != "" {
				fmt.Fprintf(out, "  Error:     %s\n", doc.Error)
			}
			if doc.Invoice != nil {
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderInvoiceFields(*doc.Invoice))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

var invoiceFieldLabels = []string{"Date", "Customer", "Item", "Quantity", "Price", "Total"}

func invoiceFieldValues(inv invoice.Invoice) []string {
	return []string{
		valueOr(inv.Date, "-"),
		valueOr(inv.CustomerName, "-"),
		valueOr(inv.Item, "-"),
		valueOr(inv.Quantity, "-"),
		valueOr(inv.Price, "-"),
		valueOr(inv.Total, "-"),
	}
}

func renderInvoiceFields(inv invoice.Invoice) string {
	values := invoiceFieldValues(inv)
	rows := make([][]string, 0, len(values))
	for i, label := range invoiceFieldLabels {
		rows = append(rows, []string{label, values[i]})
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func renderInvoiceTable(left, right invoice.Invoice) string {
	leftValues := invoiceFieldValues(left)
	rightValues := invoiceFieldValues(right)
	rows := make([][]string, 0, len(invoiceFieldLabels))
	for i, label := range invoiceFieldLabels {
		marker := ""
		if leftValues[i] != rightValues[i] {
			marker = "*"
		}
		rows = append(rows, []string{label, leftValues[i], rightValues[i], marker})
	}
	return renderTable([]string{"Field", "Invoice 1", "Invoice 2", ""}, rows, nil)
}

func valueOr(value *string, fallback string) string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return fallback
	}
	return *value
}
