package document

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Format identifies a supported attachment type.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrNotFound          = errors.New("document not found")
)

// Document is the extracted text of one attachment.
type Document struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Format Format `json:"format"`
	// Pages counts PDF pages or workbook sheets.
	Pages int    `json:"pages"`
	Text  string `json:"text"`
}

// DetectFormat maps a file extension to a Format.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return FormatPDF, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Extract reads the file at path and returns its text.
func Extract(path string) (Document, error) {
	doc := Document{Path: path, Name: filepath.Base(path)}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return doc, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return doc, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, path)
	}

	format, err := DetectFormat(path)
	if err != nil {
		return doc, err
	}
	doc.Format = format

	switch format {
	case FormatPDF:
		doc.Text, doc.Pages, err = extractPDF(path)
	case FormatXLSX:
		doc.Text, doc.Pages, err = extractWorkbook(path)
	default:
		return doc, fmt.Errorf("%w: legacy %s workbooks cannot be read, save as .xlsx", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return doc, fmt.Errorf("extract %s: %w", doc.Name, err)
	}
	doc.Text = strings.TrimSpace(doc.Text)
	return doc, nil
}

// Excerpt returns at most limit bytes of text, cut on a rune boundary.
func (d Document) Excerpt(limit int) string {
	if limit <= 0 || len(d.Text) <= limit {
		return d.Text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(d.Text[cut]) {
		cut--
	}
	return d.Text[:cut] + "\n[truncated]"
}
