// Package document extracts plain text from invoice attachments.
//
// PDFs are read page by page with a "--- Page N ---" marker ahead of each
// page. Excel workbooks (.xlsx) are read sheet by sheet with a
// "--- Sheet <name> ---" marker and one tab-separated line per row. Legacy
// binary .xls workbooks are accepted by intake but cannot be extracted and
// report ErrUnsupportedFormat.
package document
