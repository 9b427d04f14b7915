// Package mcptools serves mailroom as a Model Context Protocol tool server.
//
// Agents call file_intake to claim the next attachment, pdf_reader to get its
// text and compare_invoices to diff two invoices. Tool results are JSON text.
package mcptools
