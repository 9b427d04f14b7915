// Package archive keeps the results of document processing in SQLite.
//
// The intake ledger decides which files are new; the archive records what
// happened to each of them afterwards (extracted text size, invoice fields,
// failures) and every invoice comparison that was run. Rows are keyed by the
// same content digest the ledger uses.
//
// The schema is versioned. A database written by a different schema version
// is rejected with ErrSchemaMismatch rather than migrated.
package archive
