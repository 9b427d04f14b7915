// Package intake implements the content-addressed intake ledger over the
// watched attachments folder.
//
// A Coordinator scans the folder for files with an accepted extension, hashes
// each candidate in name order, and records the first digest it has not seen
// before in the persisted ledger. Recording and returning happen in a single
// step under an exclusive file lock, so every distinct file content is
// delivered at most once even when several processes poll the same ledger.
//
// Files are identified by content, not by name: a renamed or duplicated copy
// of an already processed file is never offered again. The ledger only grows.
package intake
