// Package fileutil holds small filesystem helpers shared by the ledger and
// the hasher: atomic replace-on-write and chunked SHA-256 streaming.
package fileutil
