// Package daemon coordinates the long-running mailroom process.
//
// It wires configuration, the intake coordinator, the drain watcher and the
// archive into a single lifecycle with flock-based locking to prevent multiple
// instances, and serves the HTTP API (status, intake, ledger, documents,
// invoice comparison, metrics).
//
// Keep orchestration logic here: intake and document processing live in their
// own packages while the daemon focuses on startup, shutdown, and transport.
package daemon
