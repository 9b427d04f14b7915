// Command mailroom watches an attachments folder, records every new file in an
// idempotent content-addressed ledger, and extracts and compares invoices.
//
// One-shot commands (intake, ledger, read, compare, documents) work directly
// on the configured state files. `mailroom daemon` runs the watcher and the
// HTTP API; `mailroom mcp` serves the same operations as MCP tools on stdio.
package main
