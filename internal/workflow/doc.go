// Package workflow turns intake outcomes into archived documents.
//
// Processor polls the intake coordinator until the attachments folder is
// drained. Each file it is handed is extracted, optionally analyzed as an
// invoice, archived and announced through notifications. Watcher repeats the
// drain on a fixed interval for the daemon and the `intake watch` command.
package workflow
