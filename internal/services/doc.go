// Package services defines shared utilities consumed by the intake workflow
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, file names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and ErrorKind, which
//     translates failures into the stable kinds reported to callers.
//
// Use these helpers when wiring new integrations so operational behaviour
// (error handling, observability) stays uniform across the pipeline.
package services
