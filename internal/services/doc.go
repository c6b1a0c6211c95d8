// Package services defines shared utilities consumed by the downloader,
// converter, and coordinator along with the external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp record IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures with errors.Is (retry, mark broken, abort the run, or map to an
//     HTTP status).
//
// Use these helpers when wiring new job logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
