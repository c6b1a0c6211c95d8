// Package preflight provides readiness checks for the filesystem paths and
// remote endpoints reeler depends on.
//
// These checks run in two contexts:
//   - The downloader calls RunDownload before logging in. A full disk or a
//     missing downloads directory aborts the run before any job is claimed.
//   - The CLI "reeler doctor" command uses the individual check functions to
//     display environment health.
package preflight
