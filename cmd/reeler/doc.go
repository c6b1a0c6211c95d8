// Package main hosts the reeler CLI.
//
// The Cobra command tree covers the three worker roles (serve, download,
// convert), record maintenance (entries, store, history), and setup helpers
// (config, doctor). Workers talk to a coordinator service when service.url is
// configured and to the local record store otherwise.
package main
