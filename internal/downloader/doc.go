// Package downloader runs the download side of the pipeline: it logs into the
// portal, records newly published videos, and then claims queued records one
// at a time, capturing each video's stream trigger and handing it to the
// segment acquirer.
//
// A job that fails is marked broken and the loop moves on. Page structure
// errors and failed logins end the run.
package downloader
