// Package api serves the coordinator over HTTP and provides the matching
// client used by workers on other hosts.
//
// # Routes
//
//	GET  /entries                 every record keyed by id
//	GET  /entries/:id             one record
//	POST /entries                 create or replace a record
//	PUT  /entries/:id             shallow-merge fields into a record
//	GET  /next2download?host=NAME claim the next download, 204 when none
//	PUT  /downloading/:id         download progress or outcome
//	GET  /next2convert?host=NAME  claim the next conversion, 204 when none
//	PUT  /converting/:id          conversion heartbeat or outcome
//	GET  /health                  liveness and record count
//
// # Errors
//
// Failures are JSON objects of the form {"error": "..."}. The status code is
// derived from the services sentinel carried by the error: validation 400,
// conflict 403, not found 404, a locked or mismatched store 503, everything
// else 500. The client maps the codes back to the same sentinels so callers
// classify remote and local failures alike.
//
// Every request carries an X-Request-Id header (generated when absent) that
// is attached to the server's log lines as correlation_id.
package api
