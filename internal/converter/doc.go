// Package converter drains the conversion queue: it claims downloaded
// records, runs the configured encoder, points the record at the new
// artifact, and disposes of the original according to the drop policy.
//
// The Queue interface is satisfied by both coordinator.LocalQueue and the
// HTTP api.Client, so the same Runner works on the coordinator host and on
// remote conversion hosts.
package converter
