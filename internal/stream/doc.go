// Package stream pulls a numbered media-segment stream to disk.
//
// Acquisition starts from the first segment URL the portal page requested.
// The last decimal run in that URL's path is the segment index; the acquirer
// walks indices upward, appending bodies to "<target>.part" strictly in index
// order, and decides when the stream has ended:
//
//   - a network failure is retried on the same index for as long as the
//     connectivity probe reports the host offline
//   - a not-found or empty response is retried on the same index up to the
//     null budget, then a few further indices are scanned to rule out a
//     mid-stream gap
//   - only when the scan also comes up empty is the stream over
//
// A stream with at least one written segment ends done and the partial file is
// renamed into place; otherwise it ends broken and the partial file is removed.
package stream
