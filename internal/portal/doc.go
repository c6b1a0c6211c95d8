// Package portal drives the video portal: logging in, discovering the newest
// video id, resolving per-video metadata, and starting playback so the first
// segment request of a video stream can be captured.
//
// Session is the contract the downloader consumes. BrowserSession implements
// it over a Chrome instance controlled through chromedp; page markup is read
// with goquery by the parse helpers, which are usable on their own against
// saved HTML. Unrecognized markup surfaces as *StructureError, which aborts
// the run rather than being retried.
package portal
