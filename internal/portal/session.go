package portal

import (
	"context"
	"net/http"
)

// Metadata describes one video page.
type Metadata struct {
	ID          int64
	Name        string
	SourceURL   string
	DownloadURL string
}

// Session is an authenticated view of the portal. Implementations are not
// safe for concurrent use; the downloader drives one job at a time.
type Session interface {
	Authenticate(ctx context.Context) error
	// LastVideoID returns the newest id listed in the gallery.
	LastVideoID(ctx context.Context) (int64, error)
	// Metadata returns nil, nil when the video page does not exist.
	Metadata(ctx context.Context, id int64) (*Metadata, error)
	// Play opens the video page and starts playback. The returned channel
	// receives the first matching segment URL at most once.
	Play(ctx context.Context, id int64) (<-chan string, error)
	// Reload reloads the current page. A pending Play capture stays armed.
	Reload(ctx context.Context) error
	// SegmentHeader returns the headers a plain HTTP client needs to fetch
	// url with the browser's session, chiefly its cookies.
	SegmentHeader(ctx context.Context, url string) (http.Header, error)
	Close() error
}
