package downloader

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"reeler/internal/config"
	"reeler/internal/netcheck"
	"reeler/internal/shutdown"
	"reeler/internal/stream"
)

// StreamConfig maps the download settings onto acquirer thresholds.
func StreamConfig(cfg *config.Config) stream.Config {
	return stream.Config{
		SegmentTimeout:   cfg.SegmentTimeout(),
		NullRetryBudget:  cfg.Download.NullRetryBudget,
		NullRetryDelay:   cfg.NullRetryDelay(),
		ScanAhead:        cfg.Download.ScanAhead,
		ConnectivityPoll: cfg.ConnectivityPoll(),
	}
}

// NewAcquirer builds the HTTP segment acquirer for cfg. headers supplies the
// browser session cookies for segment requests and may be nil.
func NewAcquirer(cfg *config.Config, logger *slog.Logger, hooks *shutdown.Hooks, observer stream.Observer, headers stream.HeaderSource) *stream.Acquirer {
	header := http.Header{}
	header.Set("User-Agent", userAgent)
	if cfg.Portal.BaseURL != "" {
		header.Set("Referer", cfg.Portal.BaseURL+"/")
	}
	opts := []stream.Option{
		stream.WithProbe(netcheck.NewHTTPProbe(cfg.Download.ConnectivityURL, cfg.SegmentTimeout())),
		stream.WithHooks(hooks),
	}
	if logger != nil {
		opts = append(opts, stream.WithLogger(logger))
	}
	if observer != nil {
		opts = append(opts, stream.WithObserver(observer))
	}
	return stream.New(StreamConfig(cfg), stream.NewHTTPFetcher(cfg.SegmentTimeout(), header, headers), opts...)
}

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

// progressRelay forwards acquirer progress to the job currently running.
type progressRelay struct {
	mu     sync.Mutex
	notify func(stream.Progress)
	gap    func(from, to int)
}

func (r *progressRelay) set(notify func(stream.Progress), gap func(from, to int)) {
	r.mu.Lock()
	r.notify, r.gap = notify, gap
	r.mu.Unlock()
}

func (r *progressRelay) SegmentWritten(p stream.Progress) {
	r.mu.Lock()
	fn := r.notify
	r.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func (r *progressRelay) GapSkipped(from, to int) {
	r.mu.Lock()
	fn := r.gap
	r.mu.Unlock()
	if fn != nil {
		fn(from, to)
	}
}

// progressReportInterval spaces stream summaries sent to the coordinator.
const progressReportInterval = 30 * time.Second
