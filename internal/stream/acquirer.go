package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"reeler/internal/logging"
	"reeler/internal/netcheck"
	"reeler/internal/records"
	"reeler/internal/services"
	"reeler/internal/shutdown"
)

// Config holds the acquisition thresholds.
type Config struct {
	SegmentTimeout   time.Duration
	NullRetryBudget  int
	NullRetryDelay   time.Duration
	ScanAhead        int
	ConnectivityPoll time.Duration
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		SegmentTimeout:   4 * time.Second,
		NullRetryBudget:  5,
		NullRetryDelay:   time.Second,
		ScanAhead:        3,
		ConnectivityPoll: 2 * time.Second,
	}
}

// Progress describes the stream after a segment was appended.
type Progress struct {
	Index    int
	Segments int
	Bytes    int64
}

// Observer is told about acquisition progress. Calls happen on the
// acquiring goroutine.
type Observer interface {
	SegmentWritten(p Progress)
	GapSkipped(from, to int)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) SegmentWritten(Progress) {}
func (NopObserver) GapSkipped(int, int)     {}

// Result summarizes a finished acquisition.
type Result struct {
	Status           records.DownloadStatus
	InitialStreamURL string
	MaxPartID        int
	Segments         int
	Bytes            int64
	// Gaps counts indices skipped because a later index answered during the
	// end-of-stream scan.
	Gaps int
}

// Stream returns the persisted stream summary.
func (r Result) Stream() *records.StreamInfo {
	return &records.StreamInfo{InitialStreamURL: r.InitialStreamURL, MaxPartID: r.MaxPartID}
}

// Acquirer runs the segment state machine.
type Acquirer struct {
	cfg      Config
	fetcher  Fetcher
	probe    netcheck.Probe
	observer Observer
	hooks    *shutdown.Hooks
	logger   *slog.Logger
}

// Option customizes an Acquirer.
type Option func(*Acquirer)

// WithProbe sets the connectivity probe consulted after network failures.
func WithProbe(probe netcheck.Probe) Option {
	return func(a *Acquirer) { a.probe = probe }
}

// WithObserver sets the progress observer.
func WithObserver(observer Observer) Option {
	return func(a *Acquirer) {
		if observer != nil {
			a.observer = observer
		}
	}
}

// WithHooks registers partial-file cleanup with hooks.
func WithHooks(hooks *shutdown.Hooks) Option {
	return func(a *Acquirer) { a.hooks = hooks }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Acquirer) { a.logger = logging.NewComponentLogger(logger, "stream") }
}

// New constructs an Acquirer.
func New(cfg Config, fetcher Fetcher, opts ...Option) *Acquirer {
	a := &Acquirer{
		cfg:      cfg,
		fetcher:  fetcher,
		probe:    netcheck.Always(true),
		observer: NopObserver{},
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.cfg.ConnectivityPoll <= 0 {
		a.cfg.ConnectivityPoll = DefaultConfig().ConnectivityPoll
	}
	if a.cfg.NullRetryBudget < 0 {
		a.cfg.NullRetryBudget = 0
	}
	if a.cfg.ScanAhead < 0 {
		a.cfg.ScanAhead = 0
	}
	return a
}

var errNull = errors.New("null segment response")

// Acquire downloads the stream starting at trigger into target. The returned
// error is non-nil for a malformed trigger, a rejected segment request, a
// local write failure, or cancellation; a stream that simply had nothing to offer ends broken with a
// nil error.
func (a *Acquirer) Acquire(ctx context.Context, trigger, target string) (Result, error) {
	result := Result{Status: records.DownloadBroken, InitialStreamURL: trigger}
	tmpl, err := ParseTemplate(trigger)
	if err != nil {
		a.logger.Warn("stream trigger rejected",
			logging.String("trigger", trigger),
			logging.Error(err),
			logging.String(logging.FieldEventType, "stream_trigger_malformed"),
		)
		return result, err
	}

	out := &partFile{target: target, path: target + ".part"}
	defer out.abandon()
	logger := a.logger.With(logging.String("target", filepath.Base(target)))

	n := tmpl.Start
	nulls := 0
	for {
		body, err := a.fetchSegment(ctx, tmpl.URL(n))
		if err != nil && !errors.Is(err, errNull) {
			out.discard()
			return result, err
		}
		if err == nil {
			if err := a.write(out, n, body, &result); err != nil {
				out.discard()
				return result, err
			}
			n++
			nulls = 0
			continue
		}

		nulls++
		if nulls <= a.cfg.NullRetryBudget {
			if err := sleepCtx(ctx, a.cfg.NullRetryDelay); err != nil {
				out.discard()
				return result, err
			}
			continue
		}

		// Budget exhausted: only an answer from a later index keeps the stream alive.
		resumed := false
		for k := 1; k <= a.cfg.ScanAhead; k++ {
			body, err := a.fetchSegment(ctx, tmpl.URL(n+k))
			if errors.Is(err, errNull) {
				continue
			}
			if err != nil {
				out.discard()
				return result, err
			}
			logger.Warn("stream gap skipped",
				logging.Int("from", n),
				logging.Int("to", n+k-1),
				logging.String(logging.FieldEventType, "stream_gap"),
			)
			result.Gaps += k
			a.observer.GapSkipped(n, n+k-1)
			if err := a.write(out, n+k, body, &result); err != nil {
				out.discard()
				return result, err
			}
			n += k + 1
			nulls = 0
			resumed = true
			break
		}
		if !resumed {
			break
		}
	}

	if result.Segments == 0 {
		out.discard()
		logger.Warn("stream ended without segments",
			logging.String("trigger", trigger),
			logging.String(logging.FieldEventType, "stream_empty"),
		)
		return result, nil
	}
	if err := out.finalize(); err != nil {
		out.discard()
		result.Status = records.DownloadBroken
		return result, services.Wrap(services.ErrIO, "stream", "finalize", target, err)
	}
	result.Status = records.DownloadDone
	logger.Info("stream complete",
		logging.Int("segments", result.Segments),
		logging.Int("max_part_id", result.MaxPartID),
		logging.Int64("bytes", result.Bytes),
		logging.Int("gaps", result.Gaps),
		logging.String(logging.FieldEventType, "stream_done"),
	)
	return result, nil
}

func (a *Acquirer) write(out *partFile, index int, body []byte, result *Result) error {
	if out.file == nil {
		if err := out.open(a.hooks); err != nil {
			return services.Wrap(services.ErrIO, "stream", "open", out.path, err)
		}
	}
	if _, err := out.file.Write(body); err != nil {
		return services.Wrap(services.ErrIO, "stream", "write", fmt.Sprintf("segment %d", index), err)
	}
	result.Segments++
	result.Bytes += int64(len(body))
	result.MaxPartID = index
	a.observer.SegmentWritten(Progress{Index: index, Segments: result.Segments, Bytes: result.Bytes})
	return nil
}

// fetchSegment performs one logical attempt. It returns errNull for an
// absent or empty segment. Network failures are never evidence of a missing
// segment: the same URL is retried every ConnectivityPoll, waiting out
// offline periods, until the server answers either way.
func (a *Acquirer) fetchSegment(ctx context.Context, url string) ([]byte, error) {
	failures := 0
	for {
		body, err := a.fetcher.Fetch(ctx, url)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err == nil && len(body) > 0 {
			if failures > 0 {
				a.logger.Info("segment fetch recovered",
					logging.String("url", url),
					logging.Int("failures", failures),
				)
			}
			return body, nil
		}
		if isNull(err) {
			return nil, errNull
		}
		if !errors.Is(err, services.ErrNetwork) {
			return nil, err
		}
		failures++
		wasOffline, waitErr := netcheck.WaitOnline(ctx, a.probe, a.cfg.ConnectivityPoll)
		if waitErr != nil {
			return nil, waitErr
		}
		if wasOffline {
			a.logger.Info("connectivity restored; retrying segment",
				logging.String("url", url),
				logging.String(logging.FieldEventType, "connectivity_restored"),
			)
			continue
		}
		if failures == 1 || failures%networkWarnEvery == 0 {
			a.logger.Warn("segment fetch failing; retrying",
				logging.String("url", url),
				logging.Int("failures", failures),
				logging.Error(err),
				logging.String(logging.FieldEventType, "segment_retry"),
			)
		}
		if err := sleepCtx(ctx, a.cfg.ConnectivityPoll); err != nil {
			return nil, err
		}
	}
}

// networkWarnEvery spaces repeated warnings for one failing segment.
const networkWarnEvery = 10

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type partFile struct {
	target string
	path   string
	file   *os.File
	hook   *shutdown.Handle
	done   bool
}

func (p *partFile) open(hooks *shutdown.Hooks) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return err
	}
	path := p.path
	p.hook = hooks.Register("remove partial "+filepath.Base(path), func() {
		_ = os.Remove(path)
	})
	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		p.hook.Protect()
		return err
	}
	p.file = f
	return nil
}

func (p *partFile) finalize() error {
	p.hook.Protect()
	if err := p.file.Sync(); err != nil {
		return err
	}
	if err := p.file.Close(); err != nil {
		return err
	}
	p.file = nil
	if err := os.Rename(p.path, p.target); err != nil {
		return err
	}
	p.done = true
	return nil
}

func (p *partFile) discard() {
	p.hook.Protect()
	if p.file != nil {
		_ = p.file.Close()
		p.file = nil
	}
	_ = os.Remove(p.path)
	p.done = true
}

// abandon covers panics and early returns that skipped both finalize and discard.
func (p *partFile) abandon() {
	if !p.done {
		p.discard()
	}
}
