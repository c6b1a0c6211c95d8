package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"reeler/internal/config"
	"reeler/internal/coordinator"
	"reeler/internal/fileutil"
	"reeler/internal/logging"
	"reeler/internal/netcheck"
	"reeler/internal/portal"
	"reeler/internal/preflight"
	"reeler/internal/records"
	"reeler/internal/services"
	"reeler/internal/shutdown"
	"reeler/internal/stream"
)

// Queue is the coordinator surface the downloader needs.
type Queue interface {
	Entries(ctx context.Context) (map[int64]records.Record, error)
	CreateEntry(ctx context.Context, rec records.Record) (*records.Record, error)
	ClaimNextDownload(ctx context.Context, host string) (*records.Record, error)
	UpdateDownload(ctx context.Context, id int64, update coordinator.DownloadUpdate) (*records.Record, error)
	AbandonDownload(ctx context.Context, id int64) error
}

// Acquirer downloads one stream into a file.
type Acquirer interface {
	Acquire(ctx context.Context, trigger, target string) (stream.Result, error)
}

// Summary counts what a run did.
type Summary struct {
	Discovered int
	Done       int
	Broken     int
}

const abandonTimeout = 10 * time.Second

// ErrTriggerTimeout reports that playback never requested a matching segment.
var ErrTriggerTimeout = errors.New("stream trigger not observed")

// Option configures a Downloader.
type Option func(*Downloader)

// WithHost sets the host name stamped on claims.
func WithHost(host string) Option {
	return func(d *Downloader) {
		if host != "" {
			d.host = host
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Downloader) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithHooks registers the abandon-on-teardown action for held records.
func WithHooks(hooks *shutdown.Hooks) Option {
	return func(d *Downloader) { d.hooks = hooks }
}

// WithAcquirer replaces the HTTP segment acquirer.
func WithAcquirer(acquirer Acquirer) Option {
	return func(d *Downloader) { d.acquirer = acquirer }
}

// WithTriggerTimeout overrides the stream trigger watchdog.
func WithTriggerTimeout(timeout time.Duration) Option {
	return func(d *Downloader) {
		if timeout > 0 {
			d.triggerTimeout = timeout
		}
	}
}

// WithProbe replaces the connectivity probe consulted after the watchdog
// gives up a second time.
func WithProbe(probe netcheck.Probe) Option {
	return func(d *Downloader) { d.probe = probe }
}

// WithPreflight replaces the environment checks run before a run.
func WithPreflight(check func(context.Context, *config.Config) []preflight.Result) Option {
	return func(d *Downloader) { d.preflight = check }
}

// WithoutDiscovery skips the gallery scan and only drains queued records.
func WithoutDiscovery() Option {
	return func(d *Downloader) { d.discover = false }
}

// Downloader runs discovery and the download claim loop.
type Downloader struct {
	cfg            *config.Config
	queue          Queue
	session        portal.Session
	acquirer       Acquirer
	relay          *progressRelay
	host           string
	logger         *slog.Logger
	hooks          *shutdown.Hooks
	triggerTimeout time.Duration
	probe          netcheck.Probe
	preflight      func(context.Context, *config.Config) []preflight.Result
	discover       bool
}

// New constructs a Downloader.
func New(cfg *config.Config, queue Queue, session portal.Session, opts ...Option) *Downloader {
	host, _ := os.Hostname()
	d := &Downloader{
		cfg:            cfg,
		queue:          queue,
		session:        session,
		relay:          &progressRelay{},
		host:           host,
		logger:         logging.NewNop(),
		triggerTimeout: 2 * cfg.VideoPartTimeout(),
		probe:          netcheck.NewHTTPProbe(cfg.Download.ConnectivityURL, cfg.SegmentTimeout()),
		preflight:      preflight.RunDownload,
		discover:       true,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.NewComponentLogger(d.logger, "downloader")
	if d.acquirer == nil {
		var headers stream.HeaderSource
		if session != nil {
			headers = session.SegmentHeader
		}
		d.acquirer = NewAcquirer(cfg, d.logger, d.hooks, d.relay, headers)
	}
	return d
}

// Run authenticates, discovers new videos, and downloads until no record is
// eligible. Per-job failures are logged and marked broken; structure and
// authentication errors end the run.
func (d *Downloader) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	if d.preflight != nil {
		if err := preflight.FirstFailure(d.preflight(ctx, d.cfg)); err != nil {
			return summary, err
		}
	}
	if err := d.session.Authenticate(ctx); err != nil {
		return summary, fmt.Errorf("authenticate: %w", err)
	}

	if d.discover {
		created, err := d.Discover(ctx)
		summary.Discovered = created
		if err != nil {
			return summary, err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		rec, err := d.queue.ClaimNextDownload(ctx, d.host)
		if err != nil {
			return summary, fmt.Errorf("claim download: %w", err)
		}
		if rec == nil {
			d.logger.Info("download queue drained",
				logging.Int("done", summary.Done),
				logging.Int("broken", summary.Broken),
			)
			return summary, nil
		}
		status, err := d.download(ctx, *rec)
		switch status {
		case records.DownloadDone:
			summary.Done++
		case records.DownloadBroken:
			summary.Broken++
		}
		if err != nil {
			return summary, err
		}
	}
}

// Discover creates init records for every gallery id the queue does not know.
// It returns the number of records created.
func (d *Downloader) Discover(ctx context.Context) (int, error) {
	last, err := d.session.LastVideoID(ctx)
	if err != nil {
		return 0, fmt.Errorf("last video id: %w", err)
	}
	known, err := d.queue.Entries(ctx)
	if err != nil {
		return 0, fmt.Errorf("list entries: %w", err)
	}

	created := 0
	for id := int64(1); id <= last; id++ {
		if _, ok := known[id]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return created, err
		}
		meta, err := d.session.Metadata(ctx, id)
		if err != nil {
			if services.IsFatal(err) || ctx.Err() != nil {
				return created, err
			}
			logging.WarnWithContext(d.logger, "metadata lookup failed", "metadata_failed",
				logging.Int64(logging.FieldRecordID, id),
				logging.Error(err),
			)
			continue
		}
		if meta == nil {
			d.logger.Debug("no video at id", logging.Int64(logging.FieldRecordID, id))
			continue
		}
		rec := records.Record{
			ID:             id,
			Name:           meta.Name,
			SourceURL:      meta.SourceURL,
			DownloadURL:    meta.DownloadURL,
			DownloadStatus: records.DownloadInit,
		}
		if _, err := d.queue.CreateEntry(ctx, rec); err != nil {
			return created, fmt.Errorf("create entry %d: %w", id, err)
		}
		created++
		d.logger.Info("video discovered",
			logging.Int64(logging.FieldRecordID, id),
			logging.String("name", meta.Name),
		)
	}
	d.logger.Info("discovery complete", logging.Int64("last_id", last), logging.Int("created", created))
	return created, nil
}

// download runs one claimed job and reports its outcome. The returned error
// is non-nil only when the run must stop.
func (d *Downloader) download(ctx context.Context, rec records.Record) (records.DownloadStatus, error) {
	ctx = services.WithRecordID(ctx, rec.ID)
	ctx = services.WithStage(ctx, "downloading")
	ctx = services.WithHost(ctx, d.host)
	logger := logging.WithContext(ctx, d.logger)

	held := d.hooks.Register(fmt.Sprintf("abandon download %d", rec.ID), func() {
		d.abandon(context.Background(), logger, rec.ID)
	})
	defer held.Protect()

	target := filepath.Join(d.cfg.Paths.DownloadsDir, TargetName(rec))
	logger.Info("download started", logging.String("name", rec.Name), logging.String("target", target))

	trigger, err := d.awaitTrigger(ctx, logger, rec.ID)
	if err != nil {
		if ctx.Err() != nil {
			d.abandon(ctx, logger, rec.ID)
			return "", ctx.Err()
		}
		logger.Error("stream trigger failed",
			logging.String(logging.FieldEventType, "trigger_failed"),
			logging.String(logging.FieldErrorHint, "check portal playback and segment_pattern"),
			logging.Error(err),
		)
		if reportErr := d.finish(ctx, rec.ID, stream.Result{Status: records.DownloadBroken}, ""); reportErr != nil {
			return records.DownloadBroken, reportErr
		}
		if services.IsFatal(err) {
			return records.DownloadBroken, err
		}
		return records.DownloadBroken, nil
	}

	d.relay.set(d.progressReporter(ctx, logger, rec.ID, trigger))
	result, err := d.acquirer.Acquire(ctx, trigger, target)
	d.relay.set(nil, nil)
	if err != nil {
		if ctx.Err() != nil {
			d.abandon(ctx, logger, rec.ID)
			return "", ctx.Err()
		}
		logger.Error("stream acquisition failed",
			logging.String(logging.FieldEventType, "acquire_failed"),
			logging.Error(err),
		)
		result.Status = records.DownloadBroken
	}

	path := ""
	if result.Status == records.DownloadDone {
		path = "./" + filepath.Base(target)
	}
	if reportErr := d.finish(ctx, rec.ID, result, path); reportErr != nil {
		return result.Status, reportErr
	}
	if err != nil && services.IsFatal(err) {
		return result.Status, err
	}
	logger.Info("download finished",
		logging.String("status", string(result.Status)),
		logging.Int("segments", result.Segments),
		logging.Int64("bytes", result.Bytes),
	)
	return result.Status, nil
}

// awaitTrigger starts playback and waits for the first segment request,
// reloading the page once when the watchdog fires.
func (d *Downloader) awaitTrigger(ctx context.Context, logger *slog.Logger, id int64) (string, error) {
	triggers, err := d.session.Play(ctx, id)
	if err != nil {
		return "", err
	}
	timer := time.NewTimer(d.triggerTimeout)
	defer timer.Stop()
	reloaded := false
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case url, ok := <-triggers:
			if !ok {
				return "", ErrTriggerTimeout
			}
			logger.Debug("stream trigger received", logging.String("trigger", url))
			return url, nil
		case <-timer.C:
			if reloaded {
				return d.lastChance(ctx, logger, id, triggers)
			}
			reloaded = true
			logging.WarnWithContext(logger, "no stream trigger yet, reloading page", "trigger_reload",
				logging.Duration("waited", d.triggerTimeout))
			if err := d.session.Reload(ctx); err != nil {
				return "", err
			}
			timer.Reset(d.triggerTimeout)
		}
	}
}

// lastChance waits out an offline spell and takes a trigger that arrived in
// the meantime; otherwise the watchdog has expired for good.
func (d *Downloader) lastChance(ctx context.Context, logger *slog.Logger, id int64, triggers <-chan string) (string, error) {
	wasOffline, err := netcheck.WaitOnline(ctx, d.probe, d.cfg.ConnectivityPoll())
	if err != nil {
		return "", err
	}
	if wasOffline {
		logger.Info("connectivity restored while waiting for stream trigger")
	}
	select {
	case url, ok := <-triggers:
		if ok {
			logger.Debug("stream trigger received", logging.String("trigger", url))
			return url, nil
		}
	default:
	}
	return "", services.Wrap(services.ErrTimeout, "downloader", "trigger", fmt.Sprintf("video %d", id), ErrTriggerTimeout)
}

// progressReporter returns observer callbacks that log and periodically push
// the stream summary to the coordinator.
func (d *Downloader) progressReporter(ctx context.Context, logger *slog.Logger, id int64, trigger string) (func(stream.Progress), func(int, int)) {
	var last time.Time
	notify := func(p stream.Progress) {
		if p.Segments%100 == 1 {
			logger.Debug("stream progress",
				logging.Int("index", p.Index),
				logging.Int("segments", p.Segments),
				logging.Int64("bytes", p.Bytes),
			)
		}
		if !last.IsZero() && time.Since(last) < progressReportInterval {
			return
		}
		last = time.Now()
		update := coordinator.DownloadUpdate{Stream: &records.StreamInfo{InitialStreamURL: trigger, MaxPartID: p.Index}}
		if _, err := d.queue.UpdateDownload(ctx, id, update); err != nil {
			logging.WarnWithContext(logger, "progress report failed", "download_progress_failed", logging.Error(err))
		}
	}
	gap := func(from, to int) {
		logger.Info("segments skipped", logging.Int("from", from), logging.Int("to", to))
	}
	return notify, gap
}

func (d *Downloader) finish(ctx context.Context, id int64, result stream.Result, path string) error {
	status := result.Status
	update := coordinator.DownloadUpdate{Status: &status, Path: path}
	if result.InitialStreamURL != "" {
		update.Stream = result.Stream()
	}
	if _, err := d.queue.UpdateDownload(ctx, id, update); err != nil {
		return fmt.Errorf("record %d: report %s: %w", id, status, err)
	}
	return nil
}

func (d *Downloader) abandon(ctx context.Context, logger *slog.Logger, id int64) {
	abandonCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abandonTimeout)
	defer cancel()
	if err := d.queue.AbandonDownload(abandonCtx, id); err != nil {
		logging.WarnWithContext(logger, "abandon not recorded", "abandon_failed", logging.Error(err))
	}
}

// TargetName is the artifact file name for rec: "<sanitized name>.<id>.ts".
func TargetName(rec records.Record) string {
	name := fileutil.SanitizeFileName(rec.Name, "video")
	return name + "." + strconv.FormatInt(rec.ID, 10) + ".ts"
}
