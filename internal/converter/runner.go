package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"reeler/internal/config"
	"reeler/internal/fileutil"
	"reeler/internal/logging"
	"reeler/internal/records"
	"reeler/internal/services"
	"reeler/internal/shutdown"
)

// Queue is the coordinator surface the runner needs.
type Queue interface {
	ClaimNextConversion(ctx context.Context, host string) (*records.Record, error)
	ReportConversion(ctx context.Context, id int64, host string, status *records.ConverterStatus) (*records.Record, error)
	UpdatePath(ctx context.Context, id int64, path string) error
}

const (
	abortReportTimeout       = 10 * time.Second
	defaultHeartbeatInterval = 30 * time.Second
)

var errClaimLost = errors.New("conversion claim lost")

// Option configures a Runner.
type Option func(*Runner)

// WithHost sets the host name stamped on claims.
func WithHost(host string) Option {
	return func(r *Runner) {
		if host != "" {
			r.host = host
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithHooks registers teardown cleanup for in-flight outputs.
func WithHooks(hooks *shutdown.Hooks) Option {
	return func(r *Runner) {
		r.hooks = hooks
	}
}

// WithHeartbeatInterval overrides the configured heartbeat spacing.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.heartbeat = d
		}
	}
}

// WithClock overrides the time source used for heartbeats and file names.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// Runner converts claimed records one at a time.
type Runner struct {
	cfg     *config.Config
	queue   Queue
	encoder Encoder
	host    string
	logger  *slog.Logger
	hooks     *shutdown.Hooks
	now       func() time.Time
	heartbeat time.Duration
}

// New constructs a Runner.
func New(cfg *config.Config, queue Queue, encoder Encoder, opts ...Option) *Runner {
	host, _ := os.Hostname()
	r := &Runner{
		cfg:     cfg,
		queue:   queue,
		encoder: encoder,
		host:    host,
		logger:    logging.NewNop(),
		now:       time.Now,
		heartbeat: cfg.HeartbeatInterval(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.heartbeat <= 0 {
		r.heartbeat = defaultHeartbeatInterval
	}
	r.logger = logging.NewComponentLogger(r.logger, "converter")
	return r
}

// Run drains the queue, sleeping PollInterval whenever it is empty, until ctx
// is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	poll := r.cfg.PollInterval()
	if poll <= 0 {
		poll = time.Minute
	}
	for {
		processed, err := r.RunOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logging.WarnWithContext(r.logger, "conversion pass failed", "converter_pass_failed", logging.Error(err))
		}
		if processed && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(poll):
		}
	}
}

// RunOnce claims and converts at most one record. It reports whether a record
// was claimed. Per-record failures are reported to the queue as broken and do
// not surface as errors.
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	rec, err := r.queue.ClaimNextConversion(ctx, r.host)
	if err != nil {
		return false, fmt.Errorf("claim conversion: %w", err)
	}
	if rec == nil {
		return false, nil
	}
	return true, r.convert(ctx, *rec)
}

func (r *Runner) convert(ctx context.Context, rec records.Record) error {
	ctx = services.WithRecordID(ctx, rec.ID)
	ctx = services.WithStage(ctx, "converting")
	ctx = services.WithHost(ctx, r.host)
	logger := logging.WithContext(ctx, r.logger)

	source := resolveSource(r.cfg.Paths.DownloadsDir, rec.Path)
	if source == "" || !fileutil.Exists(source) {
		logging.WarnWithContext(logger, "artifact missing", "artifact_missing",
			logging.String("record", rec.Label()),
			logging.String("path", rec.Path),
		)
		return r.report(ctx, rec.ID, records.ConverterBroken)
	}

	target := targetFor(source, r.encoder.Extension(), r.encoder.Name())
	if moved, err := setAside(target, r.now()); err != nil {
		logging.WarnWithContext(logger, "cannot set aside existing target", "target_conflict",
			logging.String("target", target), logging.Error(err))
		return r.report(ctx, rec.ID, records.ConverterBroken)
	} else if moved != "" {
		logger.Info("existing target set aside", logging.String("target", target), logging.String("moved_to", moved))
	}

	logger.Info("conversion started",
		logging.String("record", rec.Label()),
		logging.String("source", source),
		logging.String("target", target),
		logging.String("encoder", r.encoder.Name()),
	)

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	partial := r.hooks.Register(fmt.Sprintf("remove partial conversion %d", rec.ID), func() {
		_ = os.Remove(target)
	})

	started := r.now()
	stopBeats := r.startHeartbeats(jobCtx, cancel, logger, rec.ID)
	err := r.encoder.Encode(jobCtx, source, target, progressLogger(logger))
	stopBeats()
	partial.Protect()

	if err != nil {
		_ = os.Remove(target)
		switch {
		case errors.Is(context.Cause(jobCtx), errClaimLost):
			logging.WarnWithContext(logger, "conversion abandoned, claim taken over", "claim_lost")
			return nil
		case ctx.Err() != nil:
			r.reportAborted(ctx, logger, rec.ID)
			return ctx.Err()
		}
		logger.Error("conversion failed",
			logging.String(logging.FieldEventType, "conversion_failed"),
			logging.String(logging.FieldErrorHint, "inspect encoder output"),
			logging.Error(err),
		)
		return r.report(ctx, rec.ID, records.ConverterBroken)
	}

	if err := r.queue.UpdatePath(ctx, rec.ID, recordPath(r.cfg.Paths.DownloadsDir, target)); err != nil {
		return fmt.Errorf("record %d: update path: %w", rec.ID, err)
	}
	if err := r.report(ctx, rec.ID, records.ConverterDone); err != nil {
		return err
	}
	logger.Info("conversion finished",
		logging.String("target", target),
		logging.Duration("elapsed", r.now().Sub(started)),
	)

	where, err := dispose(r.cfg, source, r.now())
	if err != nil {
		logging.WarnWithContext(logger, "original not disposed", "drop_failed",
			logging.String("policy", r.cfg.Converter.DropPolicy),
			logging.String("source", source),
			logging.Error(err),
		)
		return nil
	}
	logger.Debug("original disposed", logging.String("policy", r.cfg.Converter.DropPolicy), logging.String("result", where))
	return nil
}

// progressLogger logs sampled encoder progress.
func progressLogger(logger *slog.Logger) func(Progress) {
	sampler := logging.NewProgressSampler(5)
	var mu sync.Mutex
	return func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		if !sampler.ShouldLog(p.Percent, p.Stage) {
			return
		}
		attrs := []logging.Attr{logging.String(logging.FieldStage, p.Stage)}
		if p.Percent >= 0 {
			attrs = append(attrs, logging.Float64("percent", p.Percent))
		}
		if p.Detail != "" {
			attrs = append(attrs, logging.String("detail", p.Detail))
		}
		logger.Info("conversion progress", logging.Args(attrs...)...)
	}
}

// startHeartbeats pings the queue every heartbeat interval until the returned
// stop function is called. A lost claim cancels the job with errClaimLost.
func (r *Runner) startHeartbeats(ctx context.Context, cancel context.CancelCauseFunc, logger *slog.Logger, id int64) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
			}
			if _, err := r.queue.ReportConversion(ctx, id, r.host, nil); err != nil {
				if services.ClaimLost(err) {
					cancel(errClaimLost)
					return
				}
				if ctx.Err() == nil {
					logging.WarnWithContext(logger, "heartbeat failed", "heartbeat_failed", logging.Error(err))
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (r *Runner) report(ctx context.Context, id int64, status records.ConverterStatus) error {
	if _, err := r.queue.ReportConversion(ctx, id, r.host, &status); err != nil {
		return fmt.Errorf("record %d: report %s: %w", id, status, err)
	}
	return nil
}

func (r *Runner) reportAborted(ctx context.Context, logger *slog.Logger, id int64) {
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortReportTimeout)
	defer cancel()
	if err := r.report(reportCtx, id, records.ConverterAborted); err != nil {
		logging.WarnWithContext(logger, "abort not reported", "abort_report_failed", logging.Error(err))
		return
	}
	logger.Info("conversion aborted")
}
