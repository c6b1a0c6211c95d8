package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"reeler/internal/history"
	"reeler/internal/logging"
	"reeler/internal/records"
)

// DefaultStaleAfter is how long a converting claim survives without a heartbeat.
const DefaultStaleAfter = 12 * time.Hour

// Journal receives one event per successful transition.
type Journal interface {
	Append(ctx context.Context, ev history.Event) error
}

// Coordinator serializes job claims and reports against one record store.
type Coordinator struct {
	store      *records.Store
	journal    Journal
	logger     *slog.Logger
	staleAfter time.Duration
	now        func() time.Time

	mu sync.Mutex
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithJournal appends every transition to journal.
func WithJournal(journal Journal) Option {
	return func(c *Coordinator) { c.journal = journal }
}

// WithStaleAfter overrides the converting-claim staleness threshold.
func WithStaleAfter(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.staleAfter = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logging.NewComponentLogger(logger, "coordinator") }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs a Coordinator over store.
func New(store *records.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:      store,
		logger:     logging.NewNop(),
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store exposes the backing record store.
func (c *Coordinator) Store() *records.Store {
	return c.store
}

// StaleAfter reports the staleness threshold in effect.
func (c *Coordinator) StaleAfter() time.Duration {
	return c.staleAfter
}

func (c *Coordinator) tx(ctx context.Context, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.WithLock(ctx, fn)
}

func (c *Coordinator) stamp() *time.Time {
	return records.TimePtr(c.now())
}

func (c *Coordinator) journalEvent(ctx context.Context, kind history.Kind, rec records.Record, host, detail string) {
	if c.journal == nil {
		return
	}
	ev := history.Event{
		RecordID:        rec.ID,
		Kind:            kind,
		DownloadStatus:  string(rec.DownloadStatus),
		ConverterStatus: string(rec.ConverterStatus),
		Host:            host,
		Detail:          detail,
		CreatedAt:       c.now(),
	}
	if err := c.journal.Append(ctx, ev); err != nil {
		c.logger.Warn("journal append failed",
			logging.Int64(logging.FieldRecordID, rec.ID),
			logging.String("kind", string(kind)),
			logging.Error(err),
		)
	}
}
