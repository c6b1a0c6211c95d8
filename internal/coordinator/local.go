package coordinator

import (
	"fmt"
	"log/slog"

	"reeler/internal/config"
	"reeler/internal/history"
	"reeler/internal/logging"
	"reeler/internal/records"
)

// LocalQueue is a Coordinator working directly on the store file named by the
// configuration, together with the journal it writes to.
type LocalQueue struct {
	*Coordinator
	journal *history.Journal
}

// OpenLocal opens the record store and journal from cfg. A journal that cannot
// be opened is logged and skipped; the store is required.
func OpenLocal(cfg *config.Config, logger *slog.Logger) (*LocalQueue, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	store, err := records.Open(cfg.Store.Path, logger,
		records.WithLockPoll(cfg.LockPoll()),
		records.WithRetryDelay(cfg.SaveRetry()),
	)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithLogger(logger),
		WithStaleAfter(cfg.StaleAfter()),
	}
	journal, err := history.Open(cfg.Store.HistoryPath)
	if err != nil {
		logging.WarnWithContext(logging.NewComponentLogger(logger, "coordinator"),
			"history journal unavailable; transitions will not be recorded",
			"journal_unavailable",
			logging.String("path", cfg.Store.HistoryPath),
			logging.Error(err),
		)
		journal = nil
	} else {
		opts = append(opts, WithJournal(journal))
	}
	return &LocalQueue{Coordinator: New(store, opts...), journal: journal}, nil
}

// Journal returns the opened journal, or nil.
func (q *LocalQueue) Journal() *history.Journal {
	return q.journal
}

// Close releases the journal.
func (q *LocalQueue) Close() error {
	if q == nil || q.journal == nil {
		return nil
	}
	return q.journal.Close()
}
