package testsupport

import (
	"testing"

	"reeler/internal/config"
	"reeler/internal/history"
	"reeler/internal/records"
)

// MustOpenStore opens the record store named by cfg.
func MustOpenStore(t testing.TB, cfg *config.Config) *records.Store {
	t.Helper()

	store, err := records.Open(cfg.Store.Path, nil,
		records.WithLockPoll(cfg.LockPoll()),
		records.WithRetryDelay(cfg.SaveRetry()),
	)
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	return store
}

// MustOpenJournal opens the transition journal and registers cleanup.
func MustOpenJournal(t testing.TB, cfg *config.Config) *history.Journal {
	t.Helper()

	journal, err := history.Open(cfg.Store.HistoryPath)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = journal.Close()
	})
	return journal
}

// SeedRecords writes recs into store, failing the test on error.
func SeedRecords(t testing.TB, store *records.Store, recs ...records.Record) {
	t.Helper()

	for _, rec := range recs {
		if err := store.Set(rec, true); err != nil {
			t.Fatalf("seed record %d: %v", rec.ID, err)
		}
	}
}
