package coordinator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"reeler/internal/coordinator"
	"reeler/internal/history"
	"reeler/internal/records"
	"reeler/internal/services"
	"reeler/internal/testsupport"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func statusPtr(s records.ConverterStatus) *records.ConverterStatus { return &s }

func downloadPtr(s records.DownloadStatus) *records.DownloadStatus { return &s }

func TestClaimNextDownloadPicksLowestEligible(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedRecords(t, store,
		records.Record{ID: 1, DownloadStatus: records.DownloadDone},
		records.Record{ID: 2, DownloadStatus: records.DownloadBroken},
		records.Record{ID: 3, DownloadStatus: records.DownloadDownloading},
		records.Record{ID: 4, DownloadStatus: records.DownloadRepeat},
		records.Record{ID: 5, DownloadStatus: records.DownloadInit},
	)
	coord := coordinator.New(store)
	ctx := context.Background()

	first, err := coord.ClaimNextDownload(ctx, "alpha")
	if err != nil {
		t.Fatalf("ClaimNextDownload: %v", err)
	}
	if first == nil || first.ID != 4 {
		t.Fatalf("expected record 4, got %+v", first)
	}
	if first.DownloadStatus != records.DownloadDownloading || first.DownloadStarted == nil || first.DownloadHost != "alpha" {
		t.Fatalf("claim not stamped: %+v", first)
	}

	second, err := coord.ClaimNextDownload(ctx, "alpha")
	if err != nil || second == nil || second.ID != 5 {
		t.Fatalf("expected record 5, got %+v err=%v", second, err)
	}
	none, err := coord.ClaimNextDownload(ctx, "alpha")
	if err != nil || none != nil {
		t.Fatalf("expected no eligible record, got %+v err=%v", none, err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	persisted, _ := reopened.Get(4)
	if persisted.DownloadStatus != records.DownloadDownloading {
		t.Fatalf("claim was not persisted: %+v", persisted)
	}
}

func TestConcurrentDownloadClaimsAreDistinct(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	seed := testsupport.MustOpenStore(t, cfg)
	const total = 12
	for id := int64(1); id <= total; id++ {
		testsupport.SeedRecords(t, seed, records.Record{ID: id, DownloadStatus: records.DownloadInit})
	}

	// Two coordinators over separate store handles behave like two processes;
	// each is also shared by two goroutines.
	coords := []*coordinator.Coordinator{
		coordinator.New(testsupport.MustOpenStore(t, cfg)),
		coordinator.New(testsupport.MustOpenStore(t, cfg)),
	}

	var (
		mu      sync.Mutex
		claimed = make(map[int64]int)
	)
	group, ctx := errgroup.WithContext(context.Background())
	for worker := 0; worker < 4; worker++ {
		coord := coords[worker%len(coords)]
		group.Go(func() error {
			for {
				rec, err := coord.ClaimNextDownload(ctx, "worker")
				if err != nil {
					return err
				}
				if rec == nil {
					return nil
				}
				mu.Lock()
				claimed[rec.ID]++
				mu.Unlock()
			}
		})
	}
	if err := group.Wait(); err != nil {
		t.Fatalf("claim workers: %v", err)
	}

	if len(claimed) != total {
		t.Fatalf("expected %d distinct claims, got %d: %v", total, len(claimed), claimed)
	}
	for id, n := range claimed {
		if n != 1 {
			t.Fatalf("record %d claimed %d times", id, n)
		}
	}
}

func TestUpdateDownload(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedRecords(t, store,
		records.Record{ID: 1, DownloadStatus: records.DownloadInit},
		records.Record{ID: 2, DownloadStatus: records.DownloadDone},
	)
	coord := coordinator.New(store)
	ctx := context.Background()

	if _, err := coord.ClaimNextDownload(ctx, "alpha"); err != nil {
		t.Fatal(err)
	}

	progress, err := coord.UpdateDownload(ctx, 1, coordinator.DownloadUpdate{
		Stream: &records.StreamInfo{InitialStreamURL: "https://cdn.example.com/seg1.ts", MaxPartID: 3},
	})
	if err != nil {
		t.Fatalf("progress update: %v", err)
	}
	if progress.DownloadStatus != records.DownloadDownloading || progress.Stream.MaxPartID != 3 {
		t.Fatalf("unexpected progress record %+v", progress)
	}

	done, err := coord.UpdateDownload(ctx, 1, coordinator.DownloadUpdate{
		Status: downloadPtr(records.DownloadDone),
		Path:   "./A.1.ts",
		Stream: &records.StreamInfo{InitialStreamURL: "https://cdn.example.com/seg1.ts", MaxPartID: 9},
	})
	if err != nil {
		t.Fatalf("terminal update: %v", err)
	}
	if done.DownloadStatus != records.DownloadDone || done.DownloadFinished == nil || done.Path != "./A.1.ts" || done.ConverterStatus != records.ConverterWaiting {
		t.Fatalf("unexpected terminal record %+v", done)
	}

	if _, err := coord.UpdateDownload(ctx, 2, coordinator.DownloadUpdate{Status: downloadPtr(records.DownloadBroken)}); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict for record not downloading, got %v", err)
	}
	if _, err := coord.UpdateDownload(ctx, 99, coordinator.DownloadUpdate{}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := coord.UpdateDownload(ctx, 1, coordinator.DownloadUpdate{Status: downloadPtr(records.DownloadInit)}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestClaimNextConversionSkipsIneligible(t *testing.T) {
	clk := newClock()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	fresh := records.TimePtr(clk.Now().Add(-time.Hour))
	testsupport.SeedRecords(t, store,
		records.Record{ID: 1, DownloadStatus: records.DownloadDownloading},
		records.Record{ID: 2, DownloadStatus: records.DownloadDone, ConverterStatus: records.ConverterDone},
		records.Record{ID: 3, DownloadStatus: records.DownloadDone, ConverterStatus: records.ConverterBroken},
		records.Record{ID: 4, DownloadStatus: records.DownloadDone, ConverterStatus: records.ConverterConverting, ConvertingStarted: fresh},
		records.Record{ID: 5, DownloadStatus: records.DownloadDone, ConverterStatus: records.ConverterAborted},
		records.Record{ID: 6, DownloadStatus: records.DownloadDone},
	)
	coord := coordinator.New(store, coordinator.WithClock(clk.Now))
	ctx := context.Background()

	first, err := coord.ClaimNextConversion(ctx, "encoder-1")
	if err != nil {
		t.Fatalf("ClaimNextConversion: %v", err)
	}
	if first == nil || first.ID != 5 {
		t.Fatalf("expected aborted record 5 to be retried first, got %+v", first)
	}
	if first.ConverterStatus != records.ConverterConverting || first.ConverterHost != "encoder-1" || !first.ConvertingStarted.Equal(clk.Now()) {
		t.Fatalf("claim not stamped: %+v", first)
	}

	second, err := coord.ClaimNextConversion(ctx, "encoder-1")
	if err != nil || second == nil || second.ID != 6 {
		t.Fatalf("expected record 6, got %+v err=%v", second, err)
	}
	none, err := coord.ClaimNextConversion(ctx, "encoder-1")
	if err != nil || none != nil {
		t.Fatalf("expected nothing eligible, got %+v err=%v", none, err)
	}
}

func TestStaleConversionIsReclaimed(t *testing.T) {
	clk := newClock()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedRecords(t, store, records.Record{ID: 1, DownloadStatus: records.DownloadDone})
	coord := coordinator.New(store, coordinator.WithClock(clk.Now), coordinator.WithStaleAfter(12*time.Hour))
	ctx := context.Background()

	if rec, err := coord.ClaimNextConversion(ctx, "dead-host"); err != nil || rec == nil {
		t.Fatalf("initial claim: %+v %v", rec, err)
	}
	clk.Advance(6 * time.Hour)
	if _, err := coord.ReportConversion(ctx, 1, "dead-host", nil); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	// Twelve hours after the claim, but only six after the heartbeat.
	clk.Advance(6 * time.Hour)
	if rec, err := coord.ClaimNextConversion(ctx, "other"); err != nil || rec != nil {
		t.Fatalf("heartbeat should keep the claim fresh, got %+v err=%v", rec, err)
	}

	clk.Advance(6*time.Hour + time.Minute)
	rec, err := coord.ClaimNextConversion(ctx, "other")
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if rec == nil || rec.ID != 1 || rec.ConverterHost != "other" || rec.LastConverterPing != nil {
		t.Fatalf("expected stale record to be reclaimed, got %+v", rec)
	}

	// The original worker wakes up: its heartbeat and outcome are refused.
	if _, err := coord.ReportConversion(ctx, 1, "dead-host", nil); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict for the previous owner's heartbeat, got %v", err)
	}
	if _, err := coord.ReportConversion(ctx, 1, "dead-host", statusPtr(records.ConverterDone)); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict for the previous owner's report, got %v", err)
	}
	current, _ := coord.Entry(ctx, 1)
	if current.ConverterStatus != records.ConverterConverting || current.LastConverterPing != nil || current.ConverterHost != "other" {
		t.Fatalf("record changed by the previous owner: %+v", current)
	}
	if _, err := coord.ReportConversion(ctx, 1, "other", nil); err != nil {
		t.Fatalf("new owner heartbeat: %v", err)
	}
}

func TestReportConversion(t *testing.T) {
	clk := newClock()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedRecords(t, store,
		records.Record{ID: 1, DownloadStatus: records.DownloadDone},
		records.Record{ID: 2, DownloadStatus: records.DownloadDone, ConverterStatus: records.ConverterWaiting},
	)
	coord := coordinator.New(store, coordinator.WithClock(clk.Now))
	ctx := context.Background()

	if _, err := coord.ClaimNextConversion(ctx, "encoder"); err != nil {
		t.Fatal(err)
	}

	clk.Advance(time.Minute)
	beat, err := coord.ReportConversion(ctx, 1, "encoder", nil)
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if beat.LastConverterPing == nil || !beat.LastConverterPing.Equal(clk.Now()) || beat.ConverterStatus != records.ConverterConverting {
		t.Fatalf("heartbeat not recorded: %+v", beat)
	}

	if _, err := coord.ReportConversion(ctx, 1, "encoder", statusPtr(records.ConverterWaiting)); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for non-terminal status, got %v", err)
	}

	// An empty host skips the ownership check.
	done, err := coord.ReportConversion(ctx, 1, "", statusPtr(records.ConverterDone))
	if err != nil {
		t.Fatalf("terminal report: %v", err)
	}
	if done.ConverterStatus != records.ConverterDone || done.ConvertingFinished == nil || done.LastConverterPing != nil {
		t.Fatalf("terminal report not applied: %+v", done)
	}

	before, _ := coord.Entry(ctx, 2)
	if _, err := coord.ReportConversion(ctx, 2, "encoder", statusPtr(records.ConverterDone)); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	after, _ := coord.Entry(ctx, 2)
	if after.ConverterStatus != before.ConverterStatus || after.ConvertingFinished != nil {
		t.Fatalf("record changed after conflict: %+v", after)
	}

	if _, err := coord.ReportConversion(ctx, 42, "encoder", nil); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEntryCRUD(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	coord := coordinator.New(store)
	ctx := context.Background()

	if _, err := coord.CreateEntry(ctx, records.Record{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing id, got %v", err)
	}
	created, err := coord.CreateEntry(ctx, records.Record{
		ID:             7,
		Name:           "Seven",
		SourceURL:      "https://portal.example.com/video.php?id=7",
		DownloadStatus: records.DownloadInit,
		Stream:         &records.StreamInfo{InitialStreamURL: "https://cdn.example.com/seg1.ts", MaxPartID: 2},
	})
	if err != nil || created.ID != 7 {
		t.Fatalf("CreateEntry: %+v %v", created, err)
	}

	merged, err := coord.MergeEntry(ctx, 7, map[string]any{
		"id":     99,
		"name":   "Seven (HD)",
		"stream": nil,
		"path":   "./Seven.7.ts",
	})
	if err != nil {
		t.Fatalf("MergeEntry: %v", err)
	}
	if merged.ID != 7 || merged.Name != "Seven (HD)" || merged.Stream != nil || merged.Path != "./Seven.7.ts" || merged.SourceURL == "" {
		t.Fatalf("unexpected merge result %+v", merged)
	}

	if _, err := coord.MergeEntry(ctx, 7, map[string]any{"downloadStatus": "sideways"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := coord.MergeEntry(ctx, 7, map[string]any{"downloadStarted": "yesterday"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected schema error, got %v", err)
	}
	if _, err := coord.MergeEntry(ctx, 8, map[string]any{"name": "x"}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := coord.UpdatePath(ctx, 7, "./Seven.7.mp4"); err != nil {
		t.Fatalf("UpdatePath: %v", err)
	}
	entries, err := coord.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 || entries[7].Path != "./Seven.7.mp4" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestMarkRepeatAndAbandon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedRecords(t, store,
		records.Record{ID: 1, DownloadStatus: records.DownloadBroken},
		records.Record{ID: 2, DownloadStatus: records.DownloadDone},
		records.Record{ID: 3, DownloadStatus: records.DownloadInit},
	)
	coord := coordinator.New(store)
	ctx := context.Background()

	changed, err := coord.MarkRepeat(ctx, 1, 2, 50)
	if changed != 2 {
		t.Fatalf("expected 2 records changed, got %d", changed)
	}
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for id 50, got %v", err)
	}
	reopened := testsupport.MustOpenStore(t, cfg)
	for _, id := range []int64{1, 2} {
		rec, _ := reopened.Get(id)
		if rec.DownloadStatus != records.DownloadRepeat {
			t.Fatalf("record %d = %q, want repeat", id, rec.DownloadStatus)
		}
	}

	claimed, err := coord.ClaimNextDownload(ctx, "host")
	if err != nil || claimed == nil || claimed.ID != 1 {
		t.Fatalf("expected repeat record 1 to be claimed, got %+v %v", claimed, err)
	}
	if err := coord.AbandonDownload(ctx, claimed.ID); err != nil {
		t.Fatalf("AbandonDownload: %v", err)
	}
	rec, _ := coord.Entry(ctx, 1)
	if rec.DownloadStatus != records.DownloadBroken || rec.DownloadFinished == nil {
		t.Fatalf("expected abandoned record to be broken, got %+v", rec)
	}
	// Not downloading: untouched.
	if err := coord.AbandonDownload(ctx, 3); err != nil {
		t.Fatalf("AbandonDownload idle record: %v", err)
	}
	if rec, _ := coord.Entry(ctx, 3); rec.DownloadStatus != records.DownloadInit {
		t.Fatalf("idle record changed: %+v", rec)
	}
}

func TestTransitionsAreJournaled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	journal := testsupport.MustOpenJournal(t, cfg)
	coord := coordinator.New(store, coordinator.WithJournal(journal))
	ctx := context.Background()

	if _, err := coord.CreateEntry(ctx, records.Record{ID: 1, DownloadStatus: records.DownloadInit}); err != nil {
		t.Fatal(err)
	}
	if _, err := coord.ClaimNextDownload(ctx, "alpha"); err != nil {
		t.Fatal(err)
	}
	if _, err := coord.UpdateDownload(ctx, 1, coordinator.DownloadUpdate{Status: downloadPtr(records.DownloadDone), Path: "./x.1.ts"}); err != nil {
		t.Fatal(err)
	}

	events, err := journal.List(ctx, history.Filter{RecordID: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []history.Kind{history.KindDownloadDone, history.KindDownloadClaimed, history.KindCreated}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), events)
	}
	for i, kind := range want {
		if events[i].Kind != kind {
			t.Fatalf("event %d = %s, want %s", i, events[i].Kind, kind)
		}
	}
	if events[0].Host != "alpha" || events[0].Detail != "./x.1.ts" {
		t.Fatalf("unexpected terminal event %+v", events[0])
	}
}

func TestOpenLocal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	queue, err := coordinator.OpenLocal(cfg, nil)
	if err != nil {
		t.Fatalf("OpenLocal: %v", err)
	}
	defer queue.Close()
	if queue.Journal() == nil {
		t.Fatal("expected journal to be opened")
	}
	if queue.StaleAfter() != cfg.StaleAfter() {
		t.Fatalf("stale threshold = %s, want %s", queue.StaleAfter(), cfg.StaleAfter())
	}
}
