package records

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"reeler/internal/services"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "videos.json")
	store, err := Open(path, nil, opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store
}

func sampleRecord(id int64) Record {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return Record{
		ID:              id,
		Name:            "Episode",
		SourceURL:       "https://portal.example.com/video.php?id=7",
		DownloadURL:     "https://portal.example.com/download.php?id=7",
		DownloadStatus:  DownloadDone,
		DownloadStarted: &started,
		Path:            "./Episode.7.ts",
		Stream:          &StreamInfo{InitialStreamURL: "https://cdn.example.com/seg1.ts", MaxPartID: 5},
		ConverterHost:   "box",
	}
}

func TestOpenMissingFileInitializesContainer(t *testing.T) {
	store := openTestStore(t)
	raw, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("expected store file to be written: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc["version"] != CurrentVersion {
		t.Fatalf("unexpected version %v", doc["version"])
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d", store.Len())
	}
}

func TestSetReloadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	rec := sampleRecord(7)
	if err := store.Set(rec, true); err != nil {
		t.Fatalf("Set: %v", err)
	}

	reopened, err := Open(store.Path(), nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := reopened.Get(7)
	if !ok {
		t.Fatal("expected record after reload")
	}
	if !got.DownloadStarted.Equal(*rec.DownloadStarted) {
		t.Fatalf("time did not round trip: %v vs %v", got.DownloadStarted, rec.DownloadStarted)
	}
	got.DownloadStarted = rec.DownloadStarted
	if !reflect.DeepEqual(got, rec) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", got, rec)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	store := openTestStore(t)
	if err := store.Set(sampleRecord(1), true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, _ := store.Get(1)
	got.Stream.MaxPartID = 99
	again, _ := store.Get(1)
	if again.Stream.MaxPartID != 5 {
		t.Fatal("mutating a returned record leaked into the store")
	}
}

func TestSetRejectsNonPositiveID(t *testing.T) {
	store := openTestStore(t)
	err := store.Set(Record{ID: 0}, true)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSetReloadsBeforeMerge(t *testing.T) {
	a := openTestStore(t)
	b, err := Open(a.Path(), nil)
	if err != nil {
		t.Fatalf("open second handle: %v", err)
	}
	if err := a.Set(sampleRecord(1), true); err != nil {
		t.Fatalf("Set a: %v", err)
	}
	if err := b.Set(sampleRecord(2), true); err != nil {
		t.Fatalf("Set b: %v", err)
	}
	if err := a.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if a.Len() != 2 {
		t.Fatalf("expected both records to survive, got %v", a.IDs())
	}
}

func TestReloadRejectsOtherVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "videos.json")
	if err := os.WriteFile(path, []byte(`{"version":"3","data":{}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path, nil)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
	raw, _ := os.ReadFile(path)
	if string(raw) != `{"version":"3","data":{}}` {
		t.Fatal("store with foreign version must not be rewritten")
	}
}

func TestReloadRejectsKeyMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "videos.json")
	if err := os.WriteFile(path, []byte(`{"version":"2","data":{"4":{"id":5}}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReloadUnreadableIsIOError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "videos.json")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path, nil); !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected io error, got %v", err)
	}
}

func TestForEachVisitsAddedRecords(t *testing.T) {
	store := openTestStore(t)
	for _, id := range []int64{3, 1, 2} {
		if err := store.Set(Record{ID: id}, true); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	var order []int64
	err := store.ForEach(func(rec Record) error {
		order = append(order, rec.ID)
		if rec.ID == 2 {
			return store.Set(Record{ID: 10}, true)
		}
		if rec.ID == 3 {
			return store.Set(Record{ID: 5}, false)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	want := []int64{1, 2, 3, 5, 10}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("visit order = %v, want %v", order, want)
	}
}

func TestForEachStopAndError(t *testing.T) {
	store := openTestStore(t)
	for id := int64(1); id <= 4; id++ {
		if err := store.Set(Record{ID: id}, true); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	visits := 0
	if err := store.ForEach(func(rec Record) error {
		visits++
		if rec.ID == 2 {
			return ErrStop
		}
		return nil
	}); err != nil {
		t.Fatalf("ErrStop should end without error, got %v", err)
	}
	if visits != 2 {
		t.Fatalf("expected 2 visits, got %d", visits)
	}

	boom := errors.New("boom")
	if err := store.ForEach(func(Record) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected visitor error, got %v", err)
	}
}

// blockStorePath replaces the store file with a non-empty directory so
// reads and atomic renames fail.
func blockStorePath(t *testing.T, path string) {
	t.Helper()
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(path, "blocker"), 0o755); err != nil {
		t.Fatal(err)
	}
}

func waitRetryFinished(t *testing.T, store *Store) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for store.retryPending.Load() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if store.retryPending.Load() {
		t.Fatal("deferred retry never ran")
	}
}

func TestSaveFailureSchedulesRetry(t *testing.T) {
	store := openTestStore(t, WithRetryDelay(200*time.Millisecond))
	if err := store.Set(sampleRecord(9), false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	blockStorePath(t, store.Path())

	if err := store.Save(); err != nil {
		t.Fatalf("Save should hide write failures, got %v", err)
	}
	if !store.SavePending() {
		t.Fatal("expected pending retry after failed save")
	}
	if err := store.Reload(); !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected io error reading a blocked path, got %v", err)
	}
	if _, ok := store.Get(9); !ok {
		t.Fatal("failed reload must keep the unsaved record")
	}
	if err := os.RemoveAll(store.Path()); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for store.SavePending() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if store.SavePending() {
		t.Fatal("deferred retry never persisted the store")
	}
	reopened, err := Open(store.Path(), nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, ok := reopened.Get(9); !ok {
		t.Fatal("expected retried save to contain the record")
	}
}

func TestFailedRetryKeepsReloadingOtherWriters(t *testing.T) {
	a := openTestStore(t, WithRetryDelay(20*time.Millisecond))
	if err := a.Set(sampleRecord(1), false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	blockStorePath(t, a.Path())
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	waitRetryFinished(t, a)
	if !a.SavePending() {
		t.Fatal("record 1 should still be pending after the retry failed")
	}
	if err := os.RemoveAll(a.Path()); err != nil {
		t.Fatal(err)
	}

	b, err := Open(a.Path(), nil)
	if err != nil {
		t.Fatalf("open second handle: %v", err)
	}
	if err := b.Set(sampleRecord(2), true); err != nil {
		t.Fatalf("b.Set: %v", err)
	}
	if err := a.Set(sampleRecord(3), true); err != nil {
		t.Fatalf("a.Set: %v", err)
	}

	reopened, err := Open(a.Path(), nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got, want := reopened.IDs(), []int64{1, 2, 3}; !reflect.DeepEqual(got, want) {
		t.Fatalf("persisted ids = %v, want %v", got, want)
	}
	if a.SavePending() {
		t.Fatal("successful save should clear pending records")
	}
}

func TestPendingRecordSurvivesReload(t *testing.T) {
	a := openTestStore(t)
	b, err := Open(a.Path(), nil)
	if err != nil {
		t.Fatalf("open second handle: %v", err)
	}
	local := sampleRecord(4)
	local.Name = "local"
	if err := a.Set(local, false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	remote := sampleRecord(4)
	remote.Name = "remote"
	if err := b.Set(remote, true); err != nil {
		t.Fatalf("b.Set: %v", err)
	}
	if err := b.Set(sampleRecord(5), true); err != nil {
		t.Fatalf("b.Set: %v", err)
	}

	if err := a.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if rec, _ := a.Get(4); rec.Name != "local" {
		t.Fatalf("unsaved record overwritten by reload: %+v", rec)
	}
	if _, ok := a.Get(5); !ok {
		t.Fatal("reload should pick up records written by others")
	}
}

func TestLockSemantics(t *testing.T) {
	a := openTestStore(t, WithLockPoll(5*time.Millisecond))
	b, err := Open(a.Path(), nil, WithLockPoll(5*time.Millisecond))
	if err != nil {
		t.Fatalf("open second handle: %v", err)
	}

	if locked, err := b.IsLocked(); err != nil || locked {
		t.Fatalf("expected unlocked store, got %v %v", locked, err)
	}
	if err := a.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if locked, err := b.IsLocked(); err != nil || !locked {
		t.Fatalf("expected locked store, got %v %v", locked, err)
	}
	if err := b.Lock(); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := b.WaitLock(ctx); err == nil {
		t.Fatal("expected WaitLock to give up when ctx expires")
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = a.Unlock()
	}()
	if err := b.WaitLock(context.Background()); err != nil {
		t.Fatalf("WaitLock: %v", err)
	}
	if err := b.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
}

func TestWithLockReloadsBeforeRunning(t *testing.T) {
	a := openTestStore(t)
	b, err := Open(a.Path(), nil)
	if err != nil {
		t.Fatalf("open second handle: %v", err)
	}
	if err := b.Set(sampleRecord(4), true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	err = a.WithLock(context.Background(), func() error {
		if _, ok := a.Get(4); !ok {
			t.Fatal("expected WithLock to reload external changes")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if locked, _ := a.IsLocked(); locked {
		t.Fatal("expected lock to be released")
	}
}
