package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"reeler/internal/fileutil"
	"reeler/internal/logging"
	"reeler/internal/services"
)

// CurrentVersion is the container version this build reads and writes.
const CurrentVersion = "2"

const (
	defaultRetryDelay = time.Second
	defaultLockPoll   = 250 * time.Millisecond
)

var (
	// ErrSchemaMismatch reports a store written by an incompatible build.
	ErrSchemaMismatch = errors.New("record store schema version mismatch")
	// ErrStop ends ForEach early without an error.
	ErrStop = errors.New("stop iteration")
	// ErrLocked reports that another process holds the store lock.
	ErrLocked = errors.New("record store is locked")
)

type container struct {
	Version string                     `json:"version"`
	Data    map[string]json.RawMessage `json:"data"`
}

type snapshot struct {
	Version string           `json:"version"`
	Data    map[int64]Record `json:"data"`
}

// Store is the JSON-backed record store.
type Store struct {
	path       string
	logger     *slog.Logger
	retryDelay time.Duration
	lockPoll   time.Duration

	mu      sync.RWMutex
	data    map[int64]Record
	pending map[int64]pendingRecord
	gen     uint64

	saveMu       sync.Mutex
	retryPending atomic.Bool

	txMu  sync.Mutex
	flock *flock.Flock
}

// pendingRecord is a Set that has not reached the file yet. gen orders writes
// so a save only clears the entries it actually wrote.
type pendingRecord struct {
	rec Record
	gen uint64
}

// Option customizes a Store.
type Option func(*Store)

// WithRetryDelay sets the delay before the deferred save retry.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retryDelay = d
		}
	}
}

// WithLockPoll sets the WaitLock polling interval.
func WithLockPoll(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockPoll = d
		}
	}
}

// Open constructs a store for path and loads it.
func Open(path string, logger *slog.Logger, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, services.Wrap(services.ErrValidation, "records", "open", "store path is empty", nil)
	}
	s := &Store{
		path:       path,
		logger:     logging.NewComponentLogger(logger, "records"),
		retryDelay: defaultRetryDelay,
		lockPoll:   defaultLockPoll,
		data:       make(map[int64]Record),
		pending:    make(map[int64]pendingRecord),
		flock:      flock.New(path + ".lock"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the backing file. A missing file becomes an empty container
// that is persisted immediately. Records set but not yet saved (including
// those whose save failed) are laid over the file contents, so they survive
// the reload without hiding what other processes wrote.
func (s *Store) Reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.replace(make(map[int64]Record))
			if err := s.persist(); err != nil {
				return services.Wrap(services.ErrIO, "records", "init", s.path, err)
			}
			s.logger.Info("initialized empty record store", logging.String("path", s.path))
			return nil
		}
		return services.Wrap(services.ErrIO, "records", "read", s.path, err)
	}

	data, migrated, err := decode(raw)
	if err != nil {
		return err
	}
	s.replace(data)

	if migrated {
		if err := s.persist(); err != nil {
			return services.Wrap(services.ErrIO, "records", "migrate", s.path, err)
		}
		s.logger.Info("migrated legacy record store",
			logging.String("path", s.path),
			logging.Int("records", len(data)),
			logging.String("version", CurrentVersion),
		)
	}
	return nil
}

// replace installs data read from disk with the pending records on top.
func (s *Store) replace(data map[int64]Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.pending {
		data[id] = p.rec.Clone()
	}
	s.data = data
}

func decode(raw []byte) (map[int64]Record, bool, error) {
	if len(trimSpace(raw)) == 0 {
		return make(map[int64]Record), true, nil
	}
	if trimSpace(raw)[0] == '[' {
		data, err := migrateLegacyList(raw)
		return data, true, err
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, false, services.Wrap(services.ErrIO, "records", "decode", "store is not valid JSON", err)
	}
	versionRaw, versioned := probe["version"]
	if !versioned {
		data, err := migrateLegacy(probe)
		return data, true, err
	}

	var version string
	if err := json.Unmarshal(versionRaw, &version); err != nil {
		return nil, false, fmt.Errorf("%w: unreadable version tag %s", ErrSchemaMismatch, string(versionRaw))
	}
	if version != CurrentVersion {
		return nil, false, fmt.Errorf("%w: store has version %q, this build requires %q", ErrSchemaMismatch, version, CurrentVersion)
	}

	var doc container
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, services.Wrap(services.ErrIO, "records", "decode", "container", err)
	}
	data := make(map[int64]Record, len(doc.Data))
	for key, payload := range doc.Data {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || id <= 0 {
			return nil, false, services.Wrap(services.ErrValidation, "records", "decode", fmt.Sprintf("invalid record key %q", key), err)
		}
		var rec Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, false, services.Wrap(services.ErrIO, "records", "decode", fmt.Sprintf("record %q", key), err)
		}
		if rec.ID == 0 {
			rec.ID = id
		}
		if rec.ID != id {
			return nil, false, services.Wrap(services.ErrValidation, "records", "decode", fmt.Sprintf("record key %q holds id %d", key, rec.ID), nil)
		}
		data[id] = rec
	}
	return data, false, nil
}

func trimSpace(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\n' || b[0] == '\r' || b[0] == '\t') {
		b = b[1:]
	}
	return b
}

// Get returns a copy of the in-memory record. It never touches the file.
func (s *Store) Get(id int64) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[id]
	if !ok {
		return Record{}, false
	}
	return rec.Clone(), true
}

// Set reloads the store, replaces the record under its id, and saves when
// autoSave is set. The record stays pending, and is re-applied by every
// reload, until a save writes it.
func (s *Store) Set(rec Record, autoSave bool) error {
	if rec.ID <= 0 {
		return services.Wrap(services.ErrValidation, "records", "set", fmt.Sprintf("record id must be positive, got %d", rec.ID), nil)
	}
	if err := s.Reload(); err != nil {
		return err
	}
	s.mu.Lock()
	s.gen++
	s.data[rec.ID] = rec.Clone()
	s.pending[rec.ID] = pendingRecord{rec: rec.Clone(), gen: s.gen}
	s.mu.Unlock()
	if autoSave {
		return s.Save()
	}
	return nil
}

// Save writes the whole container. A failed write is logged and retried once
// after the retry delay; the caller always gets nil.
func (s *Store) Save() error {
	if err := s.persist(); err != nil {
		s.logger.Warn("record store save failed; retry scheduled",
			logging.String("path", s.path),
			logging.Duration("retry_in", s.retryDelay),
			logging.Error(err),
			logging.String(logging.FieldEventType, "store_save_failed"),
		)
		s.scheduleRetry()
	}
	return nil
}

func (s *Store) scheduleRetry() {
	if !s.retryPending.CompareAndSwap(false, true) {
		return
	}
	time.AfterFunc(s.retryDelay, func() {
		defer s.retryPending.Store(false)
		if err := s.flush(); err != nil {
			s.logger.Error("record store save retry failed",
				logging.String("path", s.path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "store_save_retry_failed"),
				logging.String(logging.FieldErrorHint, "check free space and permissions on the state directory"),
			)
			return
		}
		s.logger.Info("record store save retry succeeded", logging.String("path", s.path))
	})
}

// flush re-reads the file under the pending records and writes the result,
// so a late retry does not clobber records saved elsewhere in the meantime.
func (s *Store) flush() error {
	if err := s.Reload(); err != nil {
		return err
	}
	return s.persist()
}

// SavePending reports whether in-memory changes have not reached the file yet.
func (s *Store) SavePending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending) > 0 || s.retryPending.Load()
}

func (s *Store) persist() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	doc := snapshot{Version: CurrentVersion, Data: make(map[int64]Record, len(s.data))}
	for id, rec := range s.data {
		doc.Data[id] = rec
	}
	written := make(map[int64]uint64, len(s.pending))
	for id, p := range s.pending {
		written[id] = p.gen
	}
	s.mu.RUnlock()

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.path, append(payload, '\n')); err != nil {
		return err
	}
	s.mu.Lock()
	for id, gen := range written {
		if p, ok := s.pending[id]; ok && p.gen == gen {
			delete(s.pending, id)
		}
	}
	s.mu.Unlock()
	return nil
}

// ForEach visits records in ascending id order until every id present at any
// point during the walk has been visited exactly once. Records added by visit
// itself are therefore picked up too. Returning ErrStop ends the walk.
func (s *Store) ForEach(visit func(Record) error) error {
	visited := make(map[int64]struct{})
	for {
		pending := s.unvisited(visited)
		if len(pending) == 0 {
			return nil
		}
		for _, id := range pending {
			visited[id] = struct{}{}
			rec, ok := s.Get(id)
			if !ok {
				continue
			}
			if err := visit(rec); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
		}
	}
}

func (s *Store) unvisited(visited map[int64]struct{}) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.data))
	for id := range s.data {
		if _, seen := visited[id]; !seen {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// All returns a copy of every record keyed by id.
func (s *Store) All() map[int64]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]Record, len(s.data))
	for id, rec := range s.data {
		out[id] = rec.Clone()
	}
	return out
}

// IDs returns every record id in ascending order.
func (s *Store) IDs() []int64 {
	return s.unvisited(nil)
}

// Len reports the number of records held in memory.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
