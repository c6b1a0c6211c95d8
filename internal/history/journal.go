package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Kind names a transition.
type Kind string

const (
	KindCreated         Kind = "created"
	KindUpdated         Kind = "updated"
	KindDownloadClaimed Kind = "download_claimed"
	KindDownloadUpdated Kind = "download_progress"
	KindDownloadDone    Kind = "download_finished"
	KindRepeat          Kind = "repeat"
	KindConvertClaimed  Kind = "convert_claimed"
	KindConvertFinished Kind = "convert_finished"
)

// Event is one journal row.
type Event struct {
	ID              int64
	RecordID        int64
	Kind            Kind
	DownloadStatus  string
	ConverterStatus string
	Host            string
	Detail          string
	CreatedAt       time.Time
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	RecordID int64
	Kind     Kind
	Limit    int
}

// Journal is the SQLite-backed transition log.
type Journal struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
	defaultListLimit        = 200
)

// Open creates or connects to the journal at path.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	journal := &Journal{db: db, path: path}
	if err := journal.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return journal, nil
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Append records one event. CreatedAt defaults to now.
func (j *Journal) Append(ctx context.Context, ev Event) error {
	if j == nil {
		return nil
	}
	if ev.RecordID <= 0 {
		return fmt.Errorf("journal event needs a record id")
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := j.db.ExecContext(ctx,
			`INSERT INTO events (record_id, kind, download_status, converter_status, host, detail, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ev.RecordID, string(ev.Kind), ev.DownloadStatus, ev.ConverterStatus, ev.Host, ev.Detail,
			ev.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		return err
	})
}

// List returns events newest first.
func (j *Journal) List(ctx context.Context, filter Filter) ([]Event, error) {
	ctx = ensureContext(ctx)
	var (
		clauses []string
		args    []any
	)
	if filter.RecordID > 0 {
		clauses = append(clauses, "record_id = ?")
		args = append(args, filter.RecordID)
	}
	if filter.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	query := "SELECT id, record_id, kind, download_status, converter_status, host, detail, created_at FROM events"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev      Event
			kind    string
			created string
		)
		if err := rows.Scan(&ev.ID, &ev.RecordID, &kind, &ev.DownloadStatus, &ev.ConverterStatus, &ev.Host, &ev.Detail, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = Kind(kind)
		if ts, parseErr := time.Parse(time.RFC3339Nano, created); parseErr == nil {
			ev.CreatedAt = ts
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Prune deletes events older than cutoff and returns how many were removed.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := j.db.ExecContext(ctx, "DELETE FROM events WHERE created_at < ?", cutoff.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return removed, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
