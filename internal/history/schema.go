package history

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is stored in PRAGMA user_version. Journals written with a
// different version are refused; the journal is disposable, so the fix is to
// delete the file.
const schemaVersion = 1

// ErrSchemaMismatch indicates the journal was created by an incompatible build.
var ErrSchemaMismatch = errors.New("journal schema version mismatch")

func (j *Journal) initSchema(ctx context.Context) error {
	var version int
	if err := j.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read journal version: %w", err)
	}
	switch version {
	case 0:
		return j.createSchema(ctx)
	case schemaVersion:
		return nil
	default:
		return fmt.Errorf("%w: %s is version %d, this build writes %d (delete it to start over)",
			ErrSchemaMismatch, j.path, version, schemaVersion)
	}
}

// createSchema runs schema.sql and stamps the version in one transaction so a
// half-created journal is never mistaken for a current one.
func (j *Journal) createSchema(ctx context.Context) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("stamp journal version: %w", err)
	}
	return tx.Commit()
}
