package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"reeler/internal/history"
	"reeler/internal/records"
	"reeler/internal/services"
)

// Entries returns every record keyed by id.
func (c *Coordinator) Entries(ctx context.Context) (map[int64]records.Record, error) {
	var out map[int64]records.Record
	err := c.tx(ctx, func() error {
		out = c.store.All()
		return nil
	})
	return out, err
}

// Entry returns one record.
func (c *Coordinator) Entry(ctx context.Context, id int64) (*records.Record, error) {
	var rec records.Record
	err := c.tx(ctx, func() error {
		var ok bool
		rec, ok = c.store.Get(id)
		if !ok {
			return services.Wrap(services.ErrNotFound, "coordinator", "entry", fmt.Sprintf("record #%d", id), nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateEntry stores rec, replacing any record with the same id.
func (c *Coordinator) CreateEntry(ctx context.Context, rec records.Record) (*records.Record, error) {
	if rec.ID <= 0 {
		return nil, services.Wrap(services.ErrValidation, "coordinator", "create entry", "positive id required", nil)
	}
	if err := records.Validate(rec); err != nil {
		return nil, err
	}
	err := c.tx(ctx, func() error {
		return c.store.Set(rec, true)
	})
	if err != nil {
		return nil, err
	}
	c.journalEvent(ctx, history.KindCreated, rec, "", rec.Name)
	return &rec, nil
}

// MergeEntry shallow-merges patch into the stored record: top-level keys in
// patch replace the stored values, a JSON null clears a field, and "id" is
// ignored. The merged record must pass validation.
func (c *Coordinator) MergeEntry(ctx context.Context, id int64, patch map[string]any) (*records.Record, error) {
	var merged records.Record
	err := c.tx(ctx, func() error {
		current, ok := c.store.Get(id)
		if !ok {
			return services.Wrap(services.ErrNotFound, "coordinator", "merge entry", fmt.Sprintf("record #%d", id), nil)
		}
		next, err := mergeRecord(current, patch)
		if err != nil {
			return err
		}
		if err := records.Validate(next); err != nil {
			return err
		}
		if err := c.store.Set(next, true); err != nil {
			return err
		}
		merged = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.journalEvent(ctx, history.KindUpdated, merged, "", patchKeys(patch))
	return &merged, nil
}

func mergeRecord(current records.Record, patch map[string]any) (records.Record, error) {
	raw, err := json.Marshal(current)
	if err != nil {
		return records.Record{}, fmt.Errorf("encode record: %w", err)
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return records.Record{}, fmt.Errorf("decode record: %w", err)
	}
	for key, value := range patch {
		if key == "id" {
			continue
		}
		if value == nil {
			delete(fields, key)
			continue
		}
		fields[key] = value
	}
	raw, err = json.Marshal(fields)
	if err != nil {
		return records.Record{}, services.Wrap(services.ErrValidation, "coordinator", "merge entry", "encode merged record", err)
	}
	var next records.Record
	if err := json.Unmarshal(raw, &next); err != nil {
		return records.Record{}, services.Wrap(services.ErrValidation, "coordinator", "merge entry", "merged record does not fit the schema", err)
	}
	next.ID = current.ID
	return next, nil
}

func patchKeys(patch map[string]any) string {
	keys := make([]string, 0, len(patch))
	for key := range patch {
		if key != "id" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	slices.Sort(keys)
	return "fields: " + strings.Join(keys, ",")
}

// MarkRepeat flags records for a forced download retry. Unknown ids are
// reported together after the known ones were updated.
func (c *Coordinator) MarkRepeat(ctx context.Context, ids ...int64) (int, error) {
	var (
		changed []records.Record
		missing []error
	)
	err := c.tx(ctx, func() error {
		for _, id := range ids {
			rec, ok := c.store.Get(id)
			if !ok {
				missing = append(missing, services.Wrap(services.ErrNotFound, "coordinator", "repeat", fmt.Sprintf("record #%d", id), nil))
				continue
			}
			rec.DownloadStatus = records.DownloadRepeat
			rec.DownloadFinished = nil
			if err := c.store.Set(rec, false); err != nil {
				return err
			}
			changed = append(changed, rec)
		}
		if len(changed) == 0 {
			return nil
		}
		return c.store.Save()
	})
	if err != nil {
		return 0, err
	}
	for _, rec := range changed {
		c.journalEvent(ctx, history.KindRepeat, rec, "", "")
	}
	return len(changed), errors.Join(missing...)
}
