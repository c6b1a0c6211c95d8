package coordinator

import (
	"context"
	"fmt"
	"time"

	"reeler/internal/history"
	"reeler/internal/logging"
	"reeler/internal/records"
	"reeler/internal/services"
)

// fresh reports whether a converting claim is still owned. The reference
// point is the last heartbeat, or the claim time when no heartbeat arrived yet.
func (c *Coordinator) fresh(rec records.Record, now time.Time) bool {
	ref := rec.LastConverterPing
	if ref == nil {
		ref = rec.ConvertingStarted
	}
	if ref == nil {
		return false
	}
	return now.Sub(*ref) < c.staleAfter
}

func (c *Coordinator) conversionEligible(rec records.Record, now time.Time) bool {
	if rec.DownloadStatus != records.DownloadDone {
		return false
	}
	switch rec.ConverterStatus {
	case records.ConverterDone, records.ConverterBroken:
		return false
	case records.ConverterConverting:
		return !c.fresh(rec, now)
	default:
		return true
	}
}

// ClaimNextConversion claims the lowest-id finished download that has not been
// converted, including converting claims whose heartbeat went stale. It
// returns nil when nothing is eligible.
func (c *Coordinator) ClaimNextConversion(ctx context.Context, host string) (*records.Record, error) {
	var (
		claimed  *records.Record
		reclaim  bool
		previous string
	)
	err := c.tx(ctx, func() error {
		now := c.now()
		var candidate *records.Record
		err := c.store.ForEach(func(rec records.Record) error {
			if !c.conversionEligible(rec, now) {
				return nil
			}
			candidate = &rec
			return records.ErrStop
		})
		if err != nil || candidate == nil {
			return err
		}
		rec := *candidate
		reclaim = rec.ConverterStatus == records.ConverterConverting
		previous = rec.ConverterHost
		rec.ConverterStatus = records.ConverterConverting
		rec.ConvertingStarted = records.TimePtr(now)
		rec.ConvertingFinished = nil
		rec.LastConverterPing = nil
		rec.ConverterHost = host
		if err := c.store.Set(rec, true); err != nil {
			return err
		}
		claimed = &rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		return nil, nil
	}
	if reclaim {
		c.logger.Warn("stale conversion reclaimed",
			logging.Int64(logging.FieldRecordID, claimed.ID),
			logging.String("previous_host", previous),
			logging.String(logging.FieldHost, host),
			logging.String(logging.FieldEventType, "conversion_reclaimed"),
		)
	} else {
		c.logger.Info("conversion claimed",
			logging.Int64(logging.FieldRecordID, claimed.ID),
			logging.String(logging.FieldHost, host),
		)
	}
	c.journalEvent(ctx, history.KindConvertClaimed, *claimed, host, "")
	return claimed, nil
}

// ReportConversion records a heartbeat (nil status) or a terminal outcome for
// a record in the converting state. A non-empty host must match the claim's
// converterHost, so a worker whose stale claim was taken over is refused. On
// error the record is left unchanged.
func (c *Coordinator) ReportConversion(ctx context.Context, id int64, host string, status *records.ConverterStatus) (*records.Record, error) {
	if status != nil && !status.Terminal() {
		return nil, services.Wrap(services.ErrValidation, "coordinator", "report conversion",
			fmt.Sprintf("status %q is not a conversion outcome", *status), nil)
	}

	var updated records.Record
	err := c.tx(ctx, func() error {
		rec, ok := c.store.Get(id)
		if !ok {
			return services.Wrap(services.ErrNotFound, "coordinator", "report conversion", fmt.Sprintf("record #%d", id), nil)
		}
		if rec.ConverterStatus != records.ConverterConverting {
			return services.Wrap(services.ErrConflict, "coordinator", "report conversion",
				fmt.Sprintf("record #%d is %q, not converting", id, rec.ConverterStatus), nil)
		}
		if host != "" && rec.ConverterHost != host {
			return services.Wrap(services.ErrConflict, "coordinator", "report conversion",
				fmt.Sprintf("record #%d is claimed by %q, not %q", id, rec.ConverterHost, host), nil)
		}
		now := c.stamp()
		if status == nil {
			rec.LastConverterPing = now
		} else {
			rec.ConverterStatus = *status
			rec.ConvertingFinished = now
			rec.LastConverterPing = nil
		}
		if err := c.store.Set(rec, true); err != nil {
			return err
		}
		updated = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	if status != nil {
		c.logger.Info("conversion finished",
			logging.Int64(logging.FieldRecordID, id),
			logging.String("status", string(*status)),
			logging.String(logging.FieldHost, updated.ConverterHost),
		)
		c.journalEvent(ctx, history.KindConvertFinished, updated, updated.ConverterHost, "")
	}
	return &updated, nil
}

// UpdatePath points a record at a new artifact, relative to the downloads directory.
func (c *Coordinator) UpdatePath(ctx context.Context, id int64, path string) error {
	_, err := c.MergeEntry(ctx, id, map[string]any{"path": path})
	return err
}
