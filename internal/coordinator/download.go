package coordinator

import (
	"context"
	"fmt"

	"reeler/internal/history"
	"reeler/internal/logging"
	"reeler/internal/records"
	"reeler/internal/services"
)

// DownloadUpdate is a downloader's progress or terminal report. A nil Status
// is a progress update.
type DownloadUpdate struct {
	Status *records.DownloadStatus `json:"status,omitempty"`
	Path   string                  `json:"path,omitempty"`
	Stream *records.StreamInfo     `json:"stream,omitempty"`
}

func downloadEligible(rec records.Record) bool {
	switch rec.DownloadStatus {
	case "", records.DownloadInit, records.DownloadRepeat:
		return true
	default:
		return false
	}
}

// ClaimNextDownload claims the lowest-id record that was never downloaded or
// was marked for repeat. It returns nil when nothing is eligible.
func (c *Coordinator) ClaimNextDownload(ctx context.Context, host string) (*records.Record, error) {
	var claimed *records.Record
	err := c.tx(ctx, func() error {
		var candidate *records.Record
		err := c.store.ForEach(func(rec records.Record) error {
			if !downloadEligible(rec) {
				return nil
			}
			candidate = &rec
			return records.ErrStop
		})
		if err != nil || candidate == nil {
			return err
		}
		rec := *candidate
		rec.DownloadStatus = records.DownloadDownloading
		rec.DownloadStarted = c.stamp()
		rec.DownloadFinished = nil
		rec.DownloadHost = host
		if err := c.store.Set(rec, true); err != nil {
			return err
		}
		claimed = &rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	if claimed != nil {
		c.logger.Info("download claimed",
			logging.Int64(logging.FieldRecordID, claimed.ID),
			logging.String(logging.FieldHost, host),
			logging.String("name", claimed.Name),
		)
		c.journalEvent(ctx, history.KindDownloadClaimed, *claimed, host, "")
	}
	return claimed, nil
}

// UpdateDownload applies a downloader report to a record it holds.
func (c *Coordinator) UpdateDownload(ctx context.Context, id int64, update DownloadUpdate) (*records.Record, error) {
	if update.Status != nil {
		switch *update.Status {
		case records.DownloadDone, records.DownloadBroken:
		default:
			return nil, services.Wrap(services.ErrValidation, "coordinator", "update download",
				fmt.Sprintf("status %q is not a download outcome", *update.Status), nil)
		}
	}

	var updated records.Record
	err := c.tx(ctx, func() error {
		rec, ok := c.store.Get(id)
		if !ok {
			return services.Wrap(services.ErrNotFound, "coordinator", "update download", fmt.Sprintf("record #%d", id), nil)
		}
		if rec.DownloadStatus != records.DownloadDownloading {
			return services.Wrap(services.ErrConflict, "coordinator", "update download",
				fmt.Sprintf("record #%d is %q, not downloading", id, rec.DownloadStatus), nil)
		}
		if update.Stream != nil {
			stream := *update.Stream
			rec.Stream = &stream
		}
		if update.Path != "" {
			rec.Path = update.Path
		}
		if update.Status != nil {
			rec.DownloadStatus = *update.Status
			rec.DownloadFinished = c.stamp()
			if rec.DownloadStatus == records.DownloadDone {
				rec.ConverterStatus = records.ConverterWaiting
				rec.ConvertingStarted = nil
				rec.ConvertingFinished = nil
				rec.LastConverterPing = nil
				rec.ConverterHost = ""
			}
		}
		if err := records.Validate(rec); err != nil {
			return err
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
	if update.Status != nil {
		c.logger.Info("download finished",
			logging.Int64(logging.FieldRecordID, id),
			logging.String("status", string(updated.DownloadStatus)),
			logging.String("path", updated.Path),
		)
		c.journalEvent(ctx, history.KindDownloadDone, updated, updated.DownloadHost, updated.Path)
	} else {
		c.journalEvent(ctx, history.KindDownloadUpdated, updated, updated.DownloadHost, "")
	}
	return &updated, nil
}

// AbandonDownload marks a record this process holds as broken. It is meant for
// exit hooks and ignores records no longer in the downloading state.
func (c *Coordinator) AbandonDownload(ctx context.Context, id int64) error {
	var abandoned *records.Record
	err := c.tx(ctx, func() error {
		rec, ok := c.store.Get(id)
		if !ok || rec.DownloadStatus != records.DownloadDownloading {
			return nil
		}
		rec.DownloadStatus = records.DownloadBroken
		rec.DownloadFinished = c.stamp()
		if err := c.store.Set(rec, true); err != nil {
			return err
		}
		abandoned = &rec
		return nil
	})
	if err != nil {
		return err
	}
	if abandoned != nil {
		c.logger.Warn("download abandoned",
			logging.Int64(logging.FieldRecordID, id),
			logging.String(logging.FieldEventType, "download_abandoned"),
		)
		c.journalEvent(ctx, history.KindDownloadDone, *abandoned, abandoned.DownloadHost, "abandoned")
	}
	return nil
}
