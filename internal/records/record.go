package records

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"reeler/internal/services"
)

// DownloadStatus tracks the acquisition lifecycle of a record.
type DownloadStatus string

const (
	DownloadInit        DownloadStatus = "init"
	DownloadDownloading DownloadStatus = "downloading"
	DownloadBroken      DownloadStatus = "broken"
	DownloadRepeat      DownloadStatus = "repeat"
	DownloadDone        DownloadStatus = "done"
)

// ConverterStatus tracks the conversion lifecycle. Empty means not yet eligible.
type ConverterStatus string

const (
	ConverterWaiting    ConverterStatus = "waiting"
	ConverterConverting ConverterStatus = "converting"
	ConverterBroken     ConverterStatus = "broken"
	ConverterAborted    ConverterStatus = "aborted"
	ConverterDone       ConverterStatus = "done"
)

// Terminal reports whether a worker may report this status as a final outcome.
func (s ConverterStatus) Terminal() bool {
	switch s {
	case ConverterDone, ConverterBroken, ConverterAborted:
		return true
	default:
		return false
	}
}

// StreamInfo records where acquisition started and stopped.
type StreamInfo struct {
	InitialStreamURL string `json:"initialStreamUrl"`
	MaxPartID        int    `json:"maxPartId" validate:"gte=0"`
}

// Record is the persisted state of one video's download and conversion.
type Record struct {
	ID          int64  `json:"id" validate:"gt=0"`
	Name        string `json:"name,omitempty"`
	SourceURL   string `json:"sourceUrl,omitempty" validate:"omitempty,url"`
	DownloadURL string `json:"downloadUrl,omitempty" validate:"omitempty,url"`

	DownloadStatus   DownloadStatus `json:"downloadStatus,omitempty" validate:"omitempty,oneof=init downloading broken repeat done"`
	DownloadStarted  *time.Time     `json:"downloadStarted,omitempty"`
	DownloadFinished *time.Time     `json:"downloadFinished,omitempty"`
	DownloadHost     string         `json:"downloadHost,omitempty"`
	Path             string         `json:"path,omitempty"`
	Stream           *StreamInfo    `json:"stream,omitempty" validate:"omitempty"`

	ConverterStatus    ConverterStatus `json:"converterStatus,omitempty" validate:"omitempty,oneof=waiting converting broken aborted done"`
	ConvertingStarted  *time.Time      `json:"convertingStarted,omitempty"`
	ConvertingFinished *time.Time      `json:"convertingFinished,omitempty"`
	LastConverterPing  *time.Time      `json:"lastConverterPing,omitempty"`
	ConverterHost      string          `json:"converterHost,omitempty"`
}

// Clone returns a deep copy so callers never alias store memory.
func (r Record) Clone() Record {
	out := r
	out.DownloadStarted = cloneTime(r.DownloadStarted)
	out.DownloadFinished = cloneTime(r.DownloadFinished)
	out.ConvertingStarted = cloneTime(r.ConvertingStarted)
	out.ConvertingFinished = cloneTime(r.ConvertingFinished)
	out.LastConverterPing = cloneTime(r.LastConverterPing)
	if r.Stream != nil {
		stream := *r.Stream
		out.Stream = &stream
	}
	return out
}

// Label renders "#id name" for log lines and tables.
func (r Record) Label() string {
	if r.Name == "" {
		return fmt.Sprintf("#%d", r.ID)
	}
	return fmt.Sprintf("#%d %s", r.ID, r.Name)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TimePtr returns a pointer to t truncated to millisecond precision, which is
// what survives a JSON round trip through other tools reading the store.
func TimePtr(t time.Time) *time.Time {
	v := t.UTC().Truncate(time.Millisecond)
	return &v
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints (positive id, known statuses, URL shapes).
func Validate(rec Record) error {
	if err := validate.Struct(rec); err != nil {
		return services.Wrap(services.ErrValidation, "records", "validate", fmt.Sprintf("record #%d", rec.ID), err)
	}
	return nil
}
