package drapto

import (
	"time"

	draptolib "github.com/five82/drapto"
)

// Event kinds carried by ProgressUpdate.
const (
	EventStage    = "stage"
	EventEncoding = "encoding"
	EventWarning  = "warning"
	EventError    = "error"
	EventComplete = "complete"
	EventInfo     = "info"
)

// ProgressUpdate is the converter-facing view of a Drapto callback.
type ProgressUpdate struct {
	Type         string
	Percent      float64
	Stage        string
	Message      string
	Speed        float64
	FPS          float64
	ETA          time.Duration
	TotalFrames  int64
	CurrentFrame int64
	OutputPath   string
}

type reporter struct {
	callback func(ProgressUpdate)
}

func newReporter(callback func(ProgressUpdate)) *reporter {
	return &reporter{callback: callback}
}

func (r *reporter) emit(update ProgressUpdate) {
	if r == nil || r.callback == nil {
		return
	}
	r.callback(update)
}

func (r *reporter) Hardware(s draptolib.HardwareSummary) {
	r.emit(ProgressUpdate{Type: EventInfo, Percent: -1, Message: "host " + s.Hostname})
}

func (r *reporter) Initialization(draptolib.InitializationSummary) {
	r.emit(ProgressUpdate{Type: EventStage, Percent: 0, Stage: "initialization"})
}

func (r *reporter) StageProgress(s draptolib.StageProgress) {
	var eta time.Duration
	if s.ETA != nil {
		eta = *s.ETA
	}
	r.emit(ProgressUpdate{
		Type:    EventStage,
		Percent: float64(s.Percent),
		Stage:   s.Stage,
		Message: s.Message,
		ETA:     eta,
	})
}

func (r *reporter) CropResult(draptolib.CropSummary) {
	r.emit(ProgressUpdate{Type: EventStage, Percent: -1, Stage: "crop detection"})
}

func (r *reporter) EncodingConfig(draptolib.EncodingConfigSummary) {
	r.emit(ProgressUpdate{Type: EventStage, Percent: -1, Stage: "configuration"})
}

func (r *reporter) EncodingStarted(totalFrames uint64) {
	r.emit(ProgressUpdate{Type: EventEncoding, Percent: 0, Stage: "encoding", TotalFrames: int64(totalFrames)})
}

func (r *reporter) EncodingProgress(s draptolib.ProgressSnapshot) {
	r.emit(ProgressUpdate{
		Type:         EventEncoding,
		Percent:      float64(s.Percent),
		Stage:        "encoding",
		Speed:        float64(s.Speed),
		FPS:          float64(s.FPS),
		ETA:          s.ETA,
		TotalFrames:  int64(s.TotalFrames),
		CurrentFrame: int64(s.CurrentFrame),
	})
}

func (r *reporter) ValidationComplete(draptolib.ValidationSummary) {
	r.emit(ProgressUpdate{Type: EventStage, Percent: -1, Stage: "validation"})
}

func (r *reporter) EncodingComplete(s draptolib.EncodingOutcome) {
	r.emit(ProgressUpdate{Type: EventComplete, Percent: 100, Stage: "complete", OutputPath: s.OutputPath})
}

func (r *reporter) Warning(message string) {
	r.emit(ProgressUpdate{Type: EventWarning, Percent: -1, Message: message})
}

func (r *reporter) Error(e draptolib.ReporterError) {
	msg := e.Title
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Suggestion != "" {
		msg += " (" + e.Suggestion + ")"
	}
	r.emit(ProgressUpdate{Type: EventError, Percent: -1, Message: msg, Stage: e.Context})
}

func (r *reporter) OperationComplete(message string) {
	r.emit(ProgressUpdate{Type: EventInfo, Percent: -1, Message: message})
}

// Batch callbacks fire only for directory inputs, which the converter never passes.
func (r *reporter) BatchStarted(draptolib.BatchStartInfo)       {}
func (r *reporter) FileProgress(draptolib.FileProgressContext) {}
func (r *reporter) BatchComplete(draptolib.BatchSummary)        {}

var _ draptolib.Reporter = (*reporter)(nil)
