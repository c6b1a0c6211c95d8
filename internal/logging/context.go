package logging

import (
	"context"
	"log/slog"

	"reeler/internal/services"
)

const (
	FieldComponent     = "component"
	FieldRecordID      = "record_id"
	FieldStage         = "stage"
	FieldHost          = "host"
	FieldCorrelationID = "correlation_id"
	// FieldEventType and FieldErrorHint are set by WarnWithContext.
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
)

// ContextFields turns the job scope on ctx into slog attributes.
func ContextFields(ctx context.Context) []slog.Attr {
	scope := services.ScopeFromContext(ctx)
	var fields []slog.Attr
	if scope.RecordID > 0 {
		fields = append(fields, slog.Int64(FieldRecordID, scope.RecordID))
	}
	for _, kv := range [...]struct{ key, value string }{
		{FieldStage, scope.Stage},
		{FieldHost, scope.Host},
		{FieldCorrelationID, scope.RequestID},
	} {
		if kv.value != "" {
			fields = append(fields, slog.String(kv.key, kv.value))
		}
	}
	return fields
}

// WithContext returns logger with the job scope of ctx attached.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
