package services

import "context"

// Scope is the job identity carried through a context: which record is being
// worked, in which stage, by which host, and under which request.
type Scope struct {
	RecordID  int64
	Stage     string
	Host      string
	RequestID string
}

type scopeKey struct{}

// ScopeFromContext returns the scope attached to ctx; the zero Scope when none.
func ScopeFromContext(ctx context.Context) Scope {
	if ctx == nil {
		return Scope{}
	}
	scope, _ := ctx.Value(scopeKey{}).(Scope)
	return scope
}

func withScope(ctx context.Context, edit func(*Scope)) context.Context {
	scope := ScopeFromContext(ctx)
	edit(&scope)
	return context.WithValue(ctx, scopeKey{}, scope)
}

// WithRecordID annotates context with the job record identifier.
func WithRecordID(ctx context.Context, id int64) context.Context {
	if id <= 0 {
		return ctx
	}
	return withScope(ctx, func(s *Scope) { s.RecordID = id })
}

// WithStage annotates context with the pipeline stage (downloading, converting).
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return withScope(ctx, func(s *Scope) { s.Stage = stage })
}

// WithHost annotates context with the worker host name.
func WithHost(ctx context.Context, host string) context.Context {
	if host == "" {
		return ctx
	}
	return withScope(ctx, func(s *Scope) { s.Host = host })
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return withScope(ctx, func(s *Scope) { s.RequestID = id })
}

func RecordIDFromContext(ctx context.Context) (int64, bool) {
	id := ScopeFromContext(ctx).RecordID
	return id, id > 0
}

func StageFromContext(ctx context.Context) (string, bool) {
	stage := ScopeFromContext(ctx).Stage
	return stage, stage != ""
}

func HostFromContext(ctx context.Context) (string, bool) {
	host := ScopeFromContext(ctx).Host
	return host, host != ""
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	id := ScopeFromContext(ctx).RequestID
	return id, id != ""
}
