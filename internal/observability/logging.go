package observability

import (
	"context"
	"log/slog"
)

// LogContext holds the sync-cycle fields attached to a context.
type LogContext struct {
	CycleID string
	Trigger string
	Op      string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithCycle attaches the fields of a sync queue job to ctx. Records logged
// with that ctx through a handler from NewLogger carry them.
func WithCycle(ctx context.Context, cycleID, trigger, op string) context.Context {
	lc := extractLogContext(ctx)
	lc.CycleID = cycleID
	lc.Trigger = trigger
	lc.Op = op
	return context.WithValue(ctx, logContextKey, lc)
}

// GetContext returns the log context stored in ctx.
func GetContext(ctx context.Context) LogContext {
	return extractLogContext(ctx)
}

func extractLogContext(ctx context.Context) LogContext {
	if ctx == nil {
		return LogContext{}
	}
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

func getLogAttrs(ctx context.Context) []slog.Attr {
	lc := extractLogContext(ctx)
	var attrs []slog.Attr
	if lc.CycleID != "" {
		attrs = append(attrs, slog.String("cycle_id", lc.CycleID))
	}
	if lc.Trigger != "" {
		attrs = append(attrs, slog.String("trigger", lc.Trigger))
	}
	if lc.Op != "" {
		attrs = append(attrs, slog.String("op", lc.Op))
	}
	return attrs
}

// contextHandler adds the LogContext fields of the record's context.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := getLogAttrs(ctx); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}
