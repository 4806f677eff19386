// Package audit is the fire-and-forget event sink consumed by the engine.
// Sink failures must never abort a run, so every call is wrapped against
// both errors and panics.
package audit

import (
	"go.uber.org/zap"
)

// Sink records engine events for the trajectory/audit collaborator.
type Sink interface {
	Record(kind, title, detail string)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Record(string, string, string) {}

// LogSink writes audit events to the structured log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a zap-backed sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.With(zap.String("component", "audit"))}
}

func (s *LogSink) Record(kind, title, detail string) {
	s.logger.Info("audit event",
		zap.String("kind", kind),
		zap.String("title", title),
		zap.String("detail", detail),
	)
}

// Safe wraps a sink so that a panicking or misbehaving implementation can
// never take a run down with it.
func Safe(sink Sink, kind, title, detail string) {
	if sink == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	sink.Record(kind, title, detail)
}
