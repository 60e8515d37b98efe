package sink

import (
	"context"
	"fmt"
	"strings"

	"switchyard/internal/logger"
	"switchyard/internal/node"
	"switchyard/pkg/models"
)

type logWriter struct {
	level  string
	logger logger.Logger
}

func newLogWriter(p node.Params, _ Deps) (Writer, error) {
	level := strings.ToLower(p.SettingOr("level", "info"))
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("setting level: unsupported value %q", level)
	}
	log := p.Logger
	if log == nil {
		log = logger.NopLogger()
	}
	return &logWriter{level: level, logger: log}, nil
}

func (w *logWriter) Write(ctx context.Context, msg *models.EventMessage) error {
	kv := []interface{}{
		"event_id", msg.ID,
		"source_id", msg.SourceID,
		"collector_id", msg.CollectorID,
		"content", msg.Content,
	}
	if len(msg.Fields) > 0 {
		kv = append(kv, "fields", msg.Fields)
	}
	if msg.HasErrors() {
		kv = append(kv, "error_stack", msg.ErrorStack)
	}

	switch w.level {
	case "debug":
		w.logger.DebugwCtx(ctx, "event", kv...)
	case "warn":
		w.logger.WarnwCtx(ctx, "event", kv...)
	case "error":
		w.logger.ErrorwCtx(ctx, "event", kv...)
	default:
		w.logger.InfowCtx(ctx, "event", kv...)
	}
	return nil
}

func (w *logWriter) Close() error {
	return nil
}
