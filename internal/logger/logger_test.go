package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"switchyard/pkg/logging"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"info":  zapcore.InfoLevel,
		"":      zapcore.InfoLevel,
		"bogus": zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestContextFields(t *testing.T) {
	log := &SugaredLogger{SugaredLogger: NopLogger().(*SugaredLogger).SugaredLogger}
	log.SetServiceName("switchyard")

	ctx := logging.WithPipelineID(context.Background(), "p1")
	ctx = logging.WithNodeID(ctx, "A")

	fields := log.getContextFields(ctx)
	assert.Equal(t, []interface{}{"pipeline_id", "p1", "node_id", "A", "service_name", "switchyard"}, fields)
}

func TestWith_KeepsServiceName(t *testing.T) {
	log := NopLogger().(*SugaredLogger)
	log.SetServiceName("svc")

	child := log.With("node_id", "A").(*SugaredLogger)
	assert.Equal(t, "svc", child.serviceName)
}
