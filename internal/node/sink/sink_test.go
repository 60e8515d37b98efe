package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"switchyard/internal/component"
	"switchyard/internal/constants"
	"switchyard/internal/logger"
	"switchyard/internal/node"
	"switchyard/pkg/models"
	"switchyard/pkg/retry"
)

type recorder struct {
	mu   sync.Mutex
	msgs []*models.EventMessage
}

func (r *recorder) Deliver(_ context.Context, msg *models.EventMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) all() []*models.EventMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.EventMessage(nil), r.msgs...)
}

type fakeProducer struct {
	mu        sync.Mutex
	failures  int
	published []string
}

func (p *fakeProducer) Publish(_ context.Context, topic string, msg *models.EventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, topic+":"+msg.Content)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func fastRetry(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}
}

func params(id, nodeType string, settings map[string]string) node.Params {
	return node.Params{
		PipelineID: "p1",
		Element: models.ElementConfig{
			ElementID: id,
			NodeType:  nodeType,
			Settings:  settings,
		},
	}
}

func message(content string) *models.EventMessage {
	return models.NewEventMessageBuilder().
		WithSourceID("s1").
		WithCollectorID("c1").
		WithContent(content).
		Build()
}

func observedLogger() (logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &logger.SugaredLogger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestRegister_AllTypes(t *testing.T) {
	reg := node.NewRegistry()
	require.NoError(t, Register(reg, Deps{}))

	for _, name := range []string{TypeLog, TypeKafka, TypePostgres, TypeMongoDB, TypeDiscard, TypeForward} {
		assert.True(t, reg.Has(name), name)
	}
}

func TestFactories_RejectBadSettings(t *testing.T) {
	deps := Deps{Producer: &fakeProducer{}}

	tests := []struct {
		name     string
		nodeType string
		settings map[string]string
		deps     Deps
	}{
		{"log level", TypeLog, map[string]string{"level": "loud"}, deps},
		{"kafka topic", TypeKafka, nil, deps},
		{"kafka producer", TypeKafka, map[string]string{"topic": "out"}, Deps{}},
		{"kafka attempts", TypeKafka, map[string]string{"topic": "out", "retry.max_attempts": "zero"}, deps},
		{"postgres db", TypePostgres, nil, deps},
		{"mongo db", TypeMongoDB, nil, deps},
		{"forward to", TypeForward, map[string]string{"to": " , "}, deps},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := node.NewRegistry()
			require.NoError(t, Register(reg, tt.deps))
			_, err := reg.Create(params("n", tt.nodeType, tt.settings))
			require.Error(t, err)
		})
	}
}

func TestPostgresWriter_RejectsUnsafeTable(t *testing.T) {
	_, err := newPostgresWriter(params("n", TypePostgres, map[string]string{"table": "events; drop table x"}), Deps{})
	require.Error(t, err)
}

func TestInsertQuery_QuotesTable(t *testing.T) {
	assert.Contains(t, insertQuery("events"), `INSERT INTO "events"`)
}

func TestLogSink_WritesAtConfiguredLevel(t *testing.T) {
	log, logs := observedLogger()
	p := params("out", TypeLog, map[string]string{"level": "warn"})
	p.Logger = log

	reg := node.NewRegistry()
	require.NoError(t, Register(reg, Deps{}))
	b, err := reg.Create(p)
	require.NoError(t, err)
	require.NoError(t, b.Bind(node.References{}))

	msg := message("HI")
	msg.SetField("k", "v")
	require.NoError(t, b.Process(context.Background(), msg))

	entries := logs.FilterMessage("event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "HI", entries[0].ContextMap()["content"])
	assert.Equal(t, msg.ID, entries[0].ContextMap()["event_id"])
}

func TestKafkaSink_RetriesThenPublishes(t *testing.T) {
	producer := &fakeProducer{failures: 2}
	reg := node.NewRegistry()
	require.NoError(t, Register(reg, Deps{Producer: producer, Retry: fastRetry(3)}))

	b, err := reg.Create(params("out", TypeKafka, map[string]string{"topic": "processed"}))
	require.NoError(t, err)
	require.NoError(t, b.Bind(node.References{}))
	require.NoError(t, b.Process(context.Background(), message("HI")))

	assert.Equal(t, []string{"processed:HI"}, producer.published)
}

func TestSink_WriteFailureRoutesToErrorHandler(t *testing.T) {
	producer := &fakeProducer{failures: 10}
	reg := node.NewRegistry()
	require.NoError(t, Register(reg, Deps{Producer: producer, Retry: fastRetry(2)}))

	b, err := reg.Create(params("out", TypeKafka, map[string]string{
		"topic":         "processed",
		"error.default": "errors",
	}))
	require.NoError(t, err)

	handler := &recorder{}
	require.NoError(t, b.Bind(node.References{Nodes: map[string]component.Handle{"errors": handler}}))
	require.NoError(t, b.Process(context.Background(), message("HI")))

	got := handler.all()
	require.Len(t, got, 1)
	last, ok := got[0].LastError()
	require.True(t, ok)
	assert.Equal(t, constants.ErrKeySinkWriteFailed, last.Key)
	assert.Equal(t, "out", last.ReporterID)
	assert.Equal(t, "write", last.Location)
	assert.Contains(t, last.Message, "broker unavailable")
}

func TestSink_WriteFailureWithoutHandlerIsDropped(t *testing.T) {
	log, logs := observedLogger()
	p := params("out", TypeKafka, map[string]string{"topic": "processed"})
	p.Logger = log

	reg := node.NewRegistry()
	require.NoError(t, Register(reg, Deps{Producer: &fakeProducer{failures: 10}, Retry: fastRetry(1)}))
	b, err := reg.Create(p)
	require.NoError(t, err)
	require.NoError(t, b.Bind(node.References{}))

	require.NoError(t, b.Process(context.Background(), message("HI")))
	assert.Equal(t, 1, logs.FilterMessage("sink write failed, message dropped").Len())
}

func TestSink_BindRejectsUnknownHandler(t *testing.T) {
	b, err := NewFactory(TypeDiscard, newDiscardWriter, Deps{})(params("d", TypeDiscard, map[string]string{"error.default": "nobody"}))
	require.NoError(t, err)
	require.Error(t, b.Bind(node.References{}))
}

func TestForward_ClonesForEveryExtraTarget(t *testing.T) {
	reg := node.NewRegistry()
	require.NoError(t, Register(reg, Deps{}))
	b, err := reg.Create(params("tee", TypeForward, map[string]string{"to": "a, b"}))
	require.NoError(t, err)

	a, c := &recorder{}, &recorder{}
	require.NoError(t, b.Bind(node.References{Nodes: map[string]component.Handle{"a": a, "b": c}}))

	msg := message("x")
	require.NoError(t, b.Process(context.Background(), msg))

	require.Len(t, a.all(), 1)
	require.Len(t, c.all(), 1)
	assert.Same(t, msg, a.all()[0])
	assert.NotSame(t, msg, c.all()[0])
	assert.Equal(t, "x", c.all()[0].Content)
}

func TestForward_BindRejectsUnknownTarget(t *testing.T) {
	b, err := newForward(params("tee", TypeForward, map[string]string{"to": "ghost"}))
	require.NoError(t, err)
	require.Error(t, b.Bind(node.References{}))
}
