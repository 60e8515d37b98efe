package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/component"
	"switchyard/internal/config"
	"switchyard/internal/logger"
	"switchyard/internal/node/sink"
	"switchyard/pkg/models"
)

func discardPipeline(id string) models.PipelineConfig {
	return models.PipelineConfig{
		PipelineID:    id,
		InitialNodeID: "out",
		Elements:      []models.ElementConfig{{ElementID: "out", NodeType: sink.TypeDiscard}},
	}
}

func TestValidateConfig_ExampleFile(t *testing.T) {
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "switchyard.yaml"))
	require.NoError(t, err)
	assert.NoError(t, validateConfig(cfg))
}

func TestValidateConfig_Rejects(t *testing.T) {
	unknownType := discardPipeline("unknown-type")
	unknownType.Elements[0].NodeType = "teleport"

	noInitial := discardPipeline("no-initial")
	noInitial.InitialNodeID = "missing"

	cfg := &config.Config{
		Pipelines: []models.PipelineConfig{discardPipeline("ok"), unknownType, noInitial},
		Dispatchers: []config.DispatcherConfig{
			{DispatcherID: "bad-cel", Policy: config.PolicyConfig{Type: "cel"}},
			{DispatcherID: "fine", Policy: config.PolicyConfig{Type: "broadcast", Settings: map[string]string{"destinations": "ok"}}},
		},
	}

	err := validateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown-type")
	assert.Contains(t, err.Error(), "teleport")
	assert.Contains(t, err.Error(), "no-initial")
	assert.Contains(t, err.Error(), "bad-cel")
	assert.NotContains(t, err.Error(), "dispatcher fine")
}

func TestApp_InitializeAndShutdown(t *testing.T) {
	cfg := &config.Config{
		Admin:     config.AdminConfig{Enabled: true},
		Pipelines: []models.PipelineConfig{discardPipeline("p1")},
		Dispatchers: []config.DispatcherConfig{{
			DispatcherID: "ingest",
			TargetKind:   "pipeline",
			Policy:       config.PolicyConfig{Type: "broadcast", Settings: map[string]string{"destinations": "p1"}},
		}},
	}
	app := NewApp(cfg, logger.NewTest(t))
	ctx := context.Background()

	require.NoError(t, app.Initialize(ctx))

	statuses, err := app.supervisor.Pipelines(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Registered)

	found, err := app.directory.Lookup(ctx, component.KindDispatcher, []string{"ingest"})
	require.NoError(t, err)
	require.Contains(t, found, "ingest")

	msg := models.NewEventMessageBuilder().WithSourceID("s").WithCollectorID("c").WithContent("hello").Build()
	require.NoError(t, found["ingest"].Deliver(ctx, msg))

	rec := httptest.NewRecorder()
	app.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/pipelines", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pipeline_id":"p1"`)

	require.NoError(t, app.Shutdown(ctx))
	assert.Nil(t, app.supervisor)
}

func TestApp_InitializeFailsOnBadPipeline(t *testing.T) {
	bad := discardPipeline("bad")
	bad.Elements[0].NodeType = "teleport"

	app := NewApp(&config.Config{Pipelines: []models.PipelineConfig{bad}}, logger.NewTest(t))
	ctx := context.Background()

	err := app.Initialize(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.NoError(t, app.Shutdown(ctx))
}
