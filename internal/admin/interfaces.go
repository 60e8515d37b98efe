package admin

import (
	"context"

	"switchyard/internal/component"
	"switchyard/internal/directory"
	"switchyard/internal/supervisor"
	"switchyard/pkg/models"
)

type Supervisor interface {
	Setup(ctx context.Context, cfg *models.PipelineConfig) (supervisor.SetupResult, error)
	Shutdown(ctx context.Context, id string) (supervisor.ShutdownResult, error)
	Pipelines(ctx context.Context) ([]supervisor.Status, error)
}

type Directory interface {
	Lookup(ctx context.Context, kind component.Kind, ids []string) (map[string]component.Handle, error)
	Deregister(ctx context.Context, kind component.Kind, id string) (directory.DeregisterResult, error)
	IDs(ctx context.Context, kind component.Kind) ([]string, error)
}
