// Package node defines the processing node contract and the runner that
// drives a node behavior on its own mailbox.
package node

import (
	"context"

	"switchyard/internal/component"
	"switchyard/internal/constants"
	"switchyard/internal/logger"
	"switchyard/pkg/models"
)

// Behavior is implemented by node types.
//
// Bind receives the sibling references once, before any message is
// processed; an error is a configuration defect and fails the pipeline.
// Process reports errors it did not already route to an error handler;
// errors classified fatal stop the node and its pipeline. Close releases
// resources and is called exactly once.
type Behavior interface {
	Bind(refs References) error
	Process(ctx context.Context, msg *models.EventMessage) error
	Close() error
}

// ErrorRouter is implemented by behaviors that can route a failure to their
// configured error handler. The runner uses it for errors and panics that
// Process did not handle itself.
type ErrorRouter interface {
	RouteError(ctx context.Context, msg *models.EventMessage, key, location, detail string) error
}

// Params is what a factory receives to build one node instance.
type Params struct {
	PipelineID string
	Element    models.ElementConfig
	// Instance is the zero-based index within an instance pool.
	Instance int
	Logger   logger.Logger
}

func (p Params) NodeID() string {
	return p.Element.ElementID
}

func (p Params) Setting(key string) (string, bool) {
	return p.Element.Setting(key)
}

// SettingOr returns the setting value, or def when it is absent or blank.
func (p Params) SettingOr(key, def string) string {
	if v, ok := p.Element.Setting(key); ok && v != "" {
		return v
	}
	return def
}

type Factory func(p Params) (Behavior, error)

// References is the one-time broadcast of sibling handles within a pipeline.
type References struct {
	Nodes map[string]component.Handle
	// ErrorHandlers holds the ids of siblings configured with role=error-handler.
	ErrorHandlers map[string]bool
}

func (r References) Node(id string) (component.Handle, bool) {
	h, ok := r.Nodes[id]
	return h, ok
}

// IsErrorHandler reports whether id may serve as an error handler. When no
// sibling declares the error-handler role, any sibling may.
func (r References) IsErrorHandler(id string) bool {
	if _, ok := r.Nodes[id]; !ok {
		return false
	}
	if len(r.ErrorHandlers) == 0 {
		return true
	}
	return r.ErrorHandlers[id]
}

// IsErrorHandlerElement reports whether the element declares the error-handler role.
func IsErrorHandlerElement(el models.ElementConfig) bool {
	role, _ := el.Setting(constants.SettingRole)
	return role == constants.RoleErrorHandler
}
