package node

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"switchyard/internal/component"
	"switchyard/internal/constants"
	"switchyard/pkg/models"
)

var ErrNoErrorHandler = errors.New("no error handler configured")

// ErrErrorLoop is returned by RouteError for a message that already carries
// the same error from the same node, which means the error routes form a cycle.
var ErrErrorLoop = errors.New("error handler loop")

// Destination is a resolved sibling.
type Destination struct {
	ID     string
	Handle component.Handle
}

// ForwardRules maps a response label to its destinations.
type ForwardRules map[string][]Destination

// ParseIDList splits a comma separated id list, dropping blanks.
func ParseIDList(s string) []string {
	var ids []string
	for _, part := range strings.Split(s, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ForwardingSettings returns label -> ids from "forward.<label>" settings.
func ForwardingSettings(settings map[string]string) (map[string][]string, error) {
	out := make(map[string][]string)
	for key, value := range settings {
		label, ok := strings.CutPrefix(key, constants.SettingForwardPrefix)
		if !ok {
			continue
		}
		if label == "" {
			return nil, fmt.Errorf("setting %q: empty label", key)
		}
		ids := ParseIDList(value)
		if len(ids) == 0 {
			return nil, fmt.Errorf("setting %q: no destinations", key)
		}
		out[label] = ids
	}
	return out, nil
}

// BindForwardRules resolves every forwarding destination against refs.
func BindForwardRules(settings map[string]string, refs References) (ForwardRules, error) {
	byLabel, err := ForwardingSettings(settings)
	if err != nil {
		return nil, err
	}
	rules := make(ForwardRules, len(byLabel))
	for label, ids := range byLabel {
		dests := make([]Destination, 0, len(ids))
		for _, id := range ids {
			h, ok := refs.Node(id)
			if !ok {
				return nil, fmt.Errorf("forward.%s: unknown node %q", label, id)
			}
			dests = append(dests, Destination{ID: id, Handle: h})
		}
		rules[label] = dests
	}
	return rules, nil
}

// Labels returns the configured labels in sorted order.
func (r ForwardRules) Labels() []string {
	labels := make([]string, 0, len(r))
	for l := range r {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// ErrorRoutes maps an error key to its handler, with "default" as fallback.
type ErrorRoutes struct {
	nodeID   string
	handlers map[string]Destination
}

// BindErrorRoutes resolves "error.<key>" settings. requireDefault makes
// "error.default" mandatory. Every handler must be a sibling allowed to act
// as an error handler, other than the node itself.
func BindErrorRoutes(nodeID string, settings map[string]string, refs References, requireDefault bool) (ErrorRoutes, error) {
	routes := ErrorRoutes{nodeID: nodeID, handlers: make(map[string]Destination)}
	for key, value := range settings {
		errKey, ok := strings.CutPrefix(key, constants.SettingErrorPrefix)
		if !ok {
			continue
		}
		id := strings.TrimSpace(value)
		if errKey == "" || id == "" {
			return ErrorRoutes{}, fmt.Errorf("setting %q: error key and handler id are required", key)
		}
		if id == nodeID {
			return ErrorRoutes{}, fmt.Errorf("%s: node %q cannot be its own error handler", key, id)
		}
		h, ok := refs.Node(id)
		if !ok {
			return ErrorRoutes{}, fmt.Errorf("%s: unknown node %q", key, id)
		}
		if !refs.IsErrorHandler(id) {
			return ErrorRoutes{}, fmt.Errorf("%s: node %q is not an error handler", key, id)
		}
		routes.handlers[errKey] = Destination{ID: id, Handle: h}
	}

	if _, ok := routes.handlers[constants.ErrorHandlerDefaultKey]; requireDefault && !ok {
		return ErrorRoutes{}, fmt.Errorf("missing required setting %s%s", constants.SettingErrorPrefix, constants.ErrorHandlerDefaultKey)
	}
	return routes, nil
}

// Handler returns the handler for key, falling back to the default handler.
func (e ErrorRoutes) Handler(key string) (Destination, bool) {
	if d, ok := e.handlers[key]; ok {
		return d, true
	}
	d, ok := e.handlers[constants.ErrorHandlerDefaultKey]
	return d, ok
}

// RouteError appends an error entry to msg and delivers it to the handler for key.
// It returns ErrNoErrorHandler when neither key nor default is configured, and
// ErrErrorLoop without appending when msg already carries key from this node.
func (e ErrorRoutes) RouteError(ctx context.Context, msg *models.EventMessage, key, location, detail string) error {
	for _, prev := range msg.ErrorStack {
		if prev.Key == key && prev.ReporterID == e.nodeID {
			return fmt.Errorf("%w: %s already reported %s", ErrErrorLoop, e.nodeID, key)
		}
	}
	msg.AppendError(key, e.nodeID, location, detail)
	d, ok := e.Handler(key)
	if !ok {
		return fmt.Errorf("%w for %s", ErrNoErrorHandler, key)
	}
	if err := d.Handle.Deliver(ctx, msg); err != nil {
		return fmt.Errorf("deliver %s to error handler %s: %w", key, d.ID, err)
	}
	return nil
}

// FanOut delivers msg to the first destination and a clone to every other
// one, so no two destinations share an instance. It returns the failed
// deliveries keyed by destination id; a failure never stops the others.
func FanOut(ctx context.Context, msg *models.EventMessage, dests []Destination) map[string]error {
	if len(dests) == 0 {
		return nil
	}
	copies := make([]*models.EventMessage, len(dests))
	copies[0] = msg
	for i := 1; i < len(dests); i++ {
		copies[i] = msg.Clone()
	}
	var failed map[string]error
	for i, d := range dests {
		if err := d.Handle.Deliver(ctx, copies[i]); err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[d.ID] = err
		}
	}
	return failed
}
