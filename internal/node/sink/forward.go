package sink

import (
	"context"
	"fmt"

	"switchyard/internal/logger"
	"switchyard/internal/node"
	"switchyard/pkg/models"
)

// forward relays every message to the nodes named in its "to" setting. It
// is used to tee a stream or to join several branches into one.
type forward struct {
	id       string
	settings map[string]string
	to       []string
	dests    []node.Destination
	errors   node.ErrorRoutes
	logger   logger.Logger
}

func newForward(p node.Params) (node.Behavior, error) {
	raw, _ := p.Setting("to")
	to := node.ParseIDList(raw)
	if len(to) == 0 {
		return nil, fmt.Errorf("missing required setting to")
	}
	log := p.Logger
	if log == nil {
		log = logger.NopLogger()
	}
	return &forward{id: p.NodeID(), settings: p.Element.Settings, to: to, logger: log}, nil
}

func (f *forward) Bind(refs node.References) error {
	dests := make([]node.Destination, 0, len(f.to))
	for _, id := range f.to {
		h, ok := refs.Node(id)
		if !ok {
			return fmt.Errorf("node %s: to: unknown node %q", f.id, id)
		}
		dests = append(dests, node.Destination{ID: id, Handle: h})
	}
	routes, err := node.BindErrorRoutes(f.id, f.settings, refs, false)
	if err != nil {
		return fmt.Errorf("node %s: %w", f.id, err)
	}
	f.dests = dests
	f.errors = routes
	return nil
}

func (f *forward) Process(ctx context.Context, msg *models.EventMessage) error {
	for id, err := range node.FanOut(ctx, msg, f.dests) {
		f.logger.WarnwCtx(ctx, "forwarding failed", "destination", id, "error", err)
	}
	return nil
}

func (f *forward) RouteError(ctx context.Context, msg *models.EventMessage, key, location, detail string) error {
	return f.errors.RouteError(ctx, msg, key, location, detail)
}

func (f *forward) Close() error {
	return nil
}
