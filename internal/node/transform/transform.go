// Package transform implements classifying nodes: a synchronous step maps
// content to (output, label) and the label selects the forwarding rule.
package transform

import (
	"context"
	"fmt"
	"strings"

	"switchyard/internal/constants"
	"switchyard/internal/logger"
	"switchyard/internal/node"
	"switchyard/pkg/cel"
	"switchyard/pkg/models"
)

const (
	TypeCEL    = "cel-transform"
	TypeStatic = "static-transform"
)

// Step is the opaque transformation. It must be free of side effects on
// shared state; each node instance owns its own Step.
type Step interface {
	Evaluate(ctx context.Context, input string) (output, label string, err error)
}

type StepFunc func(ctx context.Context, input string) (string, string, error)

func (f StepFunc) Evaluate(ctx context.Context, input string) (string, string, error) {
	return f(ctx, input)
}

// StepBuilder builds the Step of one node instance from its settings.
type StepBuilder func(p node.Params) (Step, error)

// NewFactory wraps a StepBuilder into a node factory. Forwarding settings are
// checked for syntax here; their targets are resolved at bind time.
func NewFactory(build StepBuilder) node.Factory {
	return func(p node.Params) (node.Behavior, error) {
		if _, err := node.ForwardingSettings(p.Element.Settings); err != nil {
			return nil, err
		}
		step, err := build(p)
		if err != nil {
			return nil, err
		}
		log := p.Logger
		if log == nil {
			log = logger.NopLogger()
		}
		return &Node{
			id:       p.NodeID(),
			settings: p.Element.Settings,
			step:     step,
			logger:   log,
		}, nil
	}
}

func Register(reg *node.Registry) error {
	if err := reg.Register(TypeCEL, NewFactory(celStep)); err != nil {
		return err
	}
	return reg.Register(TypeStatic, NewFactory(staticStep))
}

func celStep(p node.Params) (Step, error) {
	expr, ok := p.Setting("expression")
	if !ok || strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("missing required setting expression")
	}
	return cel.NewTransformer(expr)
}

// staticStep labels every message with the "label" setting and leaves content alone.
func staticStep(p node.Params) (Step, error) {
	label, ok := p.Setting("label")
	if !ok || strings.TrimSpace(label) == "" {
		return nil, fmt.Errorf("missing required setting label")
	}
	return StepFunc(func(context.Context, string) (string, string, error) {
		return "", label, nil
	}), nil
}

type Node struct {
	id       string
	settings map[string]string
	step     Step
	rules    node.ForwardRules
	errors   node.ErrorRoutes
	logger   logger.Logger
}

func (n *Node) Bind(refs node.References) error {
	rules, err := node.BindForwardRules(n.settings, refs)
	if err != nil {
		return fmt.Errorf("node %s: %w", n.id, err)
	}
	routes, err := node.BindErrorRoutes(n.id, n.settings, refs, true)
	if err != nil {
		return fmt.Errorf("node %s: %w", n.id, err)
	}
	n.rules = rules
	n.errors = routes
	return nil
}

func (n *Node) Process(ctx context.Context, msg *models.EventMessage) error {
	if msg.IsContentBlank() {
		n.route(ctx, msg, constants.ErrKeyContentBlank, "message content is blank")
		return nil
	}

	output, label, err := n.step.Evaluate(ctx, msg.Content)
	if err != nil {
		n.route(ctx, msg, constants.ErrKeyExecutionFailed, err.Error())
		return nil
	}

	if strings.TrimSpace(output) != "" {
		msg.ReplaceContent(output)
	}

	switch {
	case strings.TrimSpace(label) == "":
		n.route(ctx, msg, constants.ErrKeyNoResponse, "step returned no label")
		return nil
	case label == constants.LabelIgnore:
		return nil
	}

	dests, ok := n.rules[label]
	if !ok {
		n.route(ctx, msg, constants.ErrKeyNoRule, fmt.Sprintf("no forwarding rule for label %q", label))
		return nil
	}

	n.fanOut(ctx, msg, dests)
	return nil
}

func (n *Node) fanOut(ctx context.Context, msg *models.EventMessage, dests []node.Destination) {
	for id, err := range node.FanOut(ctx, msg, dests) {
		n.logger.WarnwCtx(ctx, "forwarding failed", "destination", id, "error", err)
	}
}

func (n *Node) RouteError(ctx context.Context, msg *models.EventMessage, key, location, detail string) error {
	return n.errors.RouteError(ctx, msg, key, location, detail)
}

func (n *Node) route(ctx context.Context, msg *models.EventMessage, key, detail string) {
	if err := n.errors.RouteError(ctx, msg, key, "process", detail); err != nil {
		n.logger.WarnwCtx(ctx, "error routing failed", "key", key, "error", err)
	}
}

func (n *Node) Close() error {
	return nil
}
