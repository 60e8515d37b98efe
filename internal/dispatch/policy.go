package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"switchyard/internal/node"
	"switchyard/pkg/cel"
	apperrors "switchyard/pkg/errors"
	"switchyard/pkg/models"
)

const (
	PolicyBroadcast  = "broadcast"
	PolicyRoundRobin = "round-robin"
	PolicyField      = "field"
	PolicyCEL        = "cel"
)

// Policy picks the destination ids of one event.
type Policy interface {
	Select(ctx context.Context, msg *models.EventMessage) ([]string, error)
}

type PolicyFunc func(ctx context.Context, msg *models.EventMessage) ([]string, error)

func (f PolicyFunc) Select(ctx context.Context, msg *models.EventMessage) ([]string, error) {
	return f(ctx, msg)
}

// PolicyConfig names a policy type and carries its settings.
type PolicyConfig struct {
	Name     string
	Type     string
	Settings map[string]string
}

type PolicyFactory func(cfg PolicyConfig) (Policy, error)

type PolicyRegistry struct {
	mu        sync.RWMutex
	factories map[string]PolicyFactory
}

// NewPolicyRegistry returns a registry holding the built-in policy types.
func NewPolicyRegistry() *PolicyRegistry {
	r := &PolicyRegistry{factories: make(map[string]PolicyFactory)}
	r.factories[PolicyBroadcast] = newBroadcast
	r.factories[PolicyRoundRobin] = newRoundRobin
	r.factories[PolicyField] = newFieldPolicy
	r.factories[PolicyCEL] = newCELPolicy
	return r
}

func (r *PolicyRegistry) Register(name string, factory PolicyFactory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("policy type name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return apperrors.ErrDuplicate.WithDetail("policy_type", name)
	}
	r.factories[name] = factory
	return nil
}

func (r *PolicyRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *PolicyRegistry) Create(cfg PolicyConfig) (Policy, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.ErrUnknownType.WithDetail("policy_type", cfg.Type)
	}
	p, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("policy %s (%s): %w", cfg.Name, cfg.Type, err)
	}
	return p, nil
}

func destinations(cfg PolicyConfig) ([]string, error) {
	ids := node.ParseIDList(cfg.Settings["destinations"])
	if len(ids) == 0 {
		return nil, fmt.Errorf("missing required setting destinations")
	}
	return ids, nil
}

func newBroadcast(cfg PolicyConfig) (Policy, error) {
	ids, err := destinations(cfg)
	if err != nil {
		return nil, err
	}
	return PolicyFunc(func(context.Context, *models.EventMessage) ([]string, error) {
		return ids, nil
	}), nil
}

type roundRobin struct {
	ids  []string
	next atomic.Uint64
}

func newRoundRobin(cfg PolicyConfig) (Policy, error) {
	ids, err := destinations(cfg)
	if err != nil {
		return nil, err
	}
	return &roundRobin{ids: ids}, nil
}

func (r *roundRobin) Select(context.Context, *models.EventMessage) ([]string, error) {
	n := r.next.Add(1) - 1
	return []string{r.ids[n%uint64(len(r.ids))]}, nil
}

func newFieldPolicy(cfg PolicyConfig) (Policy, error) {
	field := strings.TrimSpace(cfg.Settings["field"])
	if field == "" {
		return nil, fmt.Errorf("missing required setting field")
	}
	fallback := node.ParseIDList(cfg.Settings["default"])
	return PolicyFunc(func(_ context.Context, msg *models.EventMessage) ([]string, error) {
		if v, ok := msg.GetField(field); ok {
			if ids := node.ParseIDList(v); len(ids) > 0 {
				return ids, nil
			}
		}
		return fallback, nil
	}), nil
}

func newCELPolicy(cfg PolicyConfig) (Policy, error) {
	expr := strings.TrimSpace(cfg.Settings["expression"])
	if expr == "" {
		return nil, fmt.Errorf("missing required setting expression")
	}
	return cel.NewSelector(expr)
}
