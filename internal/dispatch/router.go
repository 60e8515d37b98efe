// Package dispatch routes incoming events to pipelines chosen by a policy,
// resolving destination ids through the directory and caching the results.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"switchyard/internal/component"
	"switchyard/internal/constants"
	"switchyard/internal/directory"
	"switchyard/internal/logger"
	"switchyard/internal/node"
	"switchyard/pkg/logging"
	"switchyard/pkg/metrics"
	"switchyard/pkg/models"
	"switchyard/pkg/tracing"
)

// Directory is the part of the component directory a router uses.
type Directory interface {
	Register(ctx context.Context, kind component.Kind, id string, h component.Handle) (directory.RegisterResult, error)
	Deregister(ctx context.Context, kind component.Kind, id string) (directory.DeregisterResult, error)
	LookupAsync(kind component.Kind, ids []string, reply func(map[string]component.Handle)) error
}

type Config struct {
	ID string
	// TargetKind is the directory kind destinations are looked up under.
	TargetKind    component.Kind
	Directory     Directory
	Policies      *PolicyRegistry
	LookupTimeout time.Duration
	Logger        logger.Logger
}

type pending struct {
	ctx   context.Context
	msg   *models.EventMessage
	ids   []string
	timer *time.Timer
}

// Router state is owned by its mailbox goroutine.
type Router struct {
	cfg     Config
	mailbox *component.Mailbox
	logger  logger.Logger

	policy  Policy
	cache   map[string]component.Handle
	pending map[uint64]*pending
	seq     uint64
}

func New(cfg Config) (*Router, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("router id is required")
	}
	if cfg.Directory == nil {
		return nil, fmt.Errorf("router %s: directory is required", cfg.ID)
	}
	if cfg.TargetKind == "" {
		cfg.TargetKind = component.KindPipeline
	}
	if !cfg.TargetKind.Valid() {
		return nil, fmt.Errorf("router %s: invalid target kind %q", cfg.ID, cfg.TargetKind)
	}
	if cfg.Policies == nil {
		cfg.Policies = NewPolicyRegistry()
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = constants.DefaultLookupTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NopLogger()
	}
	r := &Router{
		cfg:     cfg,
		mailbox: component.NewMailbox(),
		logger:  cfg.Logger.With("component", "dispatcher", "router_id", cfg.ID),
		cache:   make(map[string]component.Handle),
		pending: make(map[uint64]*pending),
	}
	r.mailbox.Start()
	return r, nil
}

func (r *Router) ID() string {
	return r.cfg.ID
}

// Start registers the router in the directory as a DISPATCHER.
func (r *Router) Start(ctx context.Context) error {
	res, err := r.cfg.Directory.Register(ctx, component.KindDispatcher, r.cfg.ID, r)
	if err != nil {
		return fmt.Errorf("register router %s: %w", r.cfg.ID, err)
	}
	if err := res.Err(); err != nil {
		return fmt.Errorf("register router %s: %w", r.cfg.ID, err)
	}
	return nil
}

// Configure replaces the routing policy. The cache survives reconfiguration.
func (r *Router) Configure(ctx context.Context, cfg PolicyConfig) error {
	if cfg.Name == "" {
		cfg.Name = r.cfg.ID
	}
	p, err := r.cfg.Policies.Create(cfg)
	if err != nil {
		return err
	}
	_, err = component.Call(ctx, r.mailbox, func() struct{} {
		r.policy = p
		r.logger.Infow("routing policy configured", "policy", cfg.Name, "policy_type", cfg.Type)
		return struct{}{}
	})
	return err
}

// Deliver makes the router usable as a destination handle.
func (r *Router) Deliver(ctx context.Context, msg *models.EventMessage) error {
	return r.OnEvent(ctx, msg)
}

// OnEvent queues msg for routing and returns without waiting for delivery.
func (r *Router) OnEvent(ctx context.Context, msg *models.EventMessage) error {
	ctx = context.WithoutCancel(ctx)
	if !r.mailbox.Post(func() { r.route(ctx, msg) }) {
		return component.ErrStopped
	}
	metrics.SetMailboxQueueSize("dispatcher/"+r.cfg.ID, r.mailbox.Len())
	return nil
}

// Cached lists the destination ids currently held in the cache.
func (r *Router) Cached(ctx context.Context) ([]string, error) {
	return component.Call(ctx, r.mailbox, func() []string {
		ids := make([]string, 0, len(r.cache))
		for id := range r.cache {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return ids
	})
}

// Stop deregisters the router and drops pending deliveries.
func (r *Router) Stop(ctx context.Context) {
	if _, err := r.cfg.Directory.Deregister(ctx, component.KindDispatcher, r.cfg.ID); err != nil {
		r.logger.Warnw("failed to deregister router", "error", err)
	}
	r.mailbox.Post(func() {
		for seq, p := range r.pending {
			p.timer.Stop()
			delete(r.pending, seq)
		}
	})
	r.mailbox.Stop()
	<-r.mailbox.Done()
}

func (r *Router) route(ctx context.Context, msg *models.EventMessage) {
	ctx = tracing.ExtractMessage(ctx, msg)
	ctx, span := tracing.StartSpan(ctx, "dispatch.route",
		attribute.String("router.id", r.cfg.ID),
		attribute.String("message.id", msg.ID),
	)
	defer span.End()
	tracing.InjectMessage(ctx, msg)

	if r.policy == nil {
		r.logger.WarnwCtx(ctx, "no routing policy configured, event dropped", logging.MessageIDKey, msg.ID)
		metrics.IncDispatchEvent(r.cfg.ID, "no_policy")
		return
	}
	ids, err := r.policy.Select(ctx, msg)
	if err != nil {
		tracing.RecordError(span, err)
		r.logger.WarnwCtx(ctx, "routing policy failed, event dropped", logging.MessageIDKey, msg.ID, "error", err)
		metrics.IncDispatchEvent(r.cfg.ID, "policy_error")
		return
	}
	ids = unique(ids)
	if len(ids) == 0 {
		r.logger.DebugwCtx(ctx, "no destination selected", logging.MessageIDKey, msg.ID)
		metrics.IncDispatchEvent(r.cfg.ID, "no_destination")
		return
	}

	var hits []node.Destination
	var missing []string
	for _, id := range ids {
		if h, ok := r.cache[id]; ok {
			hits = append(hits, node.Destination{ID: id, Handle: h})
		} else {
			missing = append(missing, id)
		}
	}
	metrics.AddDispatchCacheHits(r.cfg.ID, len(hits))

	if len(missing) == 0 {
		r.deliver(ctx, msg, hits)
		metrics.IncDispatchEvent(r.cfg.ID, "dispatched")
		return
	}

	later := msg
	if len(hits) > 0 {
		// the cached destinations own msg once delivered
		later = msg.Clone()
		r.deliver(ctx, msg, hits)
	}
	r.resolve(ctx, later, missing)
}

func (r *Router) resolve(ctx context.Context, msg *models.EventMessage, ids []string) {
	r.seq++
	seq := r.seq
	p := &pending{ctx: ctx, msg: msg, ids: ids}
	p.timer = time.AfterFunc(r.cfg.LookupTimeout, func() {
		r.mailbox.Post(func() { r.timeout(seq) })
	})
	r.pending[seq] = p

	err := r.cfg.Directory.LookupAsync(r.cfg.TargetKind, ids, func(found map[string]component.Handle) {
		r.mailbox.Post(func() { r.resolved(seq, found) })
	})
	if err != nil {
		p.timer.Stop()
		delete(r.pending, seq)
		r.logger.WarnwCtx(ctx, "destination lookup failed, event dropped", logging.MessageIDKey, msg.ID, "error", err)
		metrics.IncDispatchLookup(r.cfg.ID, "error")
		metrics.IncDispatchEvent(r.cfg.ID, "lookup_failed")
	}
}

func (r *Router) resolved(seq uint64, found map[string]component.Handle) {
	for id, h := range found {
		r.cache[id] = h
	}
	p, ok := r.pending[seq]
	if !ok {
		// already timed out
		return
	}
	delete(r.pending, seq)
	p.timer.Stop()

	dests := make([]node.Destination, 0, len(p.ids))
	for _, id := range p.ids {
		h, ok := found[id]
		if !ok {
			metrics.IncDispatchLookup(r.cfg.ID, "missing")
			r.logger.DebugwCtx(p.ctx, "destination not registered, skipped", "destination", id, logging.MessageIDKey, p.msg.ID)
			continue
		}
		metrics.IncDispatchLookup(r.cfg.ID, "found")
		dests = append(dests, node.Destination{ID: id, Handle: h})
	}
	if len(dests) == 0 {
		metrics.IncDispatchEvent(r.cfg.ID, "unresolved")
		return
	}
	r.deliver(p.ctx, p.msg, dests)
	metrics.IncDispatchEvent(r.cfg.ID, "dispatched")
}

func (r *Router) timeout(seq uint64) {
	p, ok := r.pending[seq]
	if !ok {
		return
	}
	delete(r.pending, seq)
	r.logger.WarnwCtx(p.ctx, "destination lookup timed out, event dropped",
		logging.MessageIDKey, p.msg.ID,
		"destinations", p.ids,
		"timeout", r.cfg.LookupTimeout,
	)
	metrics.IncDispatchLookup(r.cfg.ID, "timeout")
	metrics.IncDispatchEvent(r.cfg.ID, "timeout")
}

func (r *Router) deliver(ctx context.Context, msg *models.EventMessage, dests []node.Destination) {
	for id, err := range node.FanOut(ctx, msg, dests) {
		if errors.Is(err, component.ErrStopped) {
			delete(r.cache, id)
		}
		r.logger.WarnwCtx(ctx, "delivery failed", "destination", id, "error", err)
	}
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
