package node

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"switchyard/internal/component"
	"switchyard/internal/constants"
	"switchyard/internal/logger"
	apperrors "switchyard/pkg/errors"
	"switchyard/pkg/logging"
	"switchyard/pkg/metrics"
	"switchyard/pkg/models"
	"switchyard/pkg/tracing"
)

type State int32

const (
	StateCreated State = iota
	StateAwaitingReferences
	StateActive
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateAwaitingReferences:
		return "AWAITING_REFERENCES"
	case StateActive:
		return "ACTIVE"
	case StateStopped:
		return "STOPPED"
	case StateFailed:
		return "FAILED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

// Parent is told about runtime failures of a runner. It is called on the
// runner's goroutine and must not block.
type Parent interface {
	NodeFailed(nodeID string, instance int, err error)
}

type RunnerConfig struct {
	PipelineID string
	NodeID     string
	Instance   int
	BufferSize int
	Logger     logger.Logger
	Parent     Parent
}

// Runner drives one Behavior on its own mailbox. Messages that arrive before
// references are bound are buffered up to BufferSize, dropping the oldest,
// and replayed in arrival order on activation.
type Runner struct {
	cfg      RunnerConfig
	behavior Behavior
	mailbox  *component.Mailbox
	state    atomic.Int32
	logger   logger.Logger

	// owned by the mailbox goroutine
	buffer []pending
	closed bool
}

type pending struct {
	ctx context.Context
	msg *models.EventMessage
}

func NewRunner(b Behavior, cfg RunnerConfig) *Runner {
	if cfg.BufferSize < 1 {
		cfg.BufferSize = constants.DefaultNodeBufferSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NopLogger()
	}
	return &Runner{
		cfg:      cfg,
		behavior: b,
		mailbox:  component.NewMailbox(),
		logger:   cfg.Logger.With(logging.PipelineIDKey, cfg.PipelineID, logging.NodeIDKey, cfg.NodeID, "instance", cfg.Instance),
	}
}

func (r *Runner) ID() string {
	return r.cfg.NodeID
}

func (r *Runner) State() State {
	return State(r.state.Load())
}

// Start moves a created runner to AwaitingReferences and starts its loop.
func (r *Runner) Start() {
	if r.state.CompareAndSwap(int32(StateCreated), int32(StateAwaitingReferences)) {
		r.mailbox.Start()
	}
}

// Deliver enqueues msg. It fails with component.ErrStopped once the runner
// has stopped or failed.
func (r *Runner) Deliver(ctx context.Context, msg *models.EventMessage) error {
	if r.State().Terminal() {
		return component.ErrStopped
	}
	ctx = context.WithoutCancel(ctx)
	if !r.mailbox.Post(func() { r.receive(ctx, msg) }) {
		return component.ErrStopped
	}
	return nil
}

// Bind hands the reference broadcast to the behavior. done runs on the
// runner's goroutine with the bind outcome.
func (r *Runner) Bind(refs References, done func(error)) {
	posted := r.mailbox.Post(func() {
		if state := r.State(); state != StateAwaitingReferences {
			done(fmt.Errorf("node %s: bind in state %s", r.cfg.NodeID, state))
			return
		}
		if err := r.safeBind(refs); err != nil {
			r.setState(StateFailed)
			r.closeBehavior()
			r.dropBuffer()
			done(err)
			return
		}
		r.setState(StateActive)
		r.logger.Debugw("node active", "buffered", len(r.buffer))
		done(nil)
		r.replay()
	})
	if !posted {
		done(component.ErrStopped)
	}
}

// Stop closes the behavior and stops the loop. done runs once the runner is
// stopped; queued messages ahead of the stop are still processed.
func (r *Runner) Stop(done func()) {
	posted := r.mailbox.Post(func() {
		if !r.State().Terminal() {
			r.setState(StateStopped)
		}
		r.closeBehavior()
		r.dropBuffer()
		r.mailbox.Stop()
		if done != nil {
			done()
		}
	})
	if !posted && done != nil {
		done()
	}
}

func (r *Runner) Done() <-chan struct{} {
	return r.mailbox.Done()
}

func (r *Runner) setState(s State) {
	r.state.Store(int32(s))
}

func (r *Runner) receive(ctx context.Context, msg *models.EventMessage) {
	switch r.State() {
	case StateActive:
		r.process(ctx, msg)
	case StateCreated, StateAwaitingReferences:
		if len(r.buffer) >= r.cfg.BufferSize {
			dropped := r.buffer[0]
			r.buffer[0] = pending{}
			r.buffer = r.buffer[1:]
			metrics.IncNodeBufferDropped(r.cfg.PipelineID, r.cfg.NodeID)
			r.logger.Warnw("pre-activation buffer full, dropping oldest message", "message_id", dropped.msg.ID)
		}
		r.buffer = append(r.buffer, pending{ctx: ctx, msg: msg})
	default:
		r.logger.Debugw("dropping message for stopped node", "message_id", msg.ID)
	}
}

func (r *Runner) replay() {
	buffered := r.buffer
	r.buffer = nil
	for _, p := range buffered {
		if r.State() != StateActive {
			return
		}
		r.process(p.ctx, p.msg)
	}
}

func (r *Runner) dropBuffer() {
	if n := len(r.buffer); n > 0 {
		r.logger.Debugw("discarding buffered messages", "count", n)
	}
	r.buffer = nil
}

func (r *Runner) process(ctx context.Context, msg *models.EventMessage) {
	ctx = logging.WithPipelineID(ctx, r.cfg.PipelineID)
	ctx = logging.WithNodeID(ctx, r.cfg.NodeID)
	ctx = logging.WithMessageID(ctx, msg.ID)
	ctx = tracing.ExtractMessage(ctx, msg)
	ctx, span := tracing.StartSpan(ctx, "node.process",
		attribute.String("pipeline.id", r.cfg.PipelineID),
		attribute.String("node.id", r.cfg.NodeID),
	)
	defer span.End()
	tracing.InjectMessage(ctx, msg)

	start := time.Now()
	status := "ok"

	panicked, err := r.invoke(ctx, msg)
	switch {
	case panicked:
		status = "panic"
		r.logger.ErrorwCtx(ctx, "node panicked", "error", err)
		r.routeFailure(ctx, msg, err)
	case err != nil && apperrors.IsFatal(err):
		status = "fatal"
		r.fail(ctx, err)
	case err != nil:
		status = "error"
		r.routeFailure(ctx, msg, err)
	}

	tracing.RecordError(span, err)
	metrics.ObserveNodeProcessing(r.cfg.PipelineID, r.cfg.NodeID, status, time.Since(start))
}

func (r *Runner) invoke(ctx context.Context, msg *models.EventMessage) (panicked bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			panicked = true
			err = apperrors.RecoverPanic(rec)
		}
	}()
	return false, r.behavior.Process(ctx, msg)
}

func (r *Runner) routeFailure(ctx context.Context, msg *models.EventMessage, cause error) {
	router, ok := r.behavior.(ErrorRouter)
	if !ok {
		r.logger.WarnwCtx(ctx, "processing failed", "error", cause)
		return
	}
	if err := router.RouteError(ctx, msg, constants.ErrKeyExecutionFailed, "process", cause.Error()); err != nil {
		r.logger.WarnwCtx(ctx, "processing failed and could not be routed", "error", cause, "route_error", err)
	}
}

func (r *Runner) fail(ctx context.Context, err error) {
	r.logger.ErrorwCtx(ctx, "node failed", "error", err)
	r.setState(StateFailed)
	r.closeBehavior()
	r.dropBuffer()
	r.mailbox.Stop()
	if r.cfg.Parent != nil {
		r.cfg.Parent.NodeFailed(r.cfg.NodeID, r.cfg.Instance, err)
	}
}

func (r *Runner) safeBind(refs References) error {
	return apperrors.Safely(func() error { return r.behavior.Bind(refs) })
}

func (r *Runner) closeBehavior() {
	if r.closed {
		return
	}
	r.closed = true
	if err := r.behavior.Close(); err != nil {
		r.logger.Warnw("closing node behavior failed", "error", err)
	}
}

// Group round-robins deliveries over the runners of one element.
type Group struct {
	id      string
	runners []*Runner
	next    atomic.Uint64
}

func NewGroup(id string, runners []*Runner) *Group {
	return &Group{id: id, runners: runners}
}

func (g *Group) ID() string {
	return g.id
}

func (g *Group) Runners() []*Runner {
	return g.runners
}

// Deliver hands msg to the next runner, skipping stopped ones.
func (g *Group) Deliver(ctx context.Context, msg *models.EventMessage) error {
	n := uint64(len(g.runners))
	if n == 0 {
		return component.ErrStopped
	}
	start := g.next.Add(1) - 1
	for i := uint64(0); i < n; i++ {
		err := g.runners[(start+i)%n].Deliver(ctx, msg)
		if !errors.Is(err, component.ErrStopped) {
			return err
		}
	}
	return component.ErrStopped
}
