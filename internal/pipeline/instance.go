// Package pipeline builds one topology of processing nodes from its
// configuration, binds their references and supervises their failures.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"switchyard/internal/component"
	"switchyard/internal/constants"
	"switchyard/internal/logger"
	"switchyard/internal/node"
	"switchyard/pkg/logging"
	"switchyard/pkg/models"
)

type State int32

const (
	StateInitializing State = iota
	StateReady
	StateShuttingDown
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateReady:
		return "READY"
	case StateShuttingDown:
		return "SHUTTING_DOWN"
	case StateStopped:
		return "STOPPED"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

type Reason string

const (
	ReasonNonUniqueElementID  Reason = "NON_UNIQUE_ELEMENT_ID"
	ReasonTypeNotFound        Reason = "TYPE_NOT_FOUND"
	ReasonNodeCreationFailed  Reason = "NODE_CREATION_FAILED"
	ReasonNodeBindFailed      Reason = "NODE_BIND_FAILED"
	ReasonBindTimeout         Reason = "BIND_TIMEOUT"
	ReasonInitialNodeNotFound Reason = "INITIAL_NODE_NOT_FOUND"
	ReasonNodeFailed          Reason = "NODE_FAILED"
)

// Failure is what an instance reports when it cannot reach or stay Ready.
type Failure struct {
	Reason Reason
	NodeID string
	Err    error
}

func (f *Failure) Error() string {
	msg := string(f.Reason)
	if f.NodeID != "" {
		msg += " (node " + f.NodeID + ")"
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Reporter receives the lifecycle of an instance. Calls are made from the
// instance goroutine; implementations re-post them into their own loop.
// Exactly one of Failed or Stopped is reported, once. Failed is reported as
// soon as the failure is known; Stopped once every node has stopped.
type Reporter interface {
	Ready(inst *Instance)
	Failed(inst *Instance, failure *Failure)
	Stopped(inst *Instance)
}

type Config struct {
	Pipeline       models.PipelineConfig
	Registry       *node.Registry
	Reporter       Reporter
	Logger         logger.Logger
	BindTimeout    time.Duration
	NodeBufferSize int
}

type element struct {
	id      string
	handle  component.Handle
	runners []*node.Runner
}

// Instance owns the runners of one pipeline. All fields below mailbox are
// owned by the mailbox goroutine.
type Instance struct {
	cfg     Config
	mailbox *component.Mailbox
	state   atomic.Int32
	initial atomic.Pointer[component.Handle]
	logger  logger.Logger

	elements    []element
	pendingBind int
	bindTimer   *time.Timer
	reported    bool
}

func New(cfg Config) *Instance {
	if cfg.BindTimeout <= 0 {
		cfg.BindTimeout = constants.DefaultBindTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NopLogger()
	}
	return &Instance{
		cfg:     cfg,
		mailbox: component.NewMailbox(),
		logger:  cfg.Logger.With(logging.PipelineIDKey, cfg.Pipeline.PipelineID),
	}
}

func (i *Instance) ID() string {
	return i.cfg.Pipeline.PipelineID
}

func (i *Instance) Config() models.PipelineConfig {
	return i.cfg.Pipeline
}

func (i *Instance) State() State {
	return State(i.state.Load())
}

// Start begins initialization. The outcome arrives through the Reporter.
func (i *Instance) Start() {
	i.mailbox.Start()
	i.mailbox.Post(i.initialize)
}

// Deliver hands msg to the initial node.
func (i *Instance) Deliver(ctx context.Context, msg *models.EventMessage) error {
	switch i.State() {
	case StateReady:
		return (*i.initial.Load()).Deliver(ctx, msg)
	case StateInitializing:
		return component.ErrNotReady
	default:
		return component.ErrStopped
	}
}

// Shutdown stops every node and then reports Stopped. It is a no-op once
// the instance is shutting down or terminated.
func (i *Instance) Shutdown() {
	i.mailbox.Post(func() {
		switch i.State() {
		case StateInitializing, StateReady:
			i.logger.Infow("pipeline shutting down")
			i.setState(StateShuttingDown)
			i.stopTimer()
			i.stopChildren(func() {
				i.terminate(StateStopped, nil)
				i.mailbox.Stop()
			})
		}
	})
}

// Done is closed once the instance goroutine has exited.
func (i *Instance) Done() <-chan struct{} {
	return i.mailbox.Done()
}

// NodeFailed is called by a runner that hit a fatal error.
func (i *Instance) NodeFailed(nodeID string, instance int, err error) {
	i.mailbox.Post(func() {
		if i.State() != StateReady && i.State() != StateInitializing {
			return
		}
		i.logger.Errorw("node failed, shutting pipeline down", logging.NodeIDKey, nodeID, "instance", instance, "error", err)
		i.abort(&Failure{Reason: ReasonNodeFailed, NodeID: nodeID, Err: err})
	})
}

func (i *Instance) setState(s State) {
	i.state.Store(int32(s))
}

func (i *Instance) initialize() {
	seen := make(map[string]bool, len(i.cfg.Pipeline.Elements))
	for _, el := range i.cfg.Pipeline.Elements {
		if seen[el.ElementID] {
			i.abort(&Failure{Reason: ReasonNonUniqueElementID, NodeID: el.ElementID})
			return
		}
		seen[el.ElementID] = true

		e, failure := i.createElement(el)
		if failure != nil {
			i.abort(failure)
			return
		}
		i.elements = append(i.elements, e)
	}
	i.bind()
}

func (i *Instance) createElement(el models.ElementConfig) (element, *Failure) {
	e := element{id: el.ElementID}
	for k := 0; k < el.Instances(); k++ {
		log := i.logger.With(logging.NodeIDKey, el.ElementID, "instance", k)
		b, err := i.cfg.Registry.Create(node.Params{
			PipelineID: i.ID(),
			Element:    el,
			Instance:   k,
			Logger:     log,
		})
		if err != nil {
			// runners of this element are not tracked yet
			for _, r := range e.runners {
				r.Stop(nil)
			}
			reason := ReasonNodeCreationFailed
			if errors.Is(err, node.ErrTypeNotFound) {
				reason = ReasonTypeNotFound
			}
			return element{}, &Failure{Reason: reason, NodeID: el.ElementID, Err: err}
		}
		r := node.NewRunner(b, node.RunnerConfig{
			PipelineID: i.ID(),
			NodeID:     el.ElementID,
			Instance:   k,
			BufferSize: i.cfg.NodeBufferSize,
			Logger:     log,
			Parent:     i,
		})
		r.Start()
		e.runners = append(e.runners, r)
	}

	if len(e.runners) == 1 {
		e.handle = e.runners[0]
	} else {
		e.handle = node.NewGroup(el.ElementID, e.runners)
	}
	return e, nil
}

func (i *Instance) references() node.References {
	refs := node.References{
		Nodes:         make(map[string]component.Handle, len(i.elements)),
		ErrorHandlers: make(map[string]bool),
	}
	for _, e := range i.elements {
		refs.Nodes[e.id] = e.handle
	}
	for _, el := range i.cfg.Pipeline.Elements {
		if node.IsErrorHandlerElement(el) {
			refs.ErrorHandlers[el.ElementID] = true
		}
	}
	return refs
}

func (i *Instance) bind() {
	refs := i.references()
	for _, e := range i.elements {
		i.pendingBind += len(e.runners)
	}
	if i.pendingBind == 0 {
		i.activate()
		return
	}

	i.bindTimer = time.AfterFunc(i.cfg.BindTimeout, func() {
		i.mailbox.Post(func() {
			if i.State() != StateInitializing || i.pendingBind == 0 {
				return
			}
			i.abort(&Failure{
				Reason: ReasonBindTimeout,
				Err:    fmt.Errorf("%d node(s) did not bind within %s", i.pendingBind, i.cfg.BindTimeout),
			})
		})
	})

	for _, e := range i.elements {
		for _, r := range e.runners {
			id := e.id
			r.Bind(refs, func(err error) {
				i.mailbox.Post(func() { i.bound(id, err) })
			})
		}
	}
}

func (i *Instance) bound(nodeID string, err error) {
	if i.State() != StateInitializing {
		return
	}
	if err != nil {
		i.abort(&Failure{Reason: ReasonNodeBindFailed, NodeID: nodeID, Err: err})
		return
	}
	i.pendingBind--
	if i.pendingBind == 0 {
		i.stopTimer()
		i.activate()
	}
}

func (i *Instance) activate() {
	initialID := i.cfg.Pipeline.InitialNodeID
	var initial component.Handle
	for _, e := range i.elements {
		if e.id == initialID {
			initial = e.handle
		}
	}
	if initial == nil {
		i.abort(&Failure{Reason: ReasonInitialNodeNotFound, NodeID: initialID})
		return
	}
	i.initial.Store(&initial)
	i.setState(StateReady)
	i.logger.Infow("pipeline ready", "elements", len(i.elements))
	i.cfg.Reporter.Ready(i)
}

// abort reports the failure right away, then stops every node created so
// far. A node stuck in Bind delays only the instance exit, not the report.
func (i *Instance) abort(failure *Failure) {
	i.logger.Warnw("pipeline failed", "reason", failure.Reason, "error", failure.Err, logging.NodeIDKey, failure.NodeID)
	i.stopTimer()
	i.terminate(StateFailed, failure)
	i.stopChildren(i.mailbox.Stop)
}

// stopChildren stops every runner and runs then on the instance goroutine
// once all of them acknowledged.
func (i *Instance) stopChildren(then func()) {
	var runners []*node.Runner
	for _, e := range i.elements {
		runners = append(runners, e.runners...)
	}
	if len(runners) == 0 {
		then()
		return
	}
	remaining := len(runners)
	for _, r := range runners {
		r.Stop(func() {
			i.mailbox.Post(func() {
				remaining--
				if remaining == 0 {
					then()
				}
			})
		})
	}
}

func (i *Instance) terminate(final State, failure *Failure) {
	if i.reported {
		return
	}
	i.reported = true
	i.setState(final)
	if final == StateFailed {
		i.cfg.Reporter.Failed(i, failure)
		return
	}
	i.logger.Infow("pipeline stopped")
	i.cfg.Reporter.Stopped(i)
}

func (i *Instance) stopTimer() {
	if i.bindTimer != nil {
		i.bindTimer.Stop()
		i.bindTimer = nil
	}
}
