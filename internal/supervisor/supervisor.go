// Package supervisor creates and tears down pipeline instances from their
// declarative configuration and keeps the directory in line with them.
package supervisor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"switchyard/internal/component"
	"switchyard/internal/constants"
	"switchyard/internal/directory"
	"switchyard/internal/logger"
	"switchyard/internal/node"
	"switchyard/internal/pipeline"
	"switchyard/pkg/logging"
	"switchyard/pkg/metrics"
	"switchyard/pkg/models"
)

const DefaultID = "supervisor"

// Directory is the part of the component directory the supervisor uses.
type Directory interface {
	Register(ctx context.Context, kind component.Kind, id string, h component.Handle) (directory.RegisterResult, error)
	Deregister(ctx context.Context, kind component.Kind, id string) (directory.DeregisterResult, error)
	Lookup(ctx context.Context, kind component.Kind, ids []string) (map[string]component.Handle, error)
}

type Config struct {
	// ID is the id the supervisor registers under as PIPELINE_SUPERVISOR.
	ID             string
	Registry       *node.Registry
	Directory      Directory
	Logger         logger.Logger
	BindTimeout    time.Duration
	RequestTimeout time.Duration
	NodeBufferSize int
}

// Status is one row of the Pipelines snapshot.
type Status struct {
	ID            string `json:"pipeline_id"`
	State         string `json:"state"`
	Reason        string `json:"reason,omitempty"`
	Registered    bool   `json:"registered"`
	Description   string `json:"description,omitempty"`
	InitialNodeID string `json:"initial_node_id"`
	Elements      int    `json:"elements"`
}

type tracked struct {
	inst       *pipeline.Instance
	registered bool
	reason     string
	waiters    []chan struct{}
}

// Supervisor state is owned by its mailbox goroutine.
type Supervisor struct {
	cfg     Config
	mailbox *component.Mailbox
	logger  logger.Logger

	pipelines map[string]*tracked
	failed    map[string]Status
}

func New(cfg Config) *Supervisor {
	if cfg.ID == "" {
		cfg.ID = DefaultID
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = constants.DefaultRequestTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NopLogger()
	}
	s := &Supervisor{
		cfg:       cfg,
		mailbox:   component.NewMailbox(),
		logger:    cfg.Logger.With("component", "supervisor"),
		pipelines: make(map[string]*tracked),
		failed:    make(map[string]Status),
	}
	s.mailbox.Start()
	return s
}

func (s *Supervisor) ID() string {
	return s.cfg.ID
}

// Start registers the supervisor in the directory.
func (s *Supervisor) Start(ctx context.Context) error {
	res, err := s.cfg.Directory.Register(ctx, component.KindPipelineSupervisor, s.cfg.ID, s)
	if err != nil {
		return fmt.Errorf("register supervisor: %w", err)
	}
	if err := res.Err(); err != nil {
		return fmt.Errorf("register supervisor %s: %w", s.cfg.ID, err)
	}
	return nil
}

// Setup validates cfg and, when it is acceptable, creates one pipeline
// instance for it. The instance registers in the directory once Ready. The
// error return is infrastructure only.
func (s *Supervisor) Setup(ctx context.Context, cfg *models.PipelineConfig) (SetupResult, error) {
	if res := Validate(cfg); res != SetupOK {
		metrics.IncPipelineSetup(string(res))
		s.logger.Warnw("pipeline setup rejected", "result", res)
		return res, nil
	}
	own := cfg.Copy()

	res, err := component.Call(ctx, s.mailbox, func() SetupResult {
		return s.setup(own)
	})
	if err != nil {
		return "", err
	}
	metrics.IncPipelineSetup(string(res))
	return res, nil
}

func (s *Supervisor) setup(cfg models.PipelineConfig) SetupResult {
	if _, exists := s.pipelines[cfg.PipelineID]; exists {
		s.logger.Warnw("pipeline setup rejected", logging.PipelineIDKey, cfg.PipelineID, "result", SetupPipelineAlreadyExists)
		return SetupPipelineAlreadyExists
	}
	delete(s.failed, cfg.PipelineID)

	inst := pipeline.New(pipeline.Config{
		Pipeline:       cfg,
		Registry:       s.cfg.Registry,
		Reporter:       reporter{s},
		Logger:         s.cfg.Logger,
		BindTimeout:    s.cfg.BindTimeout,
		NodeBufferSize: s.cfg.NodeBufferSize,
	})
	s.pipelines[cfg.PipelineID] = &tracked{inst: inst}
	s.logger.Infow("pipeline setup accepted", logging.PipelineIDKey, cfg.PipelineID, "elements", len(cfg.Elements))
	inst.Start()
	return SetupOK
}

// Shutdown stops a pipeline and waits, bounded by ctx, until it has stopped
// and been deregistered.
func (s *Supervisor) Shutdown(ctx context.Context, id string) (ShutdownResult, error) {
	type outcome struct {
		result ShutdownResult
		done   chan struct{}
	}
	out, err := component.Call(ctx, s.mailbox, func() outcome {
		t, ok := s.pipelines[id]
		if !ok {
			return outcome{result: ShutdownUnknownPipeline}
		}
		done := make(chan struct{})
		t.waiters = append(t.waiters, done)
		t.inst.Shutdown()
		return outcome{result: ShutdownOK, done: done}
	})
	if err != nil {
		return "", err
	}
	if out.result != ShutdownOK {
		return out.result, nil
	}
	select {
	case <-out.done:
		return ShutdownOK, nil
	case <-ctx.Done():
		return ShutdownOK, ctx.Err()
	}
}

// Pipelines returns the status of every tracked pipeline plus the last
// failure of pipelines that did not survive, sorted by id.
func (s *Supervisor) Pipelines(ctx context.Context) ([]Status, error) {
	return component.Call(ctx, s.mailbox, func() []Status {
		out := make([]Status, 0, len(s.pipelines)+len(s.failed))
		for id, t := range s.pipelines {
			cfg := t.inst.Config()
			out = append(out, Status{
				ID:            id,
				State:         t.inst.State().String(),
				Reason:        t.reason,
				Registered:    t.registered,
				Description:   cfg.Description,
				InitialNodeID: cfg.InitialNodeID,
				Elements:      len(cfg.Elements),
			})
		}
		for _, st := range s.failed {
			out = append(out, st)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return out
	})
}

// Deliver broadcasts msg to every Ready pipeline; each pipeline after the
// first receives its own copy.
func (s *Supervisor) Deliver(ctx context.Context, msg *models.EventMessage) error {
	ctx = context.WithoutCancel(ctx)
	if !s.mailbox.Post(func() { s.broadcast(ctx, msg) }) {
		return component.ErrStopped
	}
	metrics.SetMailboxQueueSize(s.cfg.ID, s.mailbox.Len())
	return nil
}

func (s *Supervisor) broadcast(ctx context.Context, msg *models.EventMessage) {
	ids := make([]string, 0, len(s.pipelines))
	for id, t := range s.pipelines {
		if t.inst.State() == pipeline.StateReady {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	dests := make([]node.Destination, 0, len(ids))
	for _, id := range ids {
		dests = append(dests, node.Destination{ID: id, Handle: s.pipelines[id].inst})
	}
	if len(dests) == 0 {
		s.logger.DebugwCtx(ctx, "no ready pipeline for broadcast", "message_id", msg.ID)
		return
	}
	for id, err := range node.FanOut(ctx, msg, dests) {
		s.logger.WarnwCtx(ctx, "broadcast delivery failed", logging.PipelineIDKey, id, "error", err)
	}
}

// Stop shuts every pipeline down, deregisters the supervisor and stops its
// loop. Waiting is bounded by ctx.
func (s *Supervisor) Stop(ctx context.Context) error {
	waits, err := component.Call(ctx, s.mailbox, func() []chan struct{} {
		var waits []chan struct{}
		for _, t := range s.pipelines {
			done := make(chan struct{})
			t.waiters = append(t.waiters, done)
			t.inst.Shutdown()
			waits = append(waits, done)
		}
		return waits
	})
	if err != nil {
		return err
	}
	for _, done := range waits {
		select {
		case <-done:
		case <-ctx.Done():
			s.mailbox.Stop()
			return ctx.Err()
		}
	}

	if _, err := s.cfg.Directory.Deregister(ctx, component.KindPipelineSupervisor, s.cfg.ID); err != nil {
		s.logger.Warnw("failed to deregister supervisor", "error", err)
	}
	s.mailbox.Stop()
	<-s.mailbox.Done()
	return nil
}

type reporter struct {
	s *Supervisor
}

func (r reporter) Ready(inst *pipeline.Instance) {
	r.s.mailbox.Post(func() { r.s.onReady(inst) })
}

func (r reporter) Failed(inst *pipeline.Instance, failure *pipeline.Failure) {
	r.s.mailbox.Post(func() { r.s.onFailed(inst, failure) })
}

func (r reporter) Stopped(inst *pipeline.Instance) {
	r.s.mailbox.Post(func() { r.s.onStopped(inst) })
}

func (s *Supervisor) lookupTracked(inst *pipeline.Instance) *tracked {
	t, ok := s.pipelines[inst.ID()]
	if !ok || t.inst != inst {
		return nil
	}
	return t
}

func (s *Supervisor) onReady(inst *pipeline.Instance) {
	t := s.lookupTracked(inst)
	if t == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()
	res, err := s.cfg.Directory.Register(ctx, component.KindPipeline, inst.ID(), inst)
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		// undo: stop the instance and deregister whatever it may own
		t.reason = "REGISTRATION_FAILED: " + err.Error()
		s.logger.Errorw("pipeline registration failed, shutting it down",
			logging.PipelineIDKey, inst.ID(),
			"error", err,
		)
		inst.Shutdown()
		return
	}

	t.registered = true
	s.updateActive()
	s.logger.Infow("pipeline registered", logging.PipelineIDKey, inst.ID())
}

func (s *Supervisor) onFailed(inst *pipeline.Instance, failure *pipeline.Failure) {
	t := s.lookupTracked(inst)
	if t == nil {
		return
	}
	s.logger.Errorw("pipeline failed",
		logging.PipelineIDKey, inst.ID(),
		"reason", failure.Reason,
		"error", failure.Err,
	)
	cfg := inst.Config()
	s.failed[inst.ID()] = Status{
		ID:            inst.ID(),
		State:         pipeline.StateFailed.String(),
		Reason:        failure.Error(),
		Description:   cfg.Description,
		InitialNodeID: cfg.InitialNodeID,
		Elements:      len(cfg.Elements),
	}
	s.release(inst, t)
}

func (s *Supervisor) onStopped(inst *pipeline.Instance) {
	t := s.lookupTracked(inst)
	if t == nil {
		return
	}
	s.release(inst, t)
}

// release forgets the instance and removes its directory entry, if the
// entry is still the instance's own.
func (s *Supervisor) release(inst *pipeline.Instance, t *tracked) {
	delete(s.pipelines, inst.ID())
	if t.registered || t.reason != "" {
		s.deregisterOwned(inst)
	}
	for _, w := range t.waiters {
		close(w)
	}
	s.updateActive()
}

func (s *Supervisor) deregisterOwned(inst *pipeline.Instance) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()

	found, err := s.cfg.Directory.Lookup(ctx, component.KindPipeline, []string{inst.ID()})
	if err != nil {
		s.logger.Warnw("pipeline deregistration lookup failed", logging.PipelineIDKey, inst.ID(), "error", err)
		return
	}
	if h, ok := found[inst.ID()]; !ok || h != component.Handle(inst) {
		return
	}
	if _, err := s.cfg.Directory.Deregister(ctx, component.KindPipeline, inst.ID()); err != nil {
		s.logger.Warnw("pipeline deregistration failed", logging.PipelineIDKey, inst.ID(), "error", err)
		return
	}
	s.logger.Infow("pipeline deregistered", logging.PipelineIDKey, inst.ID())
}

func (s *Supervisor) updateActive() {
	active := 0
	for _, t := range s.pipelines {
		if t.registered {
			active++
		}
	}
	metrics.SetPipelinesActive(active)
}

// Validate checks a pipeline configuration without creating anything.
func Validate(cfg *models.PipelineConfig) SetupResult {
	if cfg == nil {
		return SetupMissingConfig
	}
	if strings.TrimSpace(cfg.PipelineID) == "" {
		return SetupMissingPipelineID
	}
	if len(cfg.Elements) == 0 {
		return SetupMissingElements
	}
	seen := make(map[string]bool, len(cfg.Elements))
	for _, el := range cfg.Elements {
		if strings.TrimSpace(el.ElementID) == "" {
			return SetupMissingElementID
		}
		if strings.TrimSpace(el.NodeType) == "" {
			return SetupMissingElementType
		}
		if seen[el.ElementID] {
			return SetupNonUniqueElementID
		}
		seen[el.ElementID] = true
	}
	if strings.TrimSpace(cfg.InitialNodeID) == "" {
		return SetupMissingInitialNode
	}
	if !seen[cfg.InitialNodeID] {
		return SetupUnknownInitialNode
	}
	return SetupOK
}

