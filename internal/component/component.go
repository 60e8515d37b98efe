// Package component holds the primitives shared by every stateful part of the
// engine: component kinds, delivery handles and the mailbox loop that
// serializes a component's state changes.
package component

import (
	"context"
	"errors"
	"strings"

	"switchyard/pkg/models"
)

type Kind string

const (
	KindDispatcher         Kind = "DISPATCHER"
	KindPipeline           Kind = "PIPELINE"
	KindPipelineSupervisor Kind = "PIPELINE_SUPERVISOR"
)

var (
	ErrStopped  = errors.New("component stopped")
	ErrNotReady = errors.New("component not ready")
)

func (k Kind) String() string {
	return string(k)
}

func (k Kind) Valid() bool {
	switch k {
	case KindDispatcher, KindPipeline, KindPipelineSupervisor:
		return true
	}
	return false
}

// ParseKind accepts kind names case-insensitively, with '-' as a separator alias.
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	return k, k.Valid()
}

// Handle is an opaque delivery address. Deliver hands the message to the
// component's mailbox and returns without waiting for processing; the caller
// gives up ownership of msg.
type Handle interface {
	Deliver(ctx context.Context, msg *models.EventMessage) error
}

type HandleFunc func(ctx context.Context, msg *models.EventMessage) error

func (f HandleFunc) Deliver(ctx context.Context, msg *models.EventMessage) error {
	return f(ctx, msg)
}
