// Package directory maps (kind, id) pairs to delivery handles. All state lives
// on the directory's mailbox goroutine.
package directory

import (
	"context"
	"strings"

	"switchyard/internal/component"
	"switchyard/internal/logger"
	apperrors "switchyard/pkg/errors"
	"switchyard/pkg/metrics"
)

type RegisterResult string

const (
	RegisterOK            RegisterResult = "OK"
	RegisterMissingID     RegisterResult = "MISSING_ID"
	RegisterMissingKind   RegisterResult = "MISSING_KIND"
	RegisterMissingHandle RegisterResult = "MISSING_HANDLE"
	RegisterDuplicateID   RegisterResult = "DUPLICATE_ID"
)

type DeregisterResult string

const (
	DeregisterOK          DeregisterResult = "OK"
	DeregisterMissingID   DeregisterResult = "MISSING_ID"
	DeregisterMissingKind DeregisterResult = "MISSING_KIND"
)

// Err converts a non-OK result into an application error carrying the result code.
func (r RegisterResult) Err() error {
	switch r {
	case RegisterOK:
		return nil
	case RegisterDuplicateID:
		return apperrors.FromReason(string(r), apperrors.ErrConflict)
	default:
		return apperrors.FromReason(string(r), apperrors.ErrValidation)
	}
}

func (r DeregisterResult) Err() error {
	if r == DeregisterOK {
		return nil
	}
	return apperrors.FromReason(string(r), apperrors.ErrValidation)
}

// Mirror receives copies of directory changes. Implementations must not block.
type Mirror interface {
	Registered(kind component.Kind, id string)
	Deregistered(kind component.Kind, id string)
}

type Option func(*Directory)

func WithMirror(m Mirror) Option {
	return func(d *Directory) {
		d.mirror = m
	}
}

type Directory struct {
	mailbox *component.Mailbox
	entries map[component.Kind]map[string]component.Handle
	mirror  Mirror
	logger  logger.Logger
}

func New(log logger.Logger, opts ...Option) *Directory {
	d := &Directory{
		mailbox: component.NewMailbox(),
		entries: make(map[component.Kind]map[string]component.Handle),
		logger:  log.With("component", "directory"),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.mailbox.Start()
	return d
}

func (d *Directory) Register(ctx context.Context, kind component.Kind, id string, h component.Handle) (RegisterResult, error) {
	return component.Call(ctx, d.mailbox, func() RegisterResult {
		return d.register(kind, id, h)
	})
}

func (d *Directory) Deregister(ctx context.Context, kind component.Kind, id string) (DeregisterResult, error) {
	return component.Call(ctx, d.mailbox, func() DeregisterResult {
		return d.deregister(kind, id)
	})
}

// Lookup resolves ids of one kind. Unknown ids are absent from the result.
func (d *Directory) Lookup(ctx context.Context, kind component.Kind, ids []string) (map[string]component.Handle, error) {
	return component.Call(ctx, d.mailbox, func() map[string]component.Handle {
		return d.lookup(kind, ids)
	})
}

// LookupAsync resolves ids and invokes reply on the directory goroutine.
// Callers re-post the result into their own mailbox. It returns
// component.ErrStopped when the directory no longer accepts requests.
func (d *Directory) LookupAsync(kind component.Kind, ids []string, reply func(map[string]component.Handle)) error {
	own := append([]string(nil), ids...)
	if !d.mailbox.Post(func() { reply(d.lookup(kind, own)) }) {
		return component.ErrStopped
	}
	return nil
}

// IDs lists the registered ids of one kind in no particular order.
func (d *Directory) IDs(ctx context.Context, kind component.Kind) ([]string, error) {
	return component.Call(ctx, d.mailbox, func() []string {
		ids := make([]string, 0, len(d.entries[kind]))
		for id := range d.entries[kind] {
			ids = append(ids, id)
		}
		return ids
	})
}

// Stop refuses further requests; requests already queued are still answered.
func (d *Directory) Stop() {
	d.mailbox.Stop()
}

func (d *Directory) Done() <-chan struct{} {
	return d.mailbox.Done()
}

func (d *Directory) register(kind component.Kind, id string, h component.Handle) RegisterResult {
	result := RegisterOK
	switch {
	case strings.TrimSpace(id) == "":
		result = RegisterMissingID
	case !kind.Valid():
		result = RegisterMissingKind
	case h == nil:
		result = RegisterMissingHandle
	default:
		byID := d.entries[kind]
		if byID == nil {
			byID = make(map[string]component.Handle)
			d.entries[kind] = byID
		}
		if _, exists := byID[id]; exists {
			result = RegisterDuplicateID
			break
		}
		byID[id] = h
		metrics.SetDirectoryEntries(kind.String(), len(byID))
		if d.mirror != nil {
			d.mirror.Registered(kind, id)
		}
	}

	metrics.RecordDirectoryOperation("register", kind.String(), string(result))
	if result != RegisterOK {
		d.logger.Warnw("registration rejected", "kind", kind, "id", id, "result", result)
	} else {
		d.logger.Debugw("registered", "kind", kind, "id", id)
	}
	return result
}

func (d *Directory) deregister(kind component.Kind, id string) DeregisterResult {
	result := DeregisterOK
	switch {
	case strings.TrimSpace(id) == "":
		result = DeregisterMissingID
	case !kind.Valid():
		result = DeregisterMissingKind
	default:
		if byID := d.entries[kind]; byID != nil {
			if _, exists := byID[id]; exists {
				delete(byID, id)
				metrics.SetDirectoryEntries(kind.String(), len(byID))
				if d.mirror != nil {
					d.mirror.Deregistered(kind, id)
				}
				d.logger.Debugw("deregistered", "kind", kind, "id", id)
			}
		}
	}
	metrics.RecordDirectoryOperation("deregister", kind.String(), string(result))
	return result
}

func (d *Directory) lookup(kind component.Kind, ids []string) map[string]component.Handle {
	found := make(map[string]component.Handle, len(ids))
	byID := d.entries[kind]
	for _, id := range ids {
		if h, ok := byID[id]; ok {
			found[id] = h
		}
	}
	metrics.RecordDirectoryOperation("lookup", kind.String(), "OK")
	return found
}
