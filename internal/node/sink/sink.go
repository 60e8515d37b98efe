// Package sink implements terminal node types that hand messages to an
// external system, plus the discard and forward helpers.
package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"switchyard/internal/broker"
	"switchyard/internal/config"
	"switchyard/internal/constants"
	"switchyard/internal/logger"
	"switchyard/internal/node"
	"switchyard/pkg/circuitbreaker"
	"switchyard/pkg/metrics"
	"switchyard/pkg/models"
	"switchyard/pkg/retry"
)

const (
	TypeLog      = "log-sink"
	TypeKafka    = "kafka-sink"
	TypePostgres = "postgres-sink"
	TypeMongoDB  = "mongodb-sink"
	TypeDiscard  = "discard"
	TypeForward  = "forward"
)

// Writer hands one message to the outside world.
type Writer interface {
	Write(ctx context.Context, msg *models.EventMessage) error
	Close() error
}

// Deps are the shared clients sink types are built on. A nil client makes
// the corresponding node type fail construction.
type Deps struct {
	Producer       broker.Producer
	Postgres       *sql.DB
	Mongo          *mongo.Database
	CircuitBreaker config.CircuitBreakerConfig
	Retry          retry.Policy
}

// breaker returns the breaker guarding one node instance, or nil when
// breakers are disabled.
func (d Deps) breaker(sinkType string, p node.Params) *circuitbreaker.Wrapper {
	return circuitbreaker.FromSettings(fmt.Sprintf("%s:%s/%s", sinkType, p.PipelineID, p.NodeID()), d.CircuitBreaker)
}

// WriterBuilder builds the writer of one node instance.
type WriterBuilder func(p node.Params, deps Deps) (Writer, error)

func Register(reg *node.Registry, deps Deps) error {
	writers := map[string]WriterBuilder{
		TypeLog:      newLogWriter,
		TypeKafka:    newKafkaWriter,
		TypePostgres: newPostgresWriter,
		TypeMongoDB:  newMongoWriter,
		TypeDiscard:  newDiscardWriter,
	}
	for name, build := range writers {
		if err := reg.Register(name, NewFactory(name, build, deps)); err != nil {
			return err
		}
	}
	return reg.Register(TypeForward, newForward)
}

// NewFactory wraps a WriterBuilder into a node factory.
func NewFactory(sinkType string, build WriterBuilder, deps Deps) node.Factory {
	return func(p node.Params) (node.Behavior, error) {
		w, err := build(p, deps)
		if err != nil {
			return nil, err
		}
		log := p.Logger
		if log == nil {
			log = logger.NopLogger()
		}
		return &Node{
			id:       p.NodeID(),
			sinkType: sinkType,
			settings: p.Element.Settings,
			writer:   w,
			logger:   log,
		}, nil
	}
}

// Node writes every message it receives. Error handlers are optional; a
// failed write without one is logged and dropped.
type Node struct {
	id       string
	sinkType string
	settings map[string]string
	writer   Writer
	errors   node.ErrorRoutes
	logger   logger.Logger
}

func (n *Node) Bind(refs node.References) error {
	routes, err := node.BindErrorRoutes(n.id, n.settings, refs, false)
	if err != nil {
		return fmt.Errorf("node %s: %w", n.id, err)
	}
	n.errors = routes
	return nil
}

func (n *Node) Process(ctx context.Context, msg *models.EventMessage) error {
	start := time.Now()
	err := n.writer.Write(ctx, msg)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ObserveSinkWrite(n.sinkType, status, time.Since(start))
	if err == nil {
		return nil
	}

	routeErr := n.errors.RouteError(ctx, msg, constants.ErrKeySinkWriteFailed, "write", err.Error())
	switch {
	case routeErr == nil:
	case errors.Is(routeErr, node.ErrNoErrorHandler):
		n.logger.WarnwCtx(ctx, "sink write failed, message dropped",
			"sink", n.sinkType,
			"error", err,
		)
	default:
		n.logger.ErrorwCtx(ctx, "sink write failed and error routing failed",
			"sink", n.sinkType,
			"error", err,
			"route_error", routeErr,
		)
	}
	return nil
}

func (n *Node) RouteError(ctx context.Context, msg *models.EventMessage, key, location, detail string) error {
	return n.errors.RouteError(ctx, msg, key, location, detail)
}

func (n *Node) Close() error {
	return n.writer.Close()
}

type discardWriter struct{}

func newDiscardWriter(node.Params, Deps) (Writer, error) {
	return discardWriter{}, nil
}

func (discardWriter) Write(context.Context, *models.EventMessage) error { return nil }

func (discardWriter) Close() error { return nil }
