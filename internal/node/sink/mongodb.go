package sink

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"switchyard/internal/constants"
	"switchyard/internal/node"
	"switchyard/pkg/circuitbreaker"
	"switchyard/pkg/metrics"
	"switchyard/pkg/models"
	"switchyard/pkg/retry"
)

type mongoWriter struct {
	collection *mongo.Collection
	pipelineID string
	nodeID     string
	breaker    *circuitbreaker.Wrapper
	policy     retry.Policy
}

func newMongoWriter(p node.Params, deps Deps) (Writer, error) {
	if deps.Mongo == nil {
		return nil, fmt.Errorf("mongodb is not configured")
	}
	policy, err := retryPolicy(p, deps.Retry)
	if err != nil {
		return nil, err
	}
	name := p.SettingOr("collection", constants.DefaultMongoDBCollection)
	return &mongoWriter{
		collection: deps.Mongo.Collection(name),
		pipelineID: p.PipelineID,
		nodeID:     p.NodeID(),
		breaker:    deps.breaker(TypeMongoDB, p),
		policy:     policy,
	}, nil
}

func (w *mongoWriter) document(msg *models.EventMessage) bson.M {
	doc := bson.M{
		"id":           msg.ID,
		"source_id":    msg.SourceID,
		"collector_id": msg.CollectorID,
		"timestamp":    msg.Timestamp,
		"content":      msg.Content,
		"fields":       fieldsOrEmpty(msg.Fields),
		"pipeline_id":  w.pipelineID,
		"node_id":      w.nodeID,
		"stored_at":    time.Now(),
	}
	stack := make(bson.A, 0, len(msg.ErrorStack))
	for _, e := range msg.ErrorStack {
		stack = append(stack, bson.M{
			"key":         e.Key,
			"reporter_id": e.ReporterID,
			"location":    e.Location,
			"message":     e.Message,
			"timestamp":   e.Timestamp,
		})
	}
	doc["error_stack"] = stack
	if msg.Metadata.TraceID != "" {
		doc["trace_id"] = msg.Metadata.TraceID
	}
	return doc
}

func (w *mongoWriter) Write(ctx context.Context, msg *models.EventMessage) error {
	doc := w.document(msg)
	return retry.Retry(ctx, w.policy, func() error {
		start := time.Now()
		_, err := circuitbreaker.Do(ctx, w.breaker, func() (*mongo.InsertOneResult, error) {
			return w.collection.InsertOne(ctx, doc)
		})
		if mongo.IsDuplicateKeyError(err) {
			err = nil
		}
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.IncDatabaseQuery("switchyard", "mongodb", "insert", status)
		metrics.ObserveDatabaseQueryDuration("switchyard", "mongodb", "insert", time.Since(start))
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
		return nil
	})
}

func (w *mongoWriter) Close() error {
	return nil
}
