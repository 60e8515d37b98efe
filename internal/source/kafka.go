// Package source feeds events from external transports into a dispatcher.
package source

import (
	"context"
	"errors"
	"fmt"

	"switchyard/internal/broker"
	"switchyard/internal/component"
	"switchyard/internal/config"
	"switchyard/internal/logger"
	apperrors "switchyard/pkg/errors"
	"switchyard/pkg/models"
)

// KafkaSource consumes JSON event messages from one topic and hands each of
// them to its target, normally a dispatch router.
type KafkaSource struct {
	name     string
	topic    string
	consumer broker.Consumer
	target   component.Handle
	logger   logger.Logger
}

func NewKafkaSource(name string, cfg config.SourceConfig, consumer broker.Consumer, target component.Handle, log logger.Logger) (*KafkaSource, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("source %s: topic is required", name)
	}
	if consumer == nil || target == nil {
		return nil, fmt.Errorf("source %s: consumer and target are required", name)
	}
	if log == nil {
		log = logger.NopLogger()
	}
	return &KafkaSource{
		name:     name,
		topic:    cfg.Topic,
		consumer: consumer,
		target:   target,
		logger:   log.With("component", "kafka-source", "source", name, "topic", cfg.Topic),
	}, nil
}

func (s *KafkaSource) Name() string {
	return s.name
}

// Run consumes until ctx is canceled.
func (s *KafkaSource) Run(ctx context.Context) error {
	s.logger.Infow("kafka source starting")
	err := s.consumer.Consume(ctx, s.topic, s.handle)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("source %s: %w", s.name, err)
	}
	s.logger.Infow("kafka source stopped")
	return nil
}

// handle delivers one message. A target that is not ready yet is retried by
// the consumer; a stopped target is fatal so the message goes straight to
// the DLQ.
func (s *KafkaSource) handle(ctx context.Context, msg *models.EventMessage) error {
	err := s.target.Deliver(ctx, msg)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, component.ErrStopped):
		return apperrors.ErrServiceUnavailable.WithCause(err).WithDetail("source", s.name).AsFatal()
	default:
		return apperrors.ErrServiceUnavailable.WithCause(err).WithDetail("source", s.name).AsRetryable()
	}
}
