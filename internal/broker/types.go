package broker

import (
	"context"

	"switchyard/pkg/models"
)

type Producer interface {
	Publish(ctx context.Context, topic string, msg *models.EventMessage) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

type HandlerFunc func(ctx context.Context, msg *models.EventMessage) error
