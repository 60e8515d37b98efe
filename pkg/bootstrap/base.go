package bootstrap

import (
	"context"
	"fmt"

	"switchyard/internal/broker"
	"switchyard/internal/config"
	"switchyard/internal/logger"
)

// Base owns the broker clients shared by sinks and sources.
type Base struct {
	Config    *config.Config
	Logger    logger.Logger
	Producer  broker.Producer
	Consumers []broker.Consumer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// BrokerConfigured reports whether any Kafka broker is configured.
func (b *Base) BrokerConfigured() bool {
	return len(b.Config.Broker.Kafka.Brokers) > 0
}

// InitProducer creates the shared producer. It is a no-op without brokers.
func (b *Base) InitProducer() error {
	if !b.BrokerConfigured() {
		return nil
	}
	producer, err := broker.NewProducer(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}
	b.Producer = producer
	return nil
}

// NewConsumer creates a consumer for one source; Base closes it on shutdown.
func (b *Base) NewConsumer(source config.SourceConfig, serviceName string) (broker.Consumer, error) {
	consumer, err := broker.NewConsumer(b.Config.Broker, source, b.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer for %s: %w", source.Topic, err)
	}
	if serviceName != "" {
		consumer.SetServiceName(serviceName)
	}
	b.Consumers = append(b.Consumers, consumer)
	return consumer, nil
}

func (b *Base) ShutdownConsumers() []error {
	var errs []error
	for _, c := range b.Consumers {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close error: %w", err))
		}
	}
	b.Consumers = nil
	return errs
}

func (b *Base) ShutdownProducer() []error {
	if b.Producer == nil {
		return nil
	}
	if err := b.Producer.Close(); err != nil {
		return []error{fmt.Errorf("producer close error: %w", err)}
	}
	return nil
}

// Shutdown closes consumers, then runs additionalShutdown, then closes the
// producer, so sinks can still publish while pipelines drain.
func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error
	errs = append(errs, b.ShutdownConsumers()...)

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	errs = append(errs, b.ShutdownProducer()...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
