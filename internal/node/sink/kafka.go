package sink

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"switchyard/internal/broker"
	"switchyard/internal/node"
	"switchyard/pkg/circuitbreaker"
	"switchyard/pkg/models"
	"switchyard/pkg/retry"
)

// kafkaWriter publishes JSON messages through the process-wide producer,
// which it does not own.
type kafkaWriter struct {
	topic    string
	producer broker.Producer
	breaker  *circuitbreaker.Wrapper
	policy   retry.Policy
}

func newKafkaWriter(p node.Params, deps Deps) (Writer, error) {
	topic, ok := p.Setting("topic")
	if !ok || strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("missing required setting topic")
	}
	if deps.Producer == nil {
		return nil, fmt.Errorf("kafka producer is not configured")
	}
	policy, err := retryPolicy(p, deps.Retry)
	if err != nil {
		return nil, err
	}
	return &kafkaWriter{
		topic:    strings.TrimSpace(topic),
		producer: deps.Producer,
		breaker:  deps.breaker(TypeKafka, p),
		policy:   policy,
	}, nil
}

func (w *kafkaWriter) Write(ctx context.Context, msg *models.EventMessage) error {
	return retry.Retry(ctx, w.policy, func() error {
		_, err := circuitbreaker.Do(ctx, w.breaker, func() (struct{}, error) {
			return struct{}{}, w.producer.Publish(ctx, w.topic, msg)
		})
		return err
	})
}

func (w *kafkaWriter) Close() error {
	return nil
}

// retryPolicy applies the retry.max_attempts setting over the shared policy.
func retryPolicy(p node.Params, base retry.Policy) (retry.Policy, error) {
	raw, ok := p.Setting("retry.max_attempts")
	if !ok {
		return base, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return retry.Policy{}, fmt.Errorf("setting retry.max_attempts: invalid value %q", raw)
	}
	base.MaxAttempts = n
	return base, nil
}
