package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/broker"
	"switchyard/internal/component"
	"switchyard/internal/config"
	"switchyard/internal/logger"
	apperrors "switchyard/pkg/errors"
	"switchyard/pkg/models"
)

// replayConsumer hands every queued message to the handler, then waits for
// cancellation like a real consumer.
type replayConsumer struct {
	msgs    []*models.EventMessage
	results []error
	topic   string
}

func (c *replayConsumer) Consume(ctx context.Context, topic string, handler broker.HandlerFunc) error {
	c.topic = topic
	for _, m := range c.msgs {
		c.results = append(c.results, handler(ctx, m))
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *replayConsumer) Close() error { return nil }
func (c *replayConsumer) SetServiceName(string) {}

func message(content string) *models.EventMessage {
	return models.NewEventMessageBuilder().WithSourceID("s").WithCollectorID("c").WithContent(content).Build()
}

func TestNewKafkaSource_Validates(t *testing.T) {
	target := component.HandleFunc(func(context.Context, *models.EventMessage) error { return nil })

	_, err := NewKafkaSource("in", config.SourceConfig{}, &replayConsumer{}, target, nil)
	require.Error(t, err)
	_, err = NewKafkaSource("in", config.SourceConfig{Topic: "raw"}, nil, target, nil)
	require.Error(t, err)
}

func TestKafkaSource_DeliversToTarget(t *testing.T) {
	var got []string
	target := component.HandleFunc(func(_ context.Context, msg *models.EventMessage) error {
		got = append(got, msg.Content)
		return nil
	})
	consumer := &replayConsumer{msgs: []*models.EventMessage{message("a"), message("b")}}

	src, err := NewKafkaSource("in", config.SourceConfig{Topic: "raw"}, consumer, target, logger.NewTest(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()
	cancel()

	require.NoError(t, <-done)
	assert.Equal(t, "raw", consumer.topic)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestKafkaSource_ClassifiesTargetErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		fatal     bool
		retryable bool
	}{
		{"stopped target", component.ErrStopped, true, false},
		{"not ready", component.ErrNotReady, false, true},
		{"other", errors.New("queue full"), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := component.HandleFunc(func(context.Context, *models.EventMessage) error { return tt.err })
			src, err := NewKafkaSource("in", config.SourceConfig{Topic: "raw"}, &replayConsumer{}, target, nil)
			require.NoError(t, err)

			herr := src.handle(context.Background(), message("x"))
			require.ErrorIs(t, herr, tt.err)
			assert.Equal(t, tt.fatal, apperrors.IsFatal(herr))

			var appErr *apperrors.Error
			require.True(t, errors.As(herr, &appErr))
			assert.Equal(t, tt.retryable, appErr.IsRetryable())
		})
	}
}
