package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/config"
	"switchyard/internal/logger"
	"switchyard/pkg/models"
)

func TestDecodeMessage_StampsMissingIdentity(t *testing.T) {
	msg, err := decodeMessage([]byte(`{"source_id":"s1","collector_id":"c1","content":"hi","fields":{"k":"v"}}`))
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, "v", msg.Fields["k"])
}

func TestDecodeMessage_KeepsProducerIdentity(t *testing.T) {
	msg, err := decodeMessage([]byte(`{"id":"m-1","source_id":"s1","collector_id":"c1","timestamp":"2026-01-02T03:04:05Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "m-1", msg.ID)
	assert.Equal(t, 2026, msg.Timestamp.Year())
}

func TestDecodeMessage_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not json", `hello`},
		{"missing source", `{"collector_id":"c1"}`},
		{"missing collector", `{"source_id":"s1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeMessage([]byte(tt.value))
			require.Error(t, err)
		})
	}

	_, err := decodeMessage([]byte(`{"collector_id":"c1"}`))
	var vErr *models.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "source_id", vErr.Field)
}

func TestFactory_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(config.BrokerConfig{}, logger.NopLogger())
	require.Error(t, err)

	_, err = NewConsumer(config.BrokerConfig{}, config.SourceConfig{Topic: "t"}, logger.NopLogger())
	require.Error(t, err)
}

func TestNewConsumer_SourceGroupOverrides(t *testing.T) {
	cfg := config.BrokerConfig{Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}, GroupID: "shared"}}

	c, err := NewConsumer(cfg, config.SourceConfig{Topic: "t", GroupID: "mine"}, logger.NopLogger())
	require.NoError(t, err)
	assert.Equal(t, "mine", c.(*KafkaConsumer).cfg.GroupID)

	c, err = NewConsumer(cfg, config.SourceConfig{Topic: "t"}, logger.NopLogger())
	require.NoError(t, err)
	assert.Equal(t, "shared", c.(*KafkaConsumer).cfg.GroupID)
}
