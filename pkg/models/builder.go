package models

import (
	"time"

	"github.com/google/uuid"
)

type EventMessageBuilder struct {
	message *EventMessage
}

func NewEventMessageBuilder() *EventMessageBuilder {
	return &EventMessageBuilder{
		message: &EventMessage{
			Fields: make(map[string]string),
		},
	}
}

func (b *EventMessageBuilder) WithID(id string) *EventMessageBuilder {
	b.message.ID = id
	return b
}

func (b *EventMessageBuilder) WithSourceID(sourceID string) *EventMessageBuilder {
	b.message.SourceID = sourceID
	return b
}

func (b *EventMessageBuilder) WithCollectorID(collectorID string) *EventMessageBuilder {
	b.message.CollectorID = collectorID
	return b
}

func (b *EventMessageBuilder) WithTimestamp(timestamp time.Time) *EventMessageBuilder {
	b.message.Timestamp = timestamp
	return b
}

func (b *EventMessageBuilder) WithContent(content string) *EventMessageBuilder {
	b.message.Content = content
	return b
}

func (b *EventMessageBuilder) WithField(name, value string) *EventMessageBuilder {
	b.message.Fields[name] = value
	return b
}

func (b *EventMessageBuilder) WithTraceID(traceID string) *EventMessageBuilder {
	b.message.Metadata.TraceID = traceID
	return b
}

func (b *EventMessageBuilder) Build() *EventMessage {
	if b.message.ID == "" {
		b.message.ID = uuid.New().String()
	}
	if b.message.Timestamp.IsZero() {
		b.message.Timestamp = time.Now()
	}
	return b.message
}

// NewEventMessage builds a message after checking the identifiers every message must carry.
func NewEventMessage(sourceID, collectorID, content string) (*EventMessage, error) {
	msg := NewEventMessageBuilder().
		WithSourceID(sourceID).
		WithCollectorID(collectorID).
		WithContent(content).
		Build()

	if err := ValidateEventMessage(msg); err != nil {
		return nil, err
	}
	return msg, nil
}
