package models

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateEventMessage checks identifiers only. Blank content is left to the nodes.
func ValidateEventMessage(msg *EventMessage) error {
	if msg == nil {
		return &ValidationError{
			Field:   "message",
			Message: "event message cannot be nil",
		}
	}

	if strings.TrimSpace(msg.SourceID) == "" {
		return &ValidationError{
			Field:   "source_id",
			Message: "message source id is required",
		}
	}

	if strings.TrimSpace(msg.CollectorID) == "" {
		return &ValidationError{
			Field:   "collector_id",
			Message: "message collector id is required",
		}
	}

	if msg.Timestamp.IsZero() {
		return &ValidationError{
			Field:   "timestamp",
			Message: "message timestamp is required",
		}
	}

	return nil
}
