package models

import (
	"strings"
	"time"
)

type EventMessage struct {
	ID          string            `json:"id"`
	SourceID    string            `json:"source_id"`
	CollectorID string            `json:"collector_id"`
	Timestamp   time.Time         `json:"timestamp"`
	Content     string            `json:"content"`          // Opaque payload, rewritten in place by nodes
	Fields      map[string]string `json:"fields,omitempty"` // Structured custom attributes
	ErrorStack  []Error           `json:"error_stack,omitempty"`
	Metadata    Metadata          `json:"metadata"`
}

type Metadata struct {
	TraceID string `json:"trace_id,omitempty"`
}

// Error is one entry of the diagnostic trail carried by an EventMessage.
type Error struct {
	Key        string    `json:"key"`
	ReporterID string    `json:"reporter_id"`
	Location   string    `json:"location"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// AppendError records a diagnostic entry. Entries are never removed or reordered.
func (m *EventMessage) AppendError(key, reporterID, location, text string) {
	m.ErrorStack = append(m.ErrorStack, Error{
		Key:        key,
		ReporterID: reporterID,
		Location:   location,
		Message:    text,
		Timestamp:  time.Now(),
	})
}

func (m *EventMessage) ReplaceContent(content string) {
	m.Content = content
}

func (m *EventMessage) IsContentBlank() bool {
	return strings.TrimSpace(m.Content) == ""
}

func (m *EventMessage) HasErrors() bool {
	return len(m.ErrorStack) > 0
}

func (m *EventMessage) LastError() (Error, bool) {
	if len(m.ErrorStack) == 0 {
		return Error{}, false
	}
	return m.ErrorStack[len(m.ErrorStack)-1], true
}

func (m *EventMessage) GetField(name string) (string, bool) {
	if m.Fields == nil {
		return "", false
	}
	value, ok := m.Fields[name]
	return value, ok
}

func (m *EventMessage) SetField(name, value string) {
	if m.Fields == nil {
		m.Fields = make(map[string]string)
	}
	m.Fields[name] = value
}

// Clone returns a deep copy. Fan-out hands every extra destination its own copy.
func (m *EventMessage) Clone() *EventMessage {
	c := *m
	if m.Fields != nil {
		c.Fields = make(map[string]string, len(m.Fields))
		for k, v := range m.Fields {
			c.Fields[k] = v
		}
	}
	if m.ErrorStack != nil {
		c.ErrorStack = make([]Error, len(m.ErrorStack))
		copy(c.ErrorStack, m.ErrorStack)
	}
	return &c
}
