package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventMessage(t *testing.T) {
	tests := []struct {
		name        string
		sourceID    string
		collectorID string
		wantField   string
	}{
		{name: "valid", sourceID: "feed-1", collectorID: "ws-collector"},
		{name: "missing source", sourceID: "", collectorID: "ws-collector", wantField: "source_id"},
		{name: "blank collector", sourceID: "feed-1", collectorID: "   ", wantField: "collector_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewEventMessage(tt.sourceID, tt.collectorID, `{"a":1}`)
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.NotEmpty(t, msg.ID)
				assert.False(t, msg.Timestamp.IsZero())
				return
			}
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}
}

func TestNewEventMessage_AllowsBlankContent(t *testing.T) {
	msg, err := NewEventMessage("feed-1", "collector", "")
	require.NoError(t, err)
	assert.True(t, msg.IsContentBlank())
}

func TestAppendError_PreservesOrder(t *testing.T) {
	msg := NewEventMessageBuilder().WithSourceID("s").WithCollectorID("c").Build()

	msg.AppendError("first", "node-a", "process", "one")
	msg.AppendError("second", "node-b", "process", "two")

	require.Len(t, msg.ErrorStack, 2)
	assert.Equal(t, "first", msg.ErrorStack[0].Key)
	assert.Equal(t, "second", msg.ErrorStack[1].Key)

	last, ok := msg.LastError()
	require.True(t, ok)
	assert.Equal(t, "node-b", last.ReporterID)
}

func TestClone_IsIndependent(t *testing.T) {
	msg := NewEventMessageBuilder().
		WithSourceID("s").
		WithCollectorID("c").
		WithContent("hi").
		WithField("tenant", "acme").
		Build()
	msg.AppendError("k", "r", "l", "m")

	clone := msg.Clone()
	clone.ReplaceContent("changed")
	clone.SetField("tenant", "other")
	clone.AppendError("k2", "r", "l", "m")

	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, "acme", msg.Fields["tenant"])
	assert.Len(t, msg.ErrorStack, 1)
	assert.Len(t, clone.ErrorStack, 2)
}

func TestPipelineConfigCopy(t *testing.T) {
	cfg := PipelineConfig{
		PipelineID: "p",
		Elements: []ElementConfig{
			{ElementID: "a", NodeType: "log", Settings: map[string]string{"level": "info"}},
		},
	}

	cp := cfg.Copy()
	cp.Elements[0].Settings["level"] = "debug"

	assert.Equal(t, "info", cfg.Elements[0].Settings["level"])
	assert.Equal(t, 1, cfg.Elements[0].Instances())
}
