package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/node/sink"
)

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(sink.Deps{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"cel-transform",
		"discard",
		"forward",
		"kafka-sink",
		"log-sink",
		"mongodb-sink",
		"postgres-sink",
		"static-transform",
	}, reg.Types())

	assert.Error(t, Register(reg, sink.Deps{}), "registering twice collides")
}
