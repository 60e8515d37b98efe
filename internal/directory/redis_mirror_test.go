package directory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/component"
	"switchyard/internal/logger"
	"switchyard/internal/testinfra"
)

func TestRedisMirror_RegisterAndDeregister(t *testing.T) {
	client := testinfra.Redis(t)
	ctx := context.Background()

	mirror := NewRedisMirror(client, nil, RedisMirrorConfig{KeyPrefix: "test:directory", Node: "node-a", QueueSize: 16}, logger.NewTest(t))
	mirror.Start()
	t.Cleanup(mirror.Close)

	d := newDirectory(t, WithMirror(mirror))

	for _, id := range []string{"p1", "p2"} {
		res, err := d.Register(ctx, component.KindPipeline, id, nopHandle())
		require.NoError(t, err)
		require.Equal(t, RegisterOK, res)
	}

	require.Eventually(t, func() bool {
		entries, err := mirror.Entries(ctx, component.KindPipeline)
		return err == nil && len(entries) == 2
	}, 5*time.Second, 50*time.Millisecond)

	entries, err := mirror.Entries(ctx, component.KindPipeline)
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, "node-a", e.Node)
		assert.Equal(t, component.KindPipeline, e.Kind)
		assert.False(t, e.RegisteredAt.IsZero())
	}

	_, err = d.Deregister(ctx, component.KindPipeline, "p1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		entries, err := mirror.Entries(ctx, component.KindPipeline)
		return err == nil && len(entries) == 1 && entries[0].ID == "p2"
	}, 5*time.Second, 50*time.Millisecond)

	exists, err := client.Exists(ctx, "test:directory:PIPELINE:p1").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestRedisMirror_CloseFlushesQueue(t *testing.T) {
	client := testinfra.Redis(t)
	ctx := context.Background()

	mirror := NewRedisMirror(client, nil, RedisMirrorConfig{KeyPrefix: "flush", QueueSize: 8}, logger.NewTest(t))
	mirror.Start()

	mirror.Registered(component.KindDispatcher, "d1")
	mirror.Close()

	// updates after close are ignored
	mirror.Registered(component.KindDispatcher, "d2")

	entries, err := mirror.Entries(ctx, component.KindDispatcher)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "d1", entries[0].ID)
}
