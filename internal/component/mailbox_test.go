package component

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_RunsInPostOrder(t *testing.T) {
	m := NewMailbox()
	m.Start()
	defer m.Stop()

	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, m.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 100
	}, time.Second, 5*time.Millisecond)

	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestMailbox_PostAfterStop(t *testing.T) {
	m := NewMailbox()
	m.Start()

	ran := make(chan struct{})
	require.True(t, m.Post(func() { close(ran) }))
	m.Stop()

	assert.False(t, m.Post(func() { t.Error("closure ran after stop") }))
	<-ran

	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("mailbox did not exit")
	}
	assert.True(t, m.Stopped())
}

func TestMailbox_QueuedBeforeStartRuns(t *testing.T) {
	m := NewMailbox()
	ran := make(chan struct{})
	m.Post(func() { close(ran) })
	assert.Equal(t, 1, m.Len())

	m.Start()
	m.Start()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("queued closure never ran")
	}
	m.Stop()
}

func TestCall(t *testing.T) {
	m := NewMailbox()
	m.Start()

	v, err := Call(context.Background(), m, func() int { return 42 })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	m.Stop()
	<-m.Done()

	_, err = Call(context.Background(), m, func() int { return 1 })
	assert.ErrorIs(t, err, ErrStopped)
}

func TestCall_ContextDeadline(t *testing.T) {
	m := NewMailbox()
	m.Start()
	defer m.Stop()

	block := make(chan struct{})
	m.Post(func() { <-block })
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Call(ctx, m, func() int { return 1 })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"PIPELINE", KindPipeline, true},
		{"pipeline", KindPipeline, true},
		{"pipeline-supervisor", KindPipelineSupervisor, true},
		{" dispatcher ", KindDispatcher, true},
		{"router", Kind("ROUTER"), false},
		{"", Kind(""), false},
	}
	for _, tt := range tests {
		k, ok := ParseKind(tt.in)
		assert.Equal(t, tt.want, k, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}
