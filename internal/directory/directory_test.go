package directory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/component"
	"switchyard/internal/logger"
	apperrors "switchyard/pkg/errors"
	"switchyard/pkg/models"
)

func nopHandle() component.Handle {
	return component.HandleFunc(func(context.Context, *models.EventMessage) error { return nil })
}

func newDirectory(t *testing.T, opts ...Option) *Directory {
	t.Helper()
	d := New(logger.NewTest(t), opts...)
	t.Cleanup(d.Stop)
	return d
}

func TestRegister_Validation(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		kind   component.Kind
		id     string
		handle component.Handle
		want   RegisterResult
	}{
		{name: "ok", kind: component.KindPipeline, id: "p1", handle: nopHandle(), want: RegisterOK},
		{name: "missing id", kind: component.KindPipeline, id: " ", handle: nopHandle(), want: RegisterMissingID},
		{name: "missing kind", kind: "", id: "p2", handle: nopHandle(), want: RegisterMissingKind},
		{name: "unknown kind", kind: component.Kind("BOGUS"), id: "p2", handle: nopHandle(), want: RegisterMissingKind},
		{name: "missing handle", kind: component.KindPipeline, id: "p3", want: RegisterMissingHandle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Register(ctx, tt.kind, tt.id, tt.handle)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegister_DuplicateKeepsOriginal(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	first := nopHandle()
	got, err := d.Register(ctx, component.KindPipeline, "p1", first)
	require.NoError(t, err)
	require.Equal(t, RegisterOK, got)

	got, err = d.Register(ctx, component.KindPipeline, "p1", nopHandle())
	require.NoError(t, err)
	assert.Equal(t, RegisterDuplicateID, got)

	found, err := d.Lookup(ctx, component.KindPipeline, []string{"p1"})
	require.NoError(t, err)
	assert.Len(t, found, 1)

	// same id under another kind is a different entry
	got, err = d.Register(ctx, component.KindDispatcher, "p1", nopHandle())
	require.NoError(t, err)
	assert.Equal(t, RegisterOK, got)
}

func TestRegister_ConcurrentSameIDExactlyOneWins(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := d.Register(ctx, component.KindPipeline, "contended", nopHandle())
			assert.NoError(t, err)
			if got == RegisterOK {
				mu.Lock()
				oks++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, oks)
}

func TestDeregister_Idempotent(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	_, err := d.Register(ctx, component.KindPipeline, "p1", nopHandle())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		got, err := d.Deregister(ctx, component.KindPipeline, "p1")
		require.NoError(t, err)
		assert.Equal(t, DeregisterOK, got)
	}

	got, err := d.Deregister(ctx, component.KindPipeline, "never-registered")
	require.NoError(t, err)
	assert.Equal(t, DeregisterOK, got)

	got, err = d.Deregister(ctx, component.Kind("BOGUS"), "p1")
	require.NoError(t, err)
	assert.Equal(t, DeregisterMissingKind, got)

	got, err = d.Deregister(ctx, component.KindPipeline, "")
	require.NoError(t, err)
	assert.Equal(t, DeregisterMissingID, got)

	got, err = d.Deregister(ctx, "", "p1")
	require.NoError(t, err)
	assert.Equal(t, DeregisterMissingKind, got)

	found, err := d.Lookup(ctx, component.KindPipeline, []string{"p1"})
	require.NoError(t, err)
	assert.Empty(t, found)

	// the id is free again
	res, err := d.Register(ctx, component.KindPipeline, "p1", nopHandle())
	require.NoError(t, err)
	assert.Equal(t, RegisterOK, res)
}

func TestLookup_PartialBatch(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		_, err := d.Register(ctx, component.KindPipeline, id, nopHandle())
		require.NoError(t, err)
	}

	found, err := d.Lookup(ctx, component.KindPipeline, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, found, 2)
	assert.Contains(t, found, "a")
	assert.Contains(t, found, "b")
	assert.NotContains(t, found, "c")

	found, err = d.Lookup(ctx, component.KindPipeline, nil)
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = d.Lookup(ctx, component.KindDispatcher, []string{"a"})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestLookupAsync(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	_, err := d.Register(ctx, component.KindPipeline, "a", nopHandle())
	require.NoError(t, err)

	reply := make(chan map[string]component.Handle, 1)
	require.NoError(t, d.LookupAsync(component.KindPipeline, []string{"a", "z"}, func(found map[string]component.Handle) {
		reply <- found
	}))

	select {
	case found := <-reply:
		assert.Len(t, found, 1)
		assert.Contains(t, found, "a")
	case <-time.After(time.Second):
		t.Fatal("no lookup reply")
	}
}

func TestStopped(t *testing.T) {
	d := New(logger.NopLogger())
	d.Stop()
	<-d.Done()

	_, err := d.Register(context.Background(), component.KindPipeline, "p", nopHandle())
	assert.ErrorIs(t, err, component.ErrStopped)

	err = d.LookupAsync(component.KindPipeline, []string{"p"}, func(map[string]component.Handle) {})
	assert.ErrorIs(t, err, component.ErrStopped)
}

func TestIDs(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	for _, id := range []string{"x", "y"} {
		_, err := d.Register(ctx, component.KindDispatcher, id, nopHandle())
		require.NoError(t, err)
	}

	ids, err := d.IDs(ctx, component.KindDispatcher)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "y"}, ids)
}

type recordingMirror struct {
	mu      sync.Mutex
	changes []string
}

func (m *recordingMirror) Registered(kind component.Kind, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, "+"+string(kind)+":"+id)
}

func (m *recordingMirror) Deregistered(kind component.Kind, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, "-"+string(kind)+":"+id)
}

func TestMirrorReceivesEffectiveChangesOnly(t *testing.T) {
	mirror := &recordingMirror{}
	d := newDirectory(t, WithMirror(mirror))
	ctx := context.Background()

	_, _ = d.Register(ctx, component.KindPipeline, "p1", nopHandle())
	_, _ = d.Register(ctx, component.KindPipeline, "p1", nopHandle())
	_, _ = d.Deregister(ctx, component.KindPipeline, "p1")
	_, _ = d.Deregister(ctx, component.KindPipeline, "p1")

	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	assert.Equal(t, []string{"+PIPELINE:p1", "-PIPELINE:p1"}, mirror.changes)
}

func TestResultErr(t *testing.T) {
	assert.NoError(t, RegisterOK.Err())
	assert.True(t, apperrors.HasCode(RegisterDuplicateID.Err(), "DUPLICATE_ID"))
	assert.Equal(t, 409, apperrors.ToHTTPStatus(RegisterDuplicateID.Err()))
	assert.Equal(t, 400, apperrors.ToHTTPStatus(RegisterMissingID.Err()))
	assert.NoError(t, DeregisterOK.Err())
	assert.Equal(t, 400, apperrors.ToHTTPStatus(DeregisterMissingKind.Err()))
}
