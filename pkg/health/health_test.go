package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func probe(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func TestCheckerRegistry_Status(t *testing.T) {
	tests := []struct {
		name     string
		required error
		optional error
		want     Status
	}{
		{"all healthy", nil, nil, StatusHealthy},
		{"optional failing", nil, errors.New("mirror down"), StatusDegraded},
		{"required failing", errors.New("engine down"), nil, StatusUnhealthy},
		{"both failing", errors.New("engine down"), errors.New("mirror down"), StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCheckerRegistry()
			r.Register(NewFuncChecker("engine", time.Second, probe(tt.required)))
			r.RegisterOptional(NewFuncChecker("redis", time.Second, probe(tt.optional)))

			h := r.Check(context.Background())
			assert.Equal(t, tt.want, h.Status)
			assert.Len(t, h.Checks, 2)
		})
	}
}

func TestFuncChecker_AppliesTimeout(t *testing.T) {
	c := NewFuncChecker("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	err := c.Check(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "slow check failed")
}
