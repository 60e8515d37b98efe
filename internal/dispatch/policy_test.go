package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "switchyard/pkg/errors"
	"switchyard/pkg/models"
)

func selectIDs(t *testing.T, p Policy, msg *models.EventMessage) []string {
	t.Helper()
	ids, err := p.Select(context.Background(), msg)
	require.NoError(t, err)
	return ids
}

func TestPolicyRegistry_BuiltinTypes(t *testing.T) {
	assert.Equal(t, []string{PolicyBroadcast, PolicyCEL, PolicyField, PolicyRoundRobin}, NewPolicyRegistry().Types())
}

func TestPolicyRegistry_Register(t *testing.T) {
	reg := NewPolicyRegistry()
	always := func(PolicyConfig) (Policy, error) {
		return PolicyFunc(func(context.Context, *models.EventMessage) ([]string, error) { return []string{"x"}, nil }), nil
	}
	require.NoError(t, reg.Register("always", always))
	assert.True(t, apperrors.HasCode(reg.Register("always", always), apperrors.ErrDuplicate.Code))

	p, err := reg.Create(PolicyConfig{Type: "always"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, selectIDs(t, p, message("m")))
}

func TestPolicyRegistry_RejectsBadConfig(t *testing.T) {
	reg := NewPolicyRegistry()

	_, err := reg.Create(PolicyConfig{Type: "sticky"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrUnknownType.Code))

	for _, cfg := range []PolicyConfig{
		{Type: PolicyBroadcast},
		{Type: PolicyRoundRobin, Settings: map[string]string{"destinations": " , "}},
		{Type: PolicyField},
		{Type: PolicyCEL},
		{Type: PolicyCEL, Settings: map[string]string{"expression": "1 + 1"}},
	} {
		_, err := reg.Create(cfg)
		assert.Error(t, err, cfg.Type)
	}
}

func TestBroadcastPolicy(t *testing.T) {
	p, err := NewPolicyRegistry().Create(PolicyConfig{Type: PolicyBroadcast, Settings: map[string]string{"destinations": "a, b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, selectIDs(t, p, message("m")))
}

func TestRoundRobinPolicy(t *testing.T) {
	p, err := NewPolicyRegistry().Create(PolicyConfig{Type: PolicyRoundRobin, Settings: map[string]string{"destinations": "a,b,c"}})
	require.NoError(t, err)

	var got []string
	for i := 0; i < 4; i++ {
		got = append(got, selectIDs(t, p, message("m"))...)
	}
	assert.Equal(t, []string{"a", "b", "c", "a"}, got)
}

func TestFieldPolicy(t *testing.T) {
	p, err := NewPolicyRegistry().Create(PolicyConfig{Type: PolicyField, Settings: map[string]string{
		"field":   "route",
		"default": "fallback",
	}})
	require.NoError(t, err)

	routed := message("m")
	routed.SetField("route", "orders,audit")
	assert.Equal(t, []string{"orders", "audit"}, selectIDs(t, p, routed))
	assert.Equal(t, []string{"fallback"}, selectIDs(t, p, message("m")))
}

func TestCELPolicy(t *testing.T) {
	p, err := NewPolicyRegistry().Create(PolicyConfig{Type: PolicyCEL, Settings: map[string]string{
		"expression": `content.startsWith("ERR") ? ["alerts", "archive"] : ["archive"]`,
	}})
	require.NoError(t, err)

	assert.Equal(t, []string{"alerts", "archive"}, selectIDs(t, p, message("ERR disk full")))
	assert.Equal(t, []string{"archive"}, selectIDs(t, p, message("ok")))
}
