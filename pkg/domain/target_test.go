package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTarget_YAML(t *testing.T) {
	var route TransitionRoute
	require.NoError(t, yaml.Unmarshal([]byte("intent: buy\ntarget: {page: checkout}\n"), &route))
	assert.True(t, route.Target.IsPage())
	assert.Equal(t, "checkout", route.Target.ID())

	var end EventHandler
	require.NoError(t, yaml.Unmarshal([]byte("event: bye\ntarget: {flow: \"\"}\n"), &end))
	assert.True(t, end.Target.IsFlow())
	assert.True(t, end.Target.EndsSession())

	var stay TransitionRoute
	require.NoError(t, yaml.Unmarshal([]byte("condition: \"true\"\n"), &stay))
	assert.True(t, stay.Target.IsZero())
}

func TestTarget_RejectsBoth(t *testing.T) {
	var route TransitionRoute
	err := yaml.Unmarshal([]byte("intent: buy\ntarget: {page: a, flow: b}\n"), &route)
	assert.ErrorIs(t, err, ErrInvalidTarget)

	err = json.Unmarshal([]byte(`{"intent":"buy","target":{"page":"a","flow":"b"}}`), &route)
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestTarget_JSONRoundTrip(t *testing.T) {
	in := TransitionRoute{Intent: "buy", Target: FlowTarget("payments")}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"intent":"buy","target":{"flow":"payments"}}`, string(data))

	var out TransitionRoute
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)

	data, err = json.Marshal(TransitionRoute{Condition: "true"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"condition":"true"}`, string(data))
}
