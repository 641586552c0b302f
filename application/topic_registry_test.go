package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicRegistry_RegisterReplaces(t *testing.T) {
	registry := NewTopicRegistry()

	var got []string
	require.NoError(t, registry.Register("Devices/0", func(topic string, payload string) {
		got = append(got, "first:"+payload)
	}))
	require.NoError(t, registry.Register("Devices/0", func(topic string, payload string) {
		got = append(got, "second:"+payload)
	}))

	handler, ok := registry.Resolve("Devices/0")
	require.True(t, ok)
	handler("Devices/0", "online")

	assert.Equal(t, []string{"second:online"}, got)
	assert.Equal(t, 1, registry.Len())
}

func TestTopicRegistry_Resolve_Unknown(t *testing.T) {
	registry := NewTopicRegistry()

	handler, ok := registry.Resolve("Devices/0")
	assert.False(t, ok)
	assert.Nil(t, handler)
}

func TestTopicRegistry_Topics(t *testing.T) {
	registry := NewTopicRegistry()
	noop := func(topic string, payload string) {}

	for _, topic := range []string{"Devices/0", "Devices/1", "my/test/topic1"} {
		require.NoError(t, registry.Register(topic, noop))
	}

	assert.ElementsMatch(t, []string{"Devices/0", "Devices/1", "my/test/topic1"}, registry.Topics())
}

func TestTopicRegistry_Register_Invalid(t *testing.T) {
	registry := NewTopicRegistry()

	err := registry.Register("", func(topic string, payload string) {})
	assert.Equal(t, ErrInvalidTopic, err)

	err = registry.Register("Devices/0", nil)
	assert.Error(t, err)

	assert.Equal(t, 0, registry.Len())
}
