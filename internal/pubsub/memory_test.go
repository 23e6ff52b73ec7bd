package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusDelivers(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	var got []string
	_, err := bus.Subscribe("subject.a", func(data []byte) {
		got = append(got, string(data))
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "subject.a", []byte("one")))
	require.NoError(t, bus.Publish(context.Background(), "subject.b", []byte("wrong subject")))
	require.NoError(t, bus.Publish(context.Background(), "subject.a", []byte("two")))

	assert.Equal(t, []string{"one", "two"}, got)
}

func TestMemoryBusMultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	count := 0
	for i := 0; i < 3; i++ {
		_, err := bus.Subscribe("s", func(data []byte) { count++ })
		require.NoError(t, err)
	}

	require.NoError(t, bus.Publish(context.Background(), "s", []byte("x")))
	assert.Equal(t, 3, count)
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	count := 0
	unsub, err := bus.Subscribe("s", func(data []byte) { count++ })
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "s", nil))
	unsub()
	require.NoError(t, bus.Publish(context.Background(), "s", nil))

	assert.Equal(t, 1, count)
}

func TestMemoryBusCloseDropsSubscribers(t *testing.T) {
	bus := NewMemoryBus()

	count := 0
	_, err := bus.Subscribe("s", func(data []byte) { count++ })
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Publish(context.Background(), "s", nil))
	assert.Equal(t, 0, count)
}

func TestPublishInvalidation(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	var got []byte
	_, err := bus.Subscribe(SubjectRegistryInvalidate, func(data []byte) { got = data })
	require.NoError(t, err)

	inv := Invalidation{TenantID: "acme", Key: "status"}
	require.NoError(t, PublishInvalidation(context.Background(), bus, SubjectRegistryInvalidate, inv))
	assert.JSONEq(t, `{"tenantId":"acme","key":"status"}`, string(got))
}
