package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPut(t *testing.T) {
	c := New[string](time.Minute)

	_, ok := c.Get("t1", "k")
	assert.False(t, ok)

	c.Put("t1", "k", "value")
	got, ok := c.Get("t1", "k")
	require.True(t, ok)
	assert.Equal(t, "value", *got)

	// other tenants see nothing
	_, ok = c.Get("t2", "k")
	assert.False(t, ok)
}

func TestGetReturnsCopy(t *testing.T) {
	c := New[[]string](time.Minute)
	c.Put("t1", "k", []string{"a"})

	got, ok := c.Get("t1", "k")
	require.True(t, ok)
	*got = nil

	again, ok := c.Get("t1", "k")
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, *again)
}

func TestExpiry(t *testing.T) {
	c := New[int](time.Millisecond)
	c.Put("t1", "k", 42)

	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("t1", "k")
	assert.False(t, ok)
}

func TestDropSingleKey(t *testing.T) {
	c := New[int](time.Minute)
	c.Put("t1", "a", 1)
	c.Put("t1", "b", 2)

	c.Drop("t1", "a")
	_, ok := c.Get("t1", "a")
	assert.False(t, ok)
	got, ok := c.Get("t1", "b")
	require.True(t, ok)
	assert.Equal(t, 2, *got)
}

func TestDropWholeTenant(t *testing.T) {
	c := New[int](time.Minute)
	c.Put("t1", "a", 1)
	c.Put("t1", "b", 2)
	c.Put("t2", "a", 3)

	c.Drop("t1", "")
	_, ok := c.Get("t1", "a")
	assert.False(t, ok)
	_, ok = c.Get("t1", "b")
	assert.False(t, ok)

	got, ok := c.Get("t2", "a")
	require.True(t, ok)
	assert.Equal(t, 3, *got)
}

func TestNonPositiveTTLDefaults(t *testing.T) {
	c := New[int](0)
	c.Put("t1", "k", 7)
	got, ok := c.Get("t1", "k")
	require.True(t, ok)
	assert.Equal(t, 7, *got)
}
