package registry

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attrix/internal/pubsub"
	"attrix/internal/storage/memory"
	"attrix/pkg/model"
)

func newTestRegistry(t *testing.T) Admin {
	t.Helper()
	return New(DefaultConfig(), memory.New(), nil, slog.Default())
}

func TestRegisterAndGet(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	attr, err := reg.Register(ctx, "acme", "department", model.DataTypeString)
	require.NoError(t, err)
	assert.NotEmpty(t, attr.ID)
	assert.Equal(t, "acme", attr.TenantID)
	assert.Equal(t, "department", attr.Key)
	assert.Equal(t, model.DataTypeString, attr.DataType)
	assert.Equal(t, model.ValueTypeString, attr.ValueType)
	assert.False(t, attr.CreatedAt.IsZero())

	got, err := reg.Get(ctx, "acme", "department")
	require.NoError(t, err)
	assert.Equal(t, attr.ID, got.ID)
}

func TestRegisterInvalidKey(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Register(context.Background(), "acme", "has spaces", model.DataTypeString)
	verr, ok := model.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "invalid attribute key 'has spaces'", verr[0].Message)
}

func TestRegisterInvalidDataType(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Register(context.Background(), "acme", "department", model.DataType("BLOB"))
	_, ok := model.AsValidation(err)
	assert.True(t, ok)
}

func TestRegisterDuplicate(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	_, err := reg.Register(ctx, "acme", "department", model.DataTypeString)
	require.NoError(t, err)

	_, err = reg.Register(ctx, "acme", "department", model.DataTypeNumber)
	assert.ErrorIs(t, err, model.ErrExists)

	// the same key is free in another tenant
	_, err = reg.Register(ctx, "globex", "department", model.DataTypeString)
	assert.NoError(t, err)
}

func TestGetNotFound(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Get(context.Background(), "acme", "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	_, err := reg.Register(ctx, "acme", "b", model.DataTypeString)
	require.NoError(t, err)
	_, err = reg.Register(ctx, "acme", "a", model.DataTypeKeyOnly)
	require.NoError(t, err)
	_, err = reg.Register(ctx, "globex", "c", model.DataTypeString)
	require.NoError(t, err)

	attrs, err := reg.List(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, attrs, 2)
	assert.Equal(t, "a", attrs[0].Key)
	assert.Equal(t, "b", attrs[1].Key)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	_, err := reg.Register(ctx, "acme", "department", model.DataTypeString)
	require.NoError(t, err)

	require.NoError(t, reg.Delete(ctx, "acme", "department"))
	_, err = reg.Get(ctx, "acme", "department")
	assert.ErrorIs(t, err, model.ErrNotFound)

	assert.ErrorIs(t, reg.Delete(ctx, "acme", "department"), model.ErrNotFound)
}

func TestBusInvalidationDropsCache(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	bus := pubsub.NewMemoryBus()
	defer bus.Close()

	// two nodes sharing a store and a bus
	node1 := New(Config{CacheTTL: time.Hour}, store, bus, slog.Default())
	node2 := New(Config{CacheTTL: time.Hour}, store, bus, slog.Default())

	_, err := node1.Register(ctx, "acme", "department", model.DataTypeString)
	require.NoError(t, err)

	// warm node2's cache
	_, err = node2.Get(ctx, "acme", "department")
	require.NoError(t, err)

	// deleting on node1 publishes an invalidation that node2 applies
	require.NoError(t, node1.Delete(ctx, "acme", "department"))
	_, err = node2.Get(ctx, "acme", "department")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
