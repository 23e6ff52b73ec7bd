// Package registry implements the per-tenant attribute catalog. Attribute
// definitions are read far more often than written, so reads go through a
// TTL cache invalidated on admin mutation, locally and over the bus.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"attrix/internal/cache"
	"attrix/internal/pubsub"
	"attrix/internal/storage"
	"attrix/pkg/model"
)

// Registry is the read surface the validator and index depend on.
type Registry interface {
	Get(ctx context.Context, tenant, key string) (*model.Attribute, error)
	List(ctx context.Context, tenant string) ([]model.Attribute, error)
}

// Admin extends Registry with mutations.
type Admin interface {
	Registry
	Register(ctx context.Context, tenant, key string, dataType model.DataType) (*model.Attribute, error)
	Delete(ctx context.Context, tenant, key string) error
}

// Config holds registry configuration.
type Config struct {
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{CacheTTL: time.Minute}
}

type service struct {
	store  storage.Store
	bus    pubsub.Bus
	cache  *cache.Tenant[model.Attribute]
	logger *slog.Logger
	clock  func() time.Time
}

// New creates the registry service. bus may be nil for single-node use.
func New(cfg Config, store storage.Store, bus pubsub.Bus, logger *slog.Logger) Admin {
	s := &service{
		store:  store,
		bus:    bus,
		cache:  cache.New[model.Attribute](cfg.CacheTTL),
		logger: logger.With("component", "registry"),
		clock:  time.Now,
	}
	if bus != nil {
		// Unsubscribe is tied to process lifetime.
		_, err := bus.Subscribe(pubsub.SubjectRegistryInvalidate, s.onInvalidate)
		if err != nil {
			s.logger.Warn("bus subscription failed, cache relies on TTL only", "error", err)
		}
	}
	return s
}

func partition(tenant string) string {
	return "tenant#" + tenant + "#attr"
}

func (s *service) Register(ctx context.Context, tenant, key string, dataType model.DataType) (*model.Attribute, error) {
	if !model.ValidAttributeKey(key) {
		return nil, model.Validation(key, "invalid attribute key '%s'", key).OrNil()
	}
	if !dataType.IsValid() {
		return nil, model.Validation(key, "invalid data type '%s'", dataType).OrNil()
	}

	if _, err := s.store.Get(ctx, storage.Key{Partition: partition(tenant), SortKey: key}); err == nil {
		return nil, fmt.Errorf("attribute '%s': %w", key, model.ErrExists)
	} else if !errors.Is(err, storage.ErrRowNotFound) {
		return nil, err
	}

	attr := model.Attribute{
		ID:        uuid.NewString(),
		TenantID:  tenant,
		Key:       key,
		DataType:  dataType,
		ValueType: dataType.ValueType(),
		CreatedAt: s.clock().UTC(),
	}
	value, err := json.Marshal(attr)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, storage.Row{Partition: partition(tenant), SortKey: key, Value: value}); err != nil {
		return nil, err
	}

	s.invalidate(ctx, tenant, key)
	s.logger.Info("attribute registered", "tenant", tenant, "key", key, "dataType", dataType)
	return &attr, nil
}

func (s *service) Get(ctx context.Context, tenant, key string) (*model.Attribute, error) {
	if attr, ok := s.cache.Get(tenant, key); ok {
		return attr, nil
	}

	row, err := s.store.Get(ctx, storage.Key{Partition: partition(tenant), SortKey: key})
	if err != nil {
		if errors.Is(err, storage.ErrRowNotFound) {
			return nil, fmt.Errorf("attribute '%s': %w", key, model.ErrNotFound)
		}
		return nil, err
	}

	var attr model.Attribute
	if err := json.Unmarshal(row.Value, &attr); err != nil {
		return nil, err
	}
	s.cache.Put(tenant, key, attr)
	return &attr, nil
}

func (s *service) List(ctx context.Context, tenant string) ([]model.Attribute, error) {
	rows, err := s.store.Scan(ctx, partition(tenant), storage.ScanOptions{})
	if err != nil {
		return nil, err
	}
	attrs := make([]model.Attribute, 0, len(rows))
	for _, row := range rows {
		var attr model.Attribute
		if err := json.Unmarshal(row.Value, &attr); err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

func (s *service) Delete(ctx context.Context, tenant, key string) error {
	if _, err := s.Get(ctx, tenant, key); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, storage.Key{Partition: partition(tenant), SortKey: key}); err != nil {
		return err
	}
	s.invalidate(ctx, tenant, key)
	s.logger.Info("attribute deleted", "tenant", tenant, "key", key)
	return nil
}

func (s *service) invalidate(ctx context.Context, tenant, key string) {
	s.cache.Drop(tenant, key)
	if s.bus == nil {
		return
	}
	err := pubsub.PublishInvalidation(ctx, s.bus, pubsub.SubjectRegistryInvalidate,
		pubsub.Invalidation{TenantID: tenant, Key: key})
	if err != nil {
		s.logger.Warn("invalidation publish failed", "tenant", tenant, "key", key, "error", err)
	}
}

func (s *service) onInvalidate(data []byte) {
	var inv pubsub.Invalidation
	if err := json.Unmarshal(data, &inv); err != nil {
		s.logger.Warn("bad invalidation message", "error", err)
		return
	}
	s.cache.Drop(inv.TenantID, inv.Key)
}
