// Package catalog implements the site schema and the classification store.
// Both hold SchemaRules; the site schema always applies to a tenant's
// documents while classifications are opted into per document. Rule sets are
// validated against the attribute registry before they are accepted.
package catalog

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
	"attrix/internal/registry"
	"attrix/internal/storage"
	"attrix/pkg/model"
)

// Catalog is the read surface the validator depends on.
type Catalog interface {
	SiteSchema(ctx context.Context, tenant string) (*model.Schema, error)
	Classification(ctx context.Context, tenant, id string) (*model.Classification, error)
}

// Admin extends Catalog with mutations.
type Admin interface {
	Catalog
	SetSchema(ctx context.Context, tenant, name string, rules model.SchemaRules) error
	AddClassification(ctx context.Context, tenant, name string, rules model.SchemaRules) (*model.Classification, error)
	UpdateClassification(ctx context.Context, tenant, id, name string, rules model.SchemaRules) error
	DeleteClassification(ctx context.Context, tenant, id string) error
	ListClassifications(ctx context.Context, tenant string) ([]model.Classification, error)
	// UsesAttribute reports whether any rule set references the attribute key.
	UsesAttribute(ctx context.Context, tenant, key string) (bool, error)
}

// Config holds catalog configuration.
type Config struct {
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// DefaultConfig returns the default catalog configuration.
func DefaultConfig() Config {
	return Config{CacheTTL: time.Minute}
}

const (
	sortKeySite       = "site"
	sortKeyIDPrefix   = "id#"
	sortKeyNamePrefix = "name#"
	schemaCacheKey    = "site"
)

type service struct {
	store    storage.Store
	bus      pubsub.Bus
	registry registry.Registry
	schemas  *cache.Tenant[model.Schema]
	classes  *cache.Tenant[model.Classification]
	logger   *slog.Logger
	clock    func() time.Time
}

// New creates the catalog service. bus may be nil for single-node use.
func New(cfg Config, store storage.Store, reg registry.Registry, bus pubsub.Bus, logger *slog.Logger) Admin {
	s := &service{
		store:    store,
		bus:      bus,
		registry: reg,
		schemas:  cache.New[model.Schema](cfg.CacheTTL),
		classes:  cache.New[model.Classification](cfg.CacheTTL),
		logger:   logger.With("component", "catalog"),
		clock:    time.Now,
	}
	if bus != nil {
		_, err := bus.Subscribe(pubsub.SubjectCatalogInvalidate, s.onInvalidate)
		if err != nil {
			s.logger.Warn("bus subscription failed, cache relies on TTL only", "error", err)
		}
	}
	return s
}

func schemaPartition(tenant string) string { return "tenant#" + tenant + "#schema" }
func classPartition(tenant string) string  { return "tenant#" + tenant + "#class" }

// validateRules checks rules against the registry, collecting every
// violation.
func (s *service) validateRules(ctx context.Context, tenant string, rules model.SchemaRules) error {
	var lookupErr error
	verr := rules.Validate(func(key string) *model.Attribute {
		attr, err := s.registry.Get(ctx, tenant, key)
		if err != nil {
			if !errors.Is(err, model.ErrNotFound) {
				lookupErr = err
			}
			return nil
		}
		return attr
	})
	if lookupErr != nil {
		return lookupErr
	}
	return verr.OrNil()
}

func (s *service) SetSchema(ctx context.Context, tenant, name string, rules model.SchemaRules) error {
	if err := s.validateRules(ctx, tenant, rules); err != nil {
		return err
	}

	schema := model.Schema{
		TenantID:  tenant,
		Name:      name,
		Rules:     rules,
		UpdatedAt: s.clock().UTC(),
	}
	value, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, storage.Row{Partition: schemaPartition(tenant), SortKey: sortKeySite, Value: value}); err != nil {
		return err
	}

	s.invalidate(ctx, tenant, schemaCacheKey)
	s.logger.Info("site schema set", "tenant", tenant, "name", name)
	return nil
}

func (s *service) SiteSchema(ctx context.Context, tenant string) (*model.Schema, error) {
	if schema, ok := s.schemas.Get(tenant, schemaCacheKey); ok {
		return schema, nil
	}

	row, err := s.store.Get(ctx, storage.Key{Partition: schemaPartition(tenant), SortKey: sortKeySite})
	if err != nil {
		if errors.Is(err, storage.ErrRowNotFound) {
			// No site schema configured: everything is additional.
			return &model.Schema{TenantID: tenant, Rules: model.SchemaRules{AllowAdditionalAttributes: true}}, nil
		}
		return nil, err
	}

	var schema model.Schema
	if err := json.Unmarshal(row.Value, &schema); err != nil {
		return nil, err
	}
	s.schemas.Put(tenant, schemaCacheKey, schema)
	return &schema, nil
}

func (s *service) AddClassification(ctx context.Context, tenant, name string, rules model.SchemaRules) (*model.Classification, error) {
	if name == "" {
		return nil, model.Validation("name", "classification name is required").OrNil()
	}
	if err := s.validateRules(ctx, tenant, rules); err != nil {
		return nil, err
	}

	nameKey := storage.Key{Partition: classPartition(tenant), SortKey: sortKeyNamePrefix + name}
	if _, err := s.store.Get(ctx, nameKey); err == nil {
		return nil, fmt.Errorf("classification '%s': %w", name, model.ErrExists)
	} else if !errors.Is(err, storage.ErrRowNotFound) {
		return nil, err
	}

	now := s.clock().UTC()
	class := model.Classification{
		ID:        uuid.NewString(),
		TenantID:  tenant,
		Name:      name,
		Rules:     rules,
		CreatedAt: now,
		UpdatedAt: now,
	}
	value, err := json.Marshal(class)
	if err != nil {
		return nil, err
	}

	err = s.store.Apply(ctx, []storage.Mutation{
		{Put: &storage.Row{Partition: classPartition(tenant), SortKey: sortKeyIDPrefix + class.ID, Value: value}},
		{Put: &storage.Row{Partition: nameKey.Partition, SortKey: nameKey.SortKey, Value: []byte(class.ID)}},
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, tenant, class.ID)
	s.logger.Info("classification added", "tenant", tenant, "name", name, "id", class.ID)
	return &class, nil
}

func (s *service) Classification(ctx context.Context, tenant, id string) (*model.Classification, error) {
	if class, ok := s.classes.Get(tenant, id); ok {
		return class, nil
	}

	row, err := s.store.Get(ctx, storage.Key{Partition: classPartition(tenant), SortKey: sortKeyIDPrefix + id})
	if err != nil {
		if errors.Is(err, storage.ErrRowNotFound) {
			return nil, fmt.Errorf("classification '%s': %w", id, model.ErrNotFound)
		}
		return nil, err
	}

	var class model.Classification
	if err := json.Unmarshal(row.Value, &class); err != nil {
		return nil, err
	}
	s.classes.Put(tenant, id, class)
	return &class, nil
}

func (s *service) UpdateClassification(ctx context.Context, tenant, id, name string, rules model.SchemaRules) error {
	current, err := s.Classification(ctx, tenant, id)
	if err != nil {
		return err
	}
	if err := s.validateRules(ctx, tenant, rules); err != nil {
		return err
	}

	muts := make([]storage.Mutation, 0, 3)
	if name != "" && name != current.Name {
		nameKey := storage.Key{Partition: classPartition(tenant), SortKey: sortKeyNamePrefix + name}
		if _, err := s.store.Get(ctx, nameKey); err == nil {
			return fmt.Errorf("classification '%s': %w", name, model.ErrExists)
		} else if !errors.Is(err, storage.ErrRowNotFound) {
			return err
		}
		muts = append(muts,
			storage.Mutation{Delete: &storage.Key{Partition: classPartition(tenant), SortKey: sortKeyNamePrefix + current.Name}},
			storage.Mutation{Put: &storage.Row{Partition: nameKey.Partition, SortKey: nameKey.SortKey, Value: []byte(id)}},
		)
		current.Name = name
	}

	current.Rules = rules
	current.UpdatedAt = s.clock().UTC()
	value, err := json.Marshal(current)
	if err != nil {
		return err
	}
	muts = append(muts, storage.Mutation{Put: &storage.Row{
		Partition: classPartition(tenant), SortKey: sortKeyIDPrefix + id, Value: value,
	}})

	if err := s.store.Apply(ctx, muts); err != nil {
		return err
	}
	s.invalidate(ctx, tenant, id)
	s.logger.Info("classification updated", "tenant", tenant, "id", id)
	return nil
}

func (s *service) DeleteClassification(ctx context.Context, tenant, id string) error {
	class, err := s.Classification(ctx, tenant, id)
	if err != nil {
		return err
	}

	err = s.store.Apply(ctx, []storage.Mutation{
		{Delete: &storage.Key{Partition: classPartition(tenant), SortKey: sortKeyIDPrefix + id}},
		{Delete: &storage.Key{Partition: classPartition(tenant), SortKey: sortKeyNamePrefix + class.Name}},
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, tenant, id)
	s.logger.Info("classification deleted", "tenant", tenant, "id", id)
	return nil
}

func (s *service) ListClassifications(ctx context.Context, tenant string) ([]model.Classification, error) {
	rows, err := s.store.Scan(ctx, classPartition(tenant), storage.ScanOptions{Prefix: sortKeyIDPrefix})
	if err != nil {
		return nil, err
	}
	classes := make([]model.Classification, 0, len(rows))
	for _, row := range rows {
		var class model.Classification
		if err := json.Unmarshal(row.Value, &class); err != nil {
			return nil, err
		}
		classes = append(classes, class)
	}
	return classes, nil
}

func (s *service) UsesAttribute(ctx context.Context, tenant, key string) (bool, error) {
	schema, err := s.SiteSchema(ctx, tenant)
	if err != nil {
		return false, err
	}
	if rulesUseKey(schema.Rules, key) {
		return true, nil
	}

	classes, err := s.ListClassifications(ctx, tenant)
	if err != nil {
		return false, err
	}
	for _, class := range classes {
		if rulesUseKey(class.Rules, key) {
			return true, nil
		}
	}
	return false, nil
}

func rulesUseKey(rules model.SchemaRules, key string) bool {
	if rules.Lists(key) {
		return true
	}
	for _, ck := range rules.CompositeKeys {
		for _, k := range ck.AttributeKeys {
			if k == key {
				return true
			}
		}
	}
	return false
}

func (s *service) invalidate(ctx context.Context, tenant, key string) {
	if key == schemaCacheKey {
		s.schemas.Drop(tenant, key)
	} else {
		s.classes.Drop(tenant, key)
	}
	if s.bus == nil {
		return
	}
	err := pubsub.PublishInvalidation(ctx, s.bus, pubsub.SubjectCatalogInvalidate,
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
	if inv.Key == schemaCacheKey || inv.Key == "" {
		s.schemas.Drop(inv.TenantID, "")
	}
	s.classes.Drop(inv.TenantID, inv.Key)
}
