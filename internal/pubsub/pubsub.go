// Package pubsub provides the invalidation bus carrying admin-mutation
// notifications between nodes. The registry and catalog caches subscribe to
// drop stale per-tenant entries.
package pubsub

import (
	"context"
	"encoding/json"
)

// Subjects used on the bus.
const (
	SubjectRegistryInvalidate = "attrix.invalidate.registry"
	SubjectCatalogInvalidate  = "attrix.invalidate.catalog"
)

// Invalidation names the tenant-scoped entry to drop from caches.
type Invalidation struct {
	TenantID string `json:"tenantId"`
	// Key is the attribute key or classification id; empty drops the whole
	// tenant entry.
	Key string `json:"key,omitempty"`
}

// Handler consumes a message payload.
type Handler func(data []byte)

// Bus is the pub/sub contract. Delivery is at-most-once, best effort: a
// missed invalidation is bounded by the cache TTL.
type Bus interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(subject string, h Handler) (unsubscribe func(), err error)
	Close() error
}

// PublishInvalidation marshals and publishes an invalidation message.
func PublishInvalidation(ctx context.Context, bus Bus, subject string, inv Invalidation) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	return bus.Publish(ctx, subject, data)
}
