// Package core is the facade over the attribute platform: attribute
// registration, schema and classification administration, document
// validation with index maintenance, index queries and reindexing.
package core

import (
	"context"
	"log/slog"
	"time"

	"attrix/internal/catalog"
	"attrix/internal/docs"
	"attrix/internal/index"
	"attrix/internal/metrics"
	"attrix/internal/registry"
	"attrix/internal/reindex"
	"attrix/internal/storage"
	"attrix/internal/validator"
	"attrix/pkg/model"
)

// IndexRequest carries everything needed to validate and index a document.
type IndexRequest struct {
	DocumentID string `json:"documentId"`
	// Path places the document in the virtual folder hierarchy. A trailing
	// slash creates a directory without a file entry. Empty means the
	// document is not foldered.
	Path             string                    `json:"path,omitempty"`
	Tags             []model.Tag               `json:"tags,omitempty"`
	Attributes       []model.DocumentAttribute `json:"attributes,omitempty"`
	ClassificationID string                    `json:"classificationId,omitempty"`
	UserID           string                    `json:"userId,omitempty"`
}

// Service exposes the platform operations. All operations are tenant scoped.
type Service struct {
	store     storage.Store
	registry  registry.Admin
	catalog   catalog.Admin
	validator *validator.Validator
	docs      *docs.Store
	index     *index.Service
	reindex   *reindex.Service
	metrics   *metrics.Metrics
	logger    *slog.Logger
	clock     func() time.Time
}

// New wires the facade from its collaborators.
func New(store storage.Store, reg registry.Admin, cat catalog.Admin, v *validator.Validator,
	docStore *docs.Store, idx *index.Service, ri *reindex.Service, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		registry:  reg,
		catalog:   cat,
		validator: v,
		docs:      docStore,
		index:     idx,
		reindex:   ri,
		metrics:   m,
		logger:    logger.With("component", "core"),
		clock:     time.Now,
	}
}

// RegisterAttribute adds an attribute definition to the tenant's registry.
func (s *Service) RegisterAttribute(ctx context.Context, tenant, key string, dataType model.DataType) (*model.Attribute, error) {
	return s.registry.Register(ctx, tenant, key, dataType)
}

// GetAttribute looks up a registered attribute by key.
func (s *Service) GetAttribute(ctx context.Context, tenant, key string) (*model.Attribute, error) {
	return s.registry.Get(ctx, tenant, key)
}

// ListAttributes returns every attribute registered for the tenant.
func (s *Service) ListAttributes(ctx context.Context, tenant string) ([]model.Attribute, error) {
	return s.registry.List(ctx, tenant)
}

// DeleteAttribute removes a registered attribute. The attribute must not be
// referenced by the site schema, any classification, or any index row.
func (s *Service) DeleteAttribute(ctx context.Context, tenant, key string) error {
	used, err := s.catalog.UsesAttribute(ctx, tenant, key)
	if err != nil {
		return err
	}
	if !used {
		used, err = s.index.AttributeInUse(ctx, tenant, key)
		if err != nil {
			return err
		}
	}
	if used {
		return model.ErrAttributeInUse
	}
	return s.registry.Delete(ctx, tenant, key)
}

// SetSchema creates or replaces the tenant's site schema.
func (s *Service) SetSchema(ctx context.Context, tenant, name string, rules model.SchemaRules) error {
	return s.catalog.SetSchema(ctx, tenant, name, rules)
}

// GetSchema returns the tenant's site schema. Tenants without a stored
// schema get the permissive default.
func (s *Service) GetSchema(ctx context.Context, tenant string) (*model.Schema, error) {
	return s.catalog.SiteSchema(ctx, tenant)
}

// AddClassification creates a named classification for the tenant.
func (s *Service) AddClassification(ctx context.Context, tenant, name string, rules model.SchemaRules) (*model.Classification, error) {
	return s.catalog.AddClassification(ctx, tenant, name, rules)
}

// GetClassification looks up a classification by id.
func (s *Service) GetClassification(ctx context.Context, tenant, id string) (*model.Classification, error) {
	return s.catalog.Classification(ctx, tenant, id)
}

// UpdateClassification replaces a classification's name and rules.
func (s *Service) UpdateClassification(ctx context.Context, tenant, id, name string, rules model.SchemaRules) error {
	return s.catalog.UpdateClassification(ctx, tenant, id, name, rules)
}

// DeleteClassification removes a classification. Fails with
// ErrClassificationInUse while any document of the tenant declares it.
func (s *Service) DeleteClassification(ctx context.Context, tenant, id string) error {
	used, err := s.docs.UsingClassification(ctx, tenant, id)
	if err != nil {
		return err
	}
	if used {
		return model.ErrClassificationInUse
	}
	return s.catalog.DeleteClassification(ctx, tenant, id)
}

// ListClassifications returns every classification of the tenant.
func (s *Service) ListClassifications(ctx context.Context, tenant string) ([]model.Classification, error) {
	return s.catalog.ListClassifications(ctx, tenant)
}

// ValidateAndIndexDocument validates the document's attributes against the
// current rules, persists the normalized attribute set and rewrites the
// document's index rows. The attribute and index writes are applied as a
// single logical batch; folder entries emptied by a path change are pruned
// afterwards.
func (s *Service) ValidateAndIndexDocument(ctx context.Context, tenant string, req IndexRequest) ([]model.DocumentAttribute, error) {
	start := s.clock()
	if s.metrics != nil {
		s.metrics.Validations.Inc()
	}

	normalized, err := s.validator.Validate(ctx, tenant, req.Attributes, req.ClassificationID)
	if err != nil {
		if s.metrics != nil {
			if _, ok := model.AsValidation(err); ok {
				s.metrics.ValidationFailures.Inc()
			}
		}
		return nil, err
	}

	if err := s.stamp(ctx, tenant, req, normalized); err != nil {
		return nil, err
	}

	docMuts, err := s.docs.PlanReplace(ctx, tenant, req.DocumentID, normalized)
	if err != nil {
		return nil, err
	}
	idxMuts, priorPaths, err := s.index.PlanUpsert(ctx, tenant, req.DocumentID, req.Path, req.Tags, normalized)
	if err != nil {
		return nil, err
	}

	if err := s.store.Apply(ctx, append(docMuts, idxMuts...)); err != nil {
		return nil, model.WrapError(err)
	}

	if err := s.index.PruneFolders(ctx, tenant, priorPaths); err != nil {
		s.logger.Warn("folder prune failed", "tenant", tenant, "documentId", req.DocumentID, "error", err)
	}

	if s.metrics != nil {
		s.metrics.ValidateDuration.Observe(s.clock().Sub(start).Seconds())
	}
	s.logger.Info("document indexed", "tenant", tenant, "documentId", req.DocumentID,
		"attributes", len(normalized))
	return normalized, nil
}

// stamp fills DocumentID, UserID and InsertedDate on the normalized
// attributes. An attribute the document already stored keeps its original
// InsertedDate. A store failure while loading the stored set aborts the
// write: treating it as "no stored attributes" would reset every
// InsertedDate.
func (s *Service) stamp(ctx context.Context, tenant string, req IndexRequest, attrs []model.DocumentAttribute) error {
	existing, err := s.docs.Attributes(ctx, tenant, req.DocumentID)
	if err != nil {
		return model.WrapError(err)
	}
	inserted := make(map[string]time.Time, len(existing))
	for _, attr := range existing {
		inserted[attr.Key] = attr.InsertedDate
	}

	now := s.clock().UTC()
	for i := range attrs {
		attrs[i].DocumentID = req.DocumentID
		if attrs[i].UserID == "" {
			attrs[i].UserID = req.UserID
		}
		if prev, ok := inserted[attrs[i].Key]; ok && !prev.IsZero() {
			attrs[i].InsertedDate = prev
			continue
		}
		attrs[i].InsertedDate = now
	}
	return nil
}

// DocumentAttributes returns the stored, normalized attributes of a document.
func (s *Service) DocumentAttributes(ctx context.Context, tenant, docID string) ([]model.DocumentAttribute, error) {
	if err := s.docs.Require(ctx, tenant, docID); err != nil {
		return nil, err
	}
	return s.docs.Attributes(ctx, tenant, docID)
}

// Query evaluates criteria against the tenant's secondary index.
func (s *Service) Query(ctx context.Context, tenant string, q model.QueryCriteria) (model.SearchResult, error) {
	start := s.clock()
	result, err := s.index.Query(ctx, tenant, q)
	if err == nil && s.metrics != nil {
		s.metrics.QueryDuration.Observe(s.clock().Sub(start).Seconds())
	}
	return result, err
}

// DeleteIndexEntry removes a single index entry by key and family. Folder
// entries must have no children.
func (s *Service) DeleteIndexEntry(ctx context.Context, tenant, indexKey string, indexType model.IndexType) error {
	return s.index.DeleteEntry(ctx, tenant, indexKey, indexType)
}

// DeleteDocument removes the document's attributes and every index row
// written for it, then prunes folder entries the removal emptied.
func (s *Service) DeleteDocument(ctx context.Context, tenant, docID string) error {
	if err := s.docs.Require(ctx, tenant, docID); err != nil {
		return err
	}

	docMuts, err := s.docs.PlanDelete(ctx, tenant, docID)
	if err != nil {
		return err
	}
	idxMuts, paths, err := s.index.PlanDeleteDocument(ctx, tenant, docID)
	if err != nil {
		return err
	}

	if err := s.store.Apply(ctx, append(docMuts, idxMuts...)); err != nil {
		return model.WrapError(err)
	}
	if err := s.index.PruneFolders(ctx, tenant, paths); err != nil {
		s.logger.Warn("folder prune failed", "tenant", tenant, "documentId", docID, "error", err)
	}
	s.logger.Info("document deleted", "tenant", tenant, "documentId", docID)
	return nil
}

// Reindex re-derives a document's composite attributes under the current
// rules and reconciles its index rows.
func (s *Service) Reindex(ctx context.Context, tenant, docID string, target reindex.Target) error {
	return s.reindex.Reindex(ctx, tenant, docID, target)
}
