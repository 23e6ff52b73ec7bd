// Package reindex recomputes a document's derived attributes after schema
// or classification rules change. It re-runs validation against the current
// rules, diffs the derived composite-key set against what is stored, and
// reconciles the secondary index without touching attributes the current
// rules do not derive.
package reindex

import (
	"context"
	"log/slog"
	"time"

	"attrix/internal/docs"
	"attrix/internal/index"
	"attrix/internal/metrics"
	"attrix/internal/storage"
	"attrix/internal/validator"
	"attrix/pkg/model"
)

// Target selects which derived state a reindex run recomputes.
type Target string

// TargetAttributes recomputes composite-key attributes and their index rows.
const TargetAttributes Target = "attributes"

// State tracks a reindex run. Done is the only terminal state; a validation
// failure aborts before IndexReconciled so no partial reconciliation is
// ever visible.
type State string

const (
	StateStarted         State = "STARTED"
	StateValidated       State = "VALIDATED"
	StateIndexReconciled State = "INDEX_RECONCILED"
	StateDone            State = "DONE"
)

// Service reconciles documents against the current rules.
type Service struct {
	store     storage.Store
	docs      *docs.Store
	validator *validator.Validator
	index     *index.Service
	metrics   *metrics.Metrics
	logger    *slog.Logger
	clock     func() time.Time
}

// New creates the reindex service.
func New(store storage.Store, docStore *docs.Store, v *validator.Validator, idx *index.Service, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		docs:      docStore,
		validator: v,
		index:     idx,
		metrics:   m,
		logger:    logger.With("component", "reindex"),
		clock:     time.Now,
	}
}

// Reindex re-derives the document's composite-key attributes under the
// current schema and classification and applies the resulting index delta
// as a single logical batch. Raw attributes keep their stored values; only
// newly required attributes with defaults are injected, and only when the
// document has no value for them.
func (s *Service) Reindex(ctx context.Context, tenant, docID string, target Target) error {
	if target != TargetAttributes {
		return model.Validation("target", "unknown reindex target '%s'", target).OrNil()
	}

	state := StateStarted
	s.logger.Info("reindex started", "tenant", tenant, "documentId", docID, "target", target)

	err := s.run(ctx, tenant, docID, &state)
	outcome := "done"
	if err != nil {
		outcome = "failed"
	}
	if s.metrics != nil {
		s.metrics.ReindexRuns.WithLabelValues(outcome).Inc()
	}
	if err != nil {
		s.logger.Warn("reindex aborted", "tenant", tenant, "documentId", docID, "state", state, "error", err)
		return err
	}

	state = StateDone
	s.logger.Info("reindex done", "tenant", tenant, "documentId", docID)
	return nil
}

func (s *Service) run(ctx context.Context, tenant, docID string, state *State) error {
	if err := s.docs.Require(ctx, tenant, docID); err != nil {
		return err
	}

	stored, err := s.docs.Attributes(ctx, tenant, docID)
	if err != nil {
		return err
	}

	// Split stored attributes into raw values and previously derived state.
	var raw []model.DocumentAttribute
	oldComposites := make(map[string]model.DocumentAttribute)
	classificationID := ""
	for _, attr := range stored {
		switch {
		case attr.Key == model.ClassificationAttributeKey:
			classificationID = attr.StringValue
		case attr.IsComposite():
			oldComposites[attr.Key] = attr
		default:
			raw = append(raw, attr)
		}
	}

	normalized, err := s.validator.Validate(ctx, tenant, raw, classificationID)
	if err != nil {
		return err
	}
	*state = StateValidated

	// Injected defaults are attributes validation produced that the
	// document had no value for; stored values always win over defaults.
	rawKeys := make(map[string]bool, len(raw))
	for _, attr := range raw {
		rawKeys[attr.Key] = true
	}
	newComposites := make(map[string]model.DocumentAttribute)
	var injected []model.DocumentAttribute
	for _, attr := range normalized {
		switch {
		case attr.IsComposite():
			newComposites[attr.Key] = attr
		case attr.Key == model.ClassificationAttributeKey:
		case !rawKeys[attr.Key]:
			injected = append(injected, attr)
		}
	}

	toDelete, toAdd := diffComposites(oldComposites, newComposites)

	// Written attributes are stamped like any other write; a composite
	// whose value survived under its key keeps its original InsertedDate.
	puts := append(injected, toAdd...)
	now := s.clock().UTC()
	for i := range puts {
		puts[i].DocumentID = docID
		if prev, ok := oldComposites[puts[i].Key]; ok {
			if puts[i].UserID == "" {
				puts[i].UserID = prev.UserID
			}
			if !prev.InsertedDate.IsZero() {
				puts[i].InsertedDate = prev.InsertedDate
				continue
			}
		}
		puts[i].InsertedDate = now
	}
	docMuts, err := s.docs.PlanPatch(tenant, docID, puts, toDelete)
	if err != nil {
		return err
	}

	path, tags, err := s.currentPathAndTags(ctx, tenant, docID)
	if err != nil {
		return err
	}
	idxMuts, priorPaths, err := s.index.PlanUpsert(ctx, tenant, docID, path, tags, normalized)
	if err != nil {
		return err
	}

	// One logical batch: a cancelled run leaves either the old or the new
	// derived state, never a mix.
	if err := s.store.Apply(ctx, append(docMuts, idxMuts...)); err != nil {
		return err
	}
	*state = StateIndexReconciled

	if err := s.index.PruneFolders(ctx, tenant, priorPaths); err != nil {
		s.logger.Warn("folder prune failed", "tenant", tenant, "documentId", docID, "error", err)
	}
	return nil
}

// diffComposites computes the set reconciliation between stored and
// re-derived composite attributes: keys to delete, attributes to add or
// update.
func diffComposites(old, new map[string]model.DocumentAttribute) (toDelete []string, toAdd []model.DocumentAttribute) {
	for key := range old {
		if _, ok := new[key]; !ok {
			toDelete = append(toDelete, key)
		}
	}
	for key, attr := range new {
		if prev, ok := old[key]; !ok || prev.StringValue != attr.StringValue {
			toAdd = append(toAdd, attr)
		}
	}
	return toDelete, toAdd
}

// currentPathAndTags recovers the document's folder path and tags from its
// existing index rows so the index rewrite preserves them.
func (s *Service) currentPathAndTags(ctx context.Context, tenant, docID string) (string, []model.Tag, error) {
	entries, err := s.index.DocumentEntries(ctx, tenant, docID)
	if err != nil {
		return "", nil, err
	}

	path := ""
	tagValues := make(map[string][]string)
	var tagOrder []string
	for _, entry := range entries {
		switch entry.IndexType {
		case model.IndexTypeFolder:
			path = entry.Path
		case model.IndexTypeTag:
			if _, seen := tagValues[entry.IndexKey]; !seen {
				tagOrder = append(tagOrder, entry.IndexKey)
			}
			tagValues[entry.IndexKey] = append(tagValues[entry.IndexKey], entry.SortValue)
		}
	}

	tags := make([]model.Tag, 0, len(tagOrder))
	for _, key := range tagOrder {
		values := tagValues[key]
		if len(values) == 1 {
			tags = append(tags, model.Tag{Key: key, Value: values[0]})
			continue
		}
		tags = append(tags, model.Tag{Key: key, Values: values})
	}
	return path, tags, nil
}
