// Package docs persists the per-document attribute rows: the raw attributes
// supplied by callers plus the synthetic classification and composite-key
// attributes materialized by validation. These rows are the source the
// reindex service diffs against.
package docs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"attrix/internal/storage"
	"attrix/pkg/model"
)

const attrPrefix = "attr#"

// Partition returns the tenant's document partition.
func Partition(tenant string) string {
	return "tenant#" + tenant + "#doc"
}

func attrSortKey(docID, key string) string {
	return "doc#" + url.PathEscape(docID) + "#" + attrPrefix + key
}

func attrScanPrefix(docID string) string {
	return "doc#" + url.PathEscape(docID) + "#" + attrPrefix
}

// Store reads and plans writes of document attributes. Writes are returned
// as mutations so callers can batch them with index updates.
type Store struct {
	store storage.Store
}

// New creates the document attribute store.
func New(store storage.Store) *Store {
	return &Store{store: store}
}

// Attributes returns every stored attribute of a document, sorted with the
// synthetic Classification attribute first.
func (s *Store) Attributes(ctx context.Context, tenant, docID string) ([]model.DocumentAttribute, error) {
	rows, err := s.store.Scan(ctx, Partition(tenant), storage.ScanOptions{Prefix: attrScanPrefix(docID)})
	if err != nil {
		return nil, err
	}
	attrs := make([]model.DocumentAttribute, 0, len(rows))
	for _, row := range rows {
		var attr model.DocumentAttribute
		if err := json.Unmarshal(row.Value, &attr); err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	model.SortAttributes(attrs)
	return attrs, nil
}

// Exists reports whether the document has any stored attributes.
func (s *Store) Exists(ctx context.Context, tenant, docID string) (bool, error) {
	rows, err := s.store.Scan(ctx, Partition(tenant), storage.ScanOptions{
		Prefix: attrScanPrefix(docID), Limit: 1,
	})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// PlanReplace computes the mutations replacing the document's stored
// attribute set with attrs. Stored attributes not in attrs are deleted:
// the attribute set is recomputed whole, never hand-edited.
func (s *Store) PlanReplace(ctx context.Context, tenant, docID string, attrs []model.DocumentAttribute) ([]storage.Mutation, error) {
	existing, err := s.Attributes(ctx, tenant, docID)
	if err != nil {
		return nil, err
	}

	keep := make(map[string]bool, len(attrs))
	var muts []storage.Mutation
	for _, attr := range attrs {
		keep[attr.Key] = true
		attr.DocumentID = docID
		value, err := json.Marshal(attr)
		if err != nil {
			return nil, err
		}
		muts = append(muts, storage.Mutation{Put: &storage.Row{
			Partition: Partition(tenant), SortKey: attrSortKey(docID, attr.Key), Value: value,
		}})
	}
	for _, attr := range existing {
		if !keep[attr.Key] {
			muts = append(muts, storage.Mutation{Delete: &storage.Key{
				Partition: Partition(tenant), SortKey: attrSortKey(docID, attr.Key),
			}})
		}
	}
	return muts, nil
}

// PlanPatch computes the mutations applying only the given puts and key
// deletions, leaving other stored attributes untouched.
func (s *Store) PlanPatch(tenant, docID string, puts []model.DocumentAttribute, deletes []string) ([]storage.Mutation, error) {
	var muts []storage.Mutation
	for _, attr := range puts {
		attr.DocumentID = docID
		value, err := json.Marshal(attr)
		if err != nil {
			return nil, err
		}
		muts = append(muts, storage.Mutation{Put: &storage.Row{
			Partition: Partition(tenant), SortKey: attrSortKey(docID, attr.Key), Value: value,
		}})
	}
	for _, key := range deletes {
		muts = append(muts, storage.Mutation{Delete: &storage.Key{
			Partition: Partition(tenant), SortKey: attrSortKey(docID, key),
		}})
	}
	return muts, nil
}

// PlanDelete removes every attribute row of the document.
func (s *Store) PlanDelete(ctx context.Context, tenant, docID string) ([]storage.Mutation, error) {
	existing, err := s.Attributes(ctx, tenant, docID)
	if err != nil {
		return nil, err
	}
	muts := make([]storage.Mutation, 0, len(existing))
	for _, attr := range existing {
		muts = append(muts, storage.Mutation{Delete: &storage.Key{
			Partition: Partition(tenant), SortKey: attrSortKey(docID, attr.Key),
		}})
	}
	return muts, nil
}

// UsingClassification reports whether any document of the tenant declares
// the classification. Walks the tenant's document partition; classification
// deletion is rare enough that no dedicated index is kept for it.
func (s *Store) UsingClassification(ctx context.Context, tenant, classID string) (bool, error) {
	rows, err := s.store.Scan(ctx, Partition(tenant), storage.ScanOptions{Prefix: "doc#"})
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		var attr model.DocumentAttribute
		if err := json.Unmarshal(row.Value, &attr); err != nil {
			return false, err
		}
		if attr.Key == model.ClassificationAttributeKey && attr.StringValue == classID {
			return true, nil
		}
	}
	return false, nil
}

// Require returns ErrDocumentNotFound unless the document exists.
func (s *Store) Require(ctx context.Context, tenant, docID string) error {
	ok, err := s.Exists(ctx, tenant, docID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("document '%s': %w", docID, model.ErrDocumentNotFound)
	}
	return nil
}
