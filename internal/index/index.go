package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"attrix/internal/metrics"
	"attrix/internal/storage"
	"attrix/pkg/model"
)

// Service maintains and queries the secondary index. Mutating operations
// are planned as storage mutations so callers can combine the index delta
// with their own writes into a single logical batch.
type Service struct {
	store   storage.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates the index service.
func New(store storage.Store, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		logger:  logger.With("component", "index"),
		metrics: m,
	}
}

// PlanUpsert computes the mutations replacing a document's index rows with
// the rows derived from path, tags and attributes. Previously written rows
// not re-derived are deleted; folder directory entries along the path are
// created or reused. The returned prior paths let the caller prune folders
// that the rewrite may have emptied.
func (s *Service) PlanUpsert(ctx context.Context, tenant, docID, path string, tags []model.Tag, attrs []model.DocumentAttribute) ([]storage.Mutation, []string, error) {
	partition := Partition(tenant)

	old, err := s.reverseRows(ctx, tenant, docID)
	if err != nil {
		return nil, nil, err
	}
	priorPaths, err := s.pathsOf(ctx, tenant, old)
	if err != nil {
		return nil, nil, err
	}

	// desired rows are owned by the document and tracked through reverse
	// rows; shared rows (directory entries) are reused across documents
	// and only removed by folder pruning.
	desired := make(map[string]model.IndexEntry)
	shared := make(map[string]model.IndexEntry)

	if path != "" {
		s.planFolders(tenant, docID, path, desired, shared)
	}
	for _, tag := range tags {
		for _, value := range tag.IndexValues() {
			sortKey := valueSortKey(prefixTag, tag.Key, value, docID)
			desired[sortKey] = model.IndexEntry{
				TenantID:   tenant,
				IndexType:  model.IndexTypeTag,
				IndexKey:   tag.Key,
				DocumentID: docID,
				SortValue:  value,
			}
		}
	}
	for _, attr := range attrs {
		if attr.ValueType == model.ValueTypeClassification {
			continue
		}
		for _, value := range attr.IndexValues() {
			sortKey := valueSortKey(prefixAttr, attr.Key, value, docID)
			desired[sortKey] = model.IndexEntry{
				TenantID:   tenant,
				IndexType:  model.IndexTypeAttribute,
				IndexKey:   attr.Key,
				DocumentID: docID,
				SortValue:  value,
			}
		}
	}

	var muts []storage.Mutation
	// Drop rows the rewrite no longer derives.
	for _, sortKey := range old {
		if _, keep := desired[sortKey]; keep {
			continue
		}
		muts = append(muts,
			storage.Mutation{Delete: &storage.Key{Partition: partition, SortKey: sortKey}},
			storage.Mutation{Delete: &storage.Key{Partition: partition, SortKey: reverseSortKey(docID, sortKey)}},
		)
	}
	for sortKey, entry := range desired {
		value, err := json.Marshal(entry)
		if err != nil {
			return nil, nil, err
		}
		muts = append(muts,
			storage.Mutation{Put: &storage.Row{Partition: partition, SortKey: sortKey, Value: value}},
			storage.Mutation{Put: &storage.Row{Partition: partition, SortKey: reverseSortKey(docID, sortKey), Value: nil}},
		)
	}
	for sortKey, entry := range shared {
		value, err := json.Marshal(entry)
		if err != nil {
			return nil, nil, err
		}
		muts = append(muts, storage.Mutation{Put: &storage.Row{Partition: partition, SortKey: sortKey, Value: value}})
	}

	if s.metrics != nil {
		s.metrics.IndexUpserts.Inc()
	}
	return muts, priorPaths, nil
}

// planFolders adds the directory entries for every ancestor of path plus
// the terminal file entry. A path with a trailing slash is a directory
// create: the terminal segment becomes a directory entry, not a file.
func (s *Service) planFolders(tenant, docID, path string, desired, shared map[string]model.IndexEntry) {
	isDir := len(path) > 0 && path[len(path)-1] == '/'
	segments := splitPath(path)
	if len(segments) == 0 {
		return
	}

	current := ""
	for i, segment := range segments {
		parentKey := FolderKey(current)
		if current == "" {
			current = segment
		} else {
			current = current + "/" + segment
		}

		terminal := i == len(segments)-1
		if terminal && !isDir {
			sortKey := folderSortKey(parentKey, segment, docID)
			entry := model.IndexEntry{
				TenantID:   tenant,
				IndexType:  model.IndexTypeFolder,
				IndexKey:   FolderKey(current),
				DocumentID: docID,
				Path:       current,
				SortValue:  segment,
			}
			desired[sortKey] = entry
			desired[folderKeySortKey(entry.IndexKey)] = entry
			continue
		}

		entry := model.IndexEntry{
			TenantID:  tenant,
			IndexType: model.IndexTypeFolder,
			IndexKey:  FolderKey(current),
			Path:      current,
			SortValue: segment,
			IsFolder:  true,
		}
		shared[folderSortKey(parentKey, segment, "")] = entry
		shared[folderKeySortKey(entry.IndexKey)] = entry
	}
}

// PlanDeleteDocument computes the mutations removing every index row of a
// document, and returns the folder paths whose entries may have emptied.
func (s *Service) PlanDeleteDocument(ctx context.Context, tenant, docID string) ([]storage.Mutation, []string, error) {
	partition := Partition(tenant)

	old, err := s.reverseRows(ctx, tenant, docID)
	if err != nil {
		return nil, nil, err
	}
	paths, err := s.pathsOf(ctx, tenant, old)
	if err != nil {
		return nil, nil, err
	}

	var muts []storage.Mutation
	for _, sortKey := range old {
		muts = append(muts,
			storage.Mutation{Delete: &storage.Key{Partition: partition, SortKey: sortKey}},
			storage.Mutation{Delete: &storage.Key{Partition: partition, SortKey: reverseSortKey(docID, sortKey)}},
		)
	}
	return muts, paths, nil
}

// PruneFolders removes directory entries left empty after a delete or
// re-path, walking each affected path upward. Folder entries are virtual:
// they exist only while something lives under them.
func (s *Service) PruneFolders(ctx context.Context, tenant string, paths []string) error {
	partition := Partition(tenant)

	for _, path := range paths {
		for dir := parentPath(path); ; dir = parentPath(dir) {
			if dir == "" {
				break
			}
			key := FolderKey(dir)
			children, err := s.store.Scan(ctx, partition, storage.ScanOptions{
				Prefix: folderChildrenPrefix(key), Limit: 1,
			})
			if err != nil {
				return err
			}
			if len(children) > 0 {
				break
			}

			name := dir
			if i := len(parentPath(dir)); i > 0 {
				name = dir[i+1:]
			}
			err = s.store.Apply(ctx, []storage.Mutation{
				{Delete: &storage.Key{Partition: partition, SortKey: folderSortKey(FolderKey(parentPath(dir)), name, "")}},
				{Delete: &storage.Key{Partition: partition, SortKey: folderKeySortKey(key)}},
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// DeleteEntry removes a single index entry. For folders, indexKey is the
// stable folder key and the entry must have no children. For tags and
// attributes, indexKey is the row's "key#value#documentId" triple.
func (s *Service) DeleteEntry(ctx context.Context, tenant, indexKey string, indexType model.IndexType) error {
	if !indexType.IsValid() {
		return model.Validation("indexType", "unknown index type '%s'", indexType).OrNil()
	}
	partition := Partition(tenant)

	if indexType != model.IndexTypeFolder {
		sortKey := familyPrefix(indexType) + indexKey
		if _, err := s.store.Get(ctx, storage.Key{Partition: partition, SortKey: sortKey}); err != nil {
			if errors.Is(err, storage.ErrRowNotFound) {
				return fmt.Errorf("index entry '%s': %w", indexKey, model.ErrNotFound)
			}
			return err
		}
		docID := docIDFromSortKey(sortKey)
		return s.store.Apply(ctx, []storage.Mutation{
			{Delete: &storage.Key{Partition: partition, SortKey: sortKey}},
			{Delete: &storage.Key{Partition: partition, SortKey: reverseSortKey(docID, sortKey)}},
		})
	}

	entry, err := s.folderEntry(ctx, tenant, indexKey)
	if err != nil {
		return err
	}

	if entry.IsFolder {
		children, err := s.store.Scan(ctx, partition, storage.ScanOptions{
			Prefix: folderChildrenPrefix(indexKey), Limit: 1,
		})
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return model.ErrFolderNotEmpty
		}
	}

	name := entry.SortValue
	parentKey := FolderKey(parentPath(entry.Path))
	muts := []storage.Mutation{
		{Delete: &storage.Key{Partition: partition, SortKey: folderSortKey(parentKey, name, entry.DocumentID)}},
		{Delete: &storage.Key{Partition: partition, SortKey: folderKeySortKey(indexKey)}},
	}
	if entry.DocumentID != "" {
		// File entries carry reverse rows for both the parent listing row
		// and the fkey row; drop both.
		sortKey := folderSortKey(parentKey, name, entry.DocumentID)
		muts = append(muts,
			storage.Mutation{Delete: &storage.Key{Partition: partition, SortKey: reverseSortKey(entry.DocumentID, sortKey)}},
			storage.Mutation{Delete: &storage.Key{Partition: partition, SortKey: reverseSortKey(entry.DocumentID, folderKeySortKey(indexKey))}},
		)
	}

	if err := s.store.Apply(ctx, muts); err != nil {
		return err
	}
	s.logger.Info("index entry deleted", "tenant", tenant, "indexKey", indexKey, "indexType", indexType)
	return nil
}

// folderEntry resolves a folder index key to its entry.
func (s *Service) folderEntry(ctx context.Context, tenant, indexKey string) (*model.IndexEntry, error) {
	row, err := s.store.Get(ctx, storage.Key{
		Partition: Partition(tenant), SortKey: folderKeySortKey(indexKey),
	})
	if err != nil {
		if errors.Is(err, storage.ErrRowNotFound) {
			return nil, fmt.Errorf("folder '%s': %w", indexKey, model.ErrNotFound)
		}
		return nil, err
	}
	var entry model.IndexEntry
	if err := json.Unmarshal(row.Value, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// AttributeInUse reports whether any index row exists for the attribute key.
func (s *Service) AttributeInUse(ctx context.Context, tenant, key string) (bool, error) {
	rows, err := s.store.Scan(ctx, Partition(tenant), storage.ScanOptions{
		Prefix: valuePrefix(prefixAttr, key), Limit: 1,
	})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// DocumentEntries loads every index entry currently written for a document.
func (s *Service) DocumentEntries(ctx context.Context, tenant, docID string) ([]model.IndexEntry, error) {
	sortKeys, err := s.reverseRows(ctx, tenant, docID)
	if err != nil {
		return nil, err
	}
	entries := make([]model.IndexEntry, 0, len(sortKeys))
	for _, sortKey := range sortKeys {
		row, err := s.store.Get(ctx, storage.Key{Partition: Partition(tenant), SortKey: sortKey})
		if err != nil {
			if errors.Is(err, storage.ErrRowNotFound) {
				continue
			}
			return nil, err
		}
		var entry model.IndexEntry
		if err := json.Unmarshal(row.Value, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// reverseRows returns the sort keys of every index row written for docID.
func (s *Service) reverseRows(ctx context.Context, tenant, docID string) ([]string, error) {
	rows, err := s.store.Scan(ctx, Partition(tenant), storage.ScanOptions{Prefix: reversePrefix(docID)})
	if err != nil {
		return nil, err
	}
	targets := make([]string, 0, len(rows))
	for _, row := range rows {
		targets = append(targets, reverseTarget(row.SortKey, docID))
	}
	return targets, nil
}

// pathsOf extracts the folder paths referenced by a document's rows.
func (s *Service) pathsOf(ctx context.Context, tenant string, sortKeys []string) ([]string, error) {
	var paths []string
	for _, sortKey := range sortKeys {
		if len(sortKey) < len(prefixFolder) || sortKey[:len(prefixFolder)] != prefixFolder {
			continue
		}
		row, err := s.store.Get(ctx, storage.Key{Partition: Partition(tenant), SortKey: sortKey})
		if err != nil {
			if errors.Is(err, storage.ErrRowNotFound) {
				continue
			}
			return nil, err
		}
		var entry model.IndexEntry
		if err := json.Unmarshal(row.Value, &entry); err != nil {
			return nil, err
		}
		if entry.Path != "" {
			paths = append(paths, entry.Path)
		}
	}
	return paths, nil
}
