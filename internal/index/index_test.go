package index

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attrix/internal/storage"
	"attrix/internal/storage/memory"
	"attrix/pkg/model"
)

type testIndex struct {
	store *memory.Store
	svc   *Service
}

func newTestIndex(t *testing.T) *testIndex {
	t.Helper()
	store := memory.New()
	return &testIndex{store: store, svc: New(store, nil, slog.Default())}
}

func (ti *testIndex) upsert(t *testing.T, tenant, docID, path string, tags []model.Tag, attrs []model.DocumentAttribute) []string {
	t.Helper()
	ctx := context.Background()
	muts, priorPaths, err := ti.svc.PlanUpsert(ctx, tenant, docID, path, tags, attrs)
	require.NoError(t, err)
	require.NoError(t, ti.store.Apply(ctx, muts))
	return priorPaths
}

func (ti *testIndex) query(t *testing.T, tenant string, q model.QueryCriteria) model.SearchResult {
	t.Helper()
	result, err := ti.svc.Query(context.Background(), tenant, q)
	require.NoError(t, err)
	return result
}

func docIDs(result model.SearchResult) []string {
	ids := make([]string, len(result.Documents))
	for i, d := range result.Documents {
		ids[i] = d.DocumentID
	}
	return ids
}

func folderQuery(key string) model.QueryCriteria {
	return model.QueryCriteria{Folder: &key}
}

func TestUpsertBuildsFolderHierarchy(t *testing.T) {
	ti := newTestIndex(t)
	ti.upsert(t, "acme", "doc-1", "projects/2024/report.pdf", nil, nil)

	// root lists the top-level directory
	result := ti.query(t, "acme", folderQuery(""))
	require.Len(t, result.Documents, 1)
	assert.Equal(t, "projects", result.Documents[0].Path)
	assert.True(t, result.Documents[0].IsFolder)
	assert.Empty(t, result.Documents[0].DocumentID)

	// the deepest directory lists the file entry
	result = ti.query(t, "acme", folderQuery(FolderKey("projects/2024")))
	require.Len(t, result.Documents, 1)
	assert.Equal(t, "doc-1", result.Documents[0].DocumentID)
	assert.Equal(t, "projects/2024/report.pdf", result.Documents[0].Path)
	assert.False(t, result.Documents[0].IsFolder)
	assert.Equal(t, "report.pdf", result.Documents[0].SortValue)
}

func TestUpsertTrailingSlashCreatesDirectory(t *testing.T) {
	ti := newTestIndex(t)
	ti.upsert(t, "acme", "doc-1", "archive/2020/", nil, nil)

	result := ti.query(t, "acme", folderQuery(FolderKey("archive")))
	require.Len(t, result.Documents, 1)
	assert.True(t, result.Documents[0].IsFolder)
	assert.Empty(t, result.Documents[0].DocumentID)
}

func TestUpsertSharesDirectoryEntries(t *testing.T) {
	ti := newTestIndex(t)
	ti.upsert(t, "acme", "doc-1", "shared/a.pdf", nil, nil)
	ti.upsert(t, "acme", "doc-2", "shared/b.pdf", nil, nil)

	result := ti.query(t, "acme", folderQuery(FolderKey("shared")))
	assert.Equal(t, []string{"doc-1", "doc-2"}, docIDs(result))

	result = ti.query(t, "acme", folderQuery(""))
	require.Len(t, result.Documents, 1)
}

func TestUpsertRewriteDropsStaleRows(t *testing.T) {
	ti := newTestIndex(t)
	ti.upsert(t, "acme", "doc-1", "", []model.Tag{{Key: "status", Value: "draft"}}, nil)
	ti.upsert(t, "acme", "doc-1", "", []model.Tag{{Key: "status", Value: "final"}}, nil)

	result := ti.query(t, "acme", model.QueryCriteria{
		Tags: []model.Criterion{{Key: "status", Eq: "draft"}},
	})
	assert.Empty(t, result.Documents)

	result = ti.query(t, "acme", model.QueryCriteria{
		Tags: []model.Criterion{{Key: "status", Eq: "final"}},
	})
	assert.Equal(t, []string{"doc-1"}, docIDs(result))
}

func TestUpsertReturnsPriorPaths(t *testing.T) {
	ti := newTestIndex(t)
	ti.upsert(t, "acme", "doc-1", "old/place.pdf", nil, nil)

	priorPaths := ti.upsert(t, "acme", "doc-1", "new/place.pdf", nil, nil)
	assert.Contains(t, priorPaths, "old/place.pdf")

	require.NoError(t, ti.svc.PruneFolders(context.Background(), "acme", priorPaths))

	result := ti.query(t, "acme", folderQuery(""))
	require.Len(t, result.Documents, 1)
	assert.Equal(t, "new", result.Documents[0].Path)
}

func TestUpsertSkipsClassificationAttribute(t *testing.T) {
	ti := newTestIndex(t)
	ti.upsert(t, "acme", "doc-1", "", nil, []model.DocumentAttribute{
		{Key: model.ClassificationAttributeKey, ValueType: model.ValueTypeClassification, StringValue: "class-1"},
		{Key: "department", ValueType: model.ValueTypeString, StringValue: "sales"},
	})

	result := ti.query(t, "acme", model.QueryCriteria{IndexType: model.IndexTypeAttribute})
	require.Len(t, result.Documents, 1)
	assert.Equal(t, "department", result.Documents[0].IndexKey)
}

func TestUpsertMultiValueTag(t *testing.T) {
	ti := newTestIndex(t)
	ti.upsert(t, "acme", "doc-1", "", []model.Tag{{Key: "region", Values: []string{"emea", "apac"}}}, nil)

	for _, v := range []string{"emea", "apac"} {
		result := ti.query(t, "acme", model.QueryCriteria{
			Tags: []model.Criterion{{Key: "region", Eq: v}},
		})
		assert.Equal(t, []string{"doc-1"}, docIDs(result), v)
	}
}

func TestPlanDeleteDocumentAndPrune(t *testing.T) {
	ctx := context.Background()
	ti := newTestIndex(t)
	ti.upsert(t, "acme", "doc-1", "projects/2024/report.pdf",
		[]model.Tag{{Key: "status", Value: "final"}},
		[]model.DocumentAttribute{{Key: "year", ValueType: model.ValueTypeString, StringValue: "2024"}})

	muts, paths, err := ti.svc.PlanDeleteDocument(ctx, "acme", "doc-1")
	require.NoError(t, err)
	require.NoError(t, ti.store.Apply(ctx, muts))
	require.NoError(t, ti.svc.PruneFolders(ctx, "acme", paths))

	rows, err := ti.store.Scan(ctx, Partition("acme"), storage.ScanOptions{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPruneFoldersKeepsOccupiedFolders(t *testing.T) {
	ctx := context.Background()
	ti := newTestIndex(t)
	ti.upsert(t, "acme", "doc-1", "shared/a.pdf", nil, nil)
	ti.upsert(t, "acme", "doc-2", "shared/b.pdf", nil, nil)

	muts, paths, err := ti.svc.PlanDeleteDocument(ctx, "acme", "doc-1")
	require.NoError(t, err)
	require.NoError(t, ti.store.Apply(ctx, muts))
	require.NoError(t, ti.svc.PruneFolders(ctx, "acme", paths))

	result := ti.query(t, "acme", folderQuery(FolderKey("shared")))
	assert.Equal(t, []string{"doc-2"}, docIDs(result))
}

func TestDeleteEntryTag(t *testing.T) {
	ctx := context.Background()
	ti := newTestIndex(t)
	ti.upsert(t, "acme", "doc-1", "", []model.Tag{{Key: "status", Value: "active"}}, nil)

	require.NoError(t, ti.svc.DeleteEntry(ctx, "acme", "status#active#doc-1", model.IndexTypeTag))

	result := ti.query(t, "acme", model.QueryCriteria{
		Tags: []model.Criterion{{Key: "status", Eq: "active"}},
	})
	assert.Empty(t, result.Documents)

	err := ti.svc.DeleteEntry(ctx, "acme", "status#active#doc-1", model.IndexTypeTag)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDeleteEntryFolderNotEmpty(t *testing.T) {
	ctx := context.Background()
	ti := newTestIndex(t)
	ti.upsert(t, "acme", "doc-1", "projects/report.pdf", nil, nil)

	err := ti.svc.DeleteEntry(ctx, "acme", FolderKey("projects"), model.IndexTypeFolder)
	assert.ErrorIs(t, err, model.ErrFolderNotEmpty)

	// the file entry itself can go, then the emptied folder can
	require.NoError(t, ti.svc.DeleteEntry(ctx, "acme", FolderKey("projects/report.pdf"), model.IndexTypeFolder))
	require.NoError(t, ti.svc.DeleteEntry(ctx, "acme", FolderKey("projects"), model.IndexTypeFolder))

	result := ti.query(t, "acme", folderQuery(""))
	assert.Empty(t, result.Documents)
}

func TestDeleteEntryFileDropsReverseRows(t *testing.T) {
	ctx := context.Background()
	ti := newTestIndex(t)
	ti.upsert(t, "acme", "doc-1", "projects/report.pdf", nil, nil)

	require.NoError(t, ti.svc.DeleteEntry(ctx, "acme", FolderKey("projects/report.pdf"), model.IndexTypeFolder))

	// both reverse rows of the file entry (listing row and fkey row) are
	// gone, not just the listing row's
	rows, err := ti.store.Scan(ctx, Partition("acme"), storage.ScanOptions{Prefix: reversePrefix("doc-1")})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDeleteEntryUnknownType(t *testing.T) {
	ti := newTestIndex(t)
	err := ti.svc.DeleteEntry(context.Background(), "acme", "x", model.IndexType("bogus"))
	_, ok := model.AsValidation(err)
	assert.True(t, ok)
}

func TestAttributeInUse(t *testing.T) {
	ctx := context.Background()
	ti := newTestIndex(t)
	ti.upsert(t, "acme", "doc-1", "", nil, []model.DocumentAttribute{
		{Key: "department", ValueType: model.ValueTypeString, StringValue: "sales"},
	})

	used, err := ti.svc.AttributeInUse(ctx, "acme", "department")
	require.NoError(t, err)
	assert.True(t, used)

	used, err = ti.svc.AttributeInUse(ctx, "acme", "other")
	require.NoError(t, err)
	assert.False(t, used)
}

func TestDocumentEntries(t *testing.T) {
	ti := newTestIndex(t)
	ti.upsert(t, "acme", "doc-1", "projects/report.pdf",
		[]model.Tag{{Key: "status", Value: "final"}},
		[]model.DocumentAttribute{{Key: "year", ValueType: model.ValueTypeString, StringValue: "2024"}})

	entries, err := ti.svc.DocumentEntries(context.Background(), "acme", "doc-1")
	require.NoError(t, err)

	byType := map[model.IndexType]int{}
	for _, e := range entries {
		byType[e.IndexType]++
	}
	assert.Equal(t, 1, byType[model.IndexTypeTag])
	assert.Equal(t, 1, byType[model.IndexTypeAttribute])
	// the file entry appears under both its parent listing and its fkey row
	assert.Equal(t, 2, byType[model.IndexTypeFolder])
}
