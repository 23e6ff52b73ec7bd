package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFolderKey(t *testing.T) {
	key := FolderKey("projects/2024")
	assert.Len(t, key, 16)
	assert.Equal(t, key, FolderKey("projects/2024"))
	assert.NotEqual(t, key, FolderKey("projects/2025"))
	assert.Equal(t, RootFolderKey, FolderKey(""))
}

func TestValueSortKeyEscapesSeparators(t *testing.T) {
	plain := valueSortKey(prefixTag, "status", "active", "doc-1")
	assert.Equal(t, "tag#status#active#doc-1", plain)

	escaped := valueSortKey(prefixTag, "status", "a#b", "doc-1")
	assert.NotContains(t, escaped[len(prefixTag):], "a#b")
}

func TestReverseSortKeyRoundTrip(t *testing.T) {
	target := valueSortKey(prefixAttr, "year", "2024", "doc-1")
	rev := reverseSortKey("doc-1", target)
	assert.Equal(t, target, reverseTarget(rev, "doc-1"))
}

func TestSplitPath(t *testing.T) {
	assert.Nil(t, splitPath(""))
	assert.Nil(t, splitPath("/"))
	assert.Equal(t, []string{"a"}, splitPath("/a"))
	assert.Equal(t, []string{"a", "b", "c"}, splitPath("a/b/c/"))
}

func TestParentPath(t *testing.T) {
	assert.Equal(t, "", parentPath("a"))
	assert.Equal(t, "a", parentPath("a/b"))
	assert.Equal(t, "a/b", parentPath("a/b/c"))
}

func TestDocIDFromSortKey(t *testing.T) {
	assert.Equal(t, "doc-1", docIDFromSortKey("tag#status#active#doc-1"))
	assert.Equal(t, "a/b", docIDFromSortKey(valueSortKey(prefixTag, "k", "v", "a/b")))
}
