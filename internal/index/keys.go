// Package index maintains the secondary index: folder-hierarchy, tag and
// attribute entries per tenant over the partition+sort-key store, and
// evaluates the fixed set of query shapes against them with cursor
// pagination.
package index

import (
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/cespare/xxhash/v2"

	"attrix/pkg/model"
)

// Sort-key family prefixes within a tenant's index partition.
const (
	prefixFolder = "folder#"
	prefixTag    = "tag#"
	prefixAttr   = "attr#"
	// prefixFolderKey maps a stable folder index key to its entry, so
	// folder operations can address entries without knowing the parent.
	prefixFolderKey = "fkey#"
	// prefixReverse maps a document id to every sort key written for it,
	// enabling cleanup and reindex diffing via a single prefix scan.
	prefixReverse = "rev#"
)

// Partition returns the tenant's index partition.
func Partition(tenant string) string {
	return "tenant#" + tenant + "#index"
}

// FolderKey derives the stable index key for a folder path. Equal paths
// always map to the same key, so re-indexing a document under an existing
// folder reuses its entry.
func FolderKey(path string) string {
	sum := xxhash.Sum64String(path)
	return hex.EncodeToString([]byte{
		byte(sum >> 56), byte(sum >> 48), byte(sum >> 40), byte(sum >> 32),
		byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum),
	})
}

// RootFolderKey is the index key of the implicit root folder.
var RootFolderKey = FolderKey("")

// encodeComponent escapes a sort-key component so '#' and '/' cannot
// collide with the separators.
func encodeComponent(s string) string {
	return url.PathEscape(s)
}

func decodeComponent(s string) (string, error) {
	return url.PathUnescape(s)
}

// folderSortKey builds the sort key of a folder-family row: the entry for
// name under the parent folder. docID is empty for directory entries.
func folderSortKey(parentKey, name, docID string) string {
	return prefixFolder + parentKey + "#" + encodeComponent(name) + "#" + encodeComponent(docID)
}

// folderChildrenPrefix scans the immediate children of a folder.
func folderChildrenPrefix(folderKey string) string {
	return prefixFolder + folderKey + "#"
}

// folderKeySortKey builds the sort key of an fkey mapping row.
func folderKeySortKey(indexKey string) string {
	return prefixFolderKey + indexKey
}

// valueSortKey builds the sort key of a tag or attribute row.
func valueSortKey(family, key, value, docID string) string {
	return family + encodeComponent(key) + "#" + encodeComponent(value) + "#" + encodeComponent(docID)
}

// valuePrefix scans all rows of one tag/attribute key, optionally narrowed
// to a value prefix.
func valuePrefix(family, key string) string {
	return family + encodeComponent(key) + "#"
}

// reverseSortKey builds the sort key of a reverse-mapping row.
func reverseSortKey(docID, target string) string {
	return prefixReverse + encodeComponent(docID) + "#" + target
}

// reversePrefix scans all reverse rows of a document.
func reversePrefix(docID string) string {
	return prefixReverse + encodeComponent(docID) + "#"
}

// reverseTarget extracts the referenced sort key from a reverse row.
func reverseTarget(sortKey, docID string) string {
	return strings.TrimPrefix(sortKey, reversePrefix(docID))
}

// familyPrefix maps an index type to its sort-key family.
func familyPrefix(t model.IndexType) string {
	switch t {
	case model.IndexTypeTag:
		return prefixTag
	case model.IndexTypeAttribute:
		return prefixAttr
	default:
		return prefixFolder
	}
}

// docIDFromSortKey extracts the document id component of a tag/attribute
// sort key, the segment after the last '#'.
func docIDFromSortKey(sortKey string) string {
	i := strings.LastIndexByte(sortKey, '#')
	if i < 0 {
		return ""
	}
	docID, err := decodeComponent(sortKey[i+1:])
	if err != nil {
		return sortKey[i+1:]
	}
	return docID
}

// splitPath normalizes a folder path into its segments.
func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// parentPath returns the path of the containing folder.
func parentPath(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return ""
	}
	return path[:i]
}
