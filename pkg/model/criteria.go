package model

import "fmt"

// IndexType identifies which index family a row or criterion belongs to.
type IndexType string

const (
	IndexTypeFolder    IndexType = "folder"
	IndexTypeTag       IndexType = "tag"
	IndexTypeAttribute IndexType = "attribute"
)

// IsValid checks if the index type is a known valid type.
func (t IndexType) IsValid() bool {
	switch t {
	case IndexTypeFolder, IndexTypeTag, IndexTypeAttribute:
		return true
	}
	return false
}

const (
	// MaxDocumentIDs caps the number of explicit document ids per query.
	MaxDocumentIDs = 100
	// DefaultPageSize is the page size used when the caller does not set one.
	DefaultPageSize = 10
)

// Range is an inclusive bound on a criterion's sort value.
type Range struct {
	Start string `json:"start" schema:"start"`
	End   string `json:"end" schema:"end"`
}

// Criterion matches index rows by key and value. Exactly one of Eq, EqOr,
// BeginsWith or Range is set.
type Criterion struct {
	Key        string   `json:"key" schema:"key"`
	Eq         string   `json:"eq,omitempty" schema:"eq"`
	EqOr       []string `json:"eqOr,omitempty" schema:"eqOr"`
	BeginsWith string   `json:"beginsWith,omitempty" schema:"beginsWith"`
	Range      *Range   `json:"range,omitempty" schema:"range"`
}

// IsRangeLike reports whether the criterion needs an ordered scan rather
// than point lookups.
func (c Criterion) IsRangeLike() bool {
	return c.BeginsWith != "" || c.Range != nil
}

// validate checks the criterion shape. kind names the criterion family for
// error messages ("tag" or "attribute").
func (c Criterion) validate(kind string, last bool) ValidationError {
	var verr ValidationError
	if c.Key == "" {
		verr = verr.Append("key", fmt.Sprintf("%s key is required", kind))
	}
	if c.Range != nil && c.Range.End == "" {
		verr = verr.Append(c.Key, "range end is required")
	}
	if c.IsRangeLike() && !last {
		verr = verr.Append(c.Key,
			fmt.Sprintf("'beginsWith','range' is only supported on the last %s", kind))
	}
	return verr
}

// QueryCriteria is a single query against the secondary index. Exactly one
// selector is used: Folder, Path, Tags, Attributes, or a bare IndexType
// meta query.
type QueryCriteria struct {
	// IndexType selects a whole index family when no other selector is set.
	IndexType IndexType `json:"indexType,omitempty" schema:"indexType"`

	// Folder lists the immediate children of a folder by its index key.
	// The empty string is the root. Nil means no folder query.
	Folder *string `json:"folder,omitempty" schema:"folder"`

	// Path looks up the index entries of a single folder path.
	Path string `json:"path,omitempty" schema:"path"`

	Tags       []Criterion `json:"tags,omitempty" schema:"tags"`
	Attributes []Criterion `json:"attributes,omitempty" schema:"attributes"`

	// DocumentIDs restricts matches to the given ids. Capped at
	// MaxDocumentIDs; results are not limited by the page size.
	DocumentIDs []string `json:"documentIds,omitempty" schema:"documentIds"`

	Limit         int    `json:"limit,omitempty" schema:"limit"`
	NextToken     string `json:"nextToken,omitempty" schema:"nextToken"`
	PreviousToken string `json:"previousToken,omitempty" schema:"previousToken"`
}

// Validate checks the criteria against the fixed query surface.
func (q QueryCriteria) Validate() ValidationError {
	var verr ValidationError

	if len(q.DocumentIDs) > MaxDocumentIDs {
		verr = verr.Append("documentIds", ErrTooManyDocumentIDs.Error())
	}
	if q.IndexType != "" && !q.IndexType.IsValid() {
		verr = verr.Append("indexType", fmt.Sprintf("unknown index type '%s'", q.IndexType))
	}

	selectors := 0
	if q.Folder != nil {
		selectors++
	}
	if q.Path != "" {
		selectors++
	}
	if len(q.Tags) > 0 {
		selectors++
	}
	if len(q.Attributes) > 0 {
		selectors++
	}
	if selectors > 1 {
		verr = verr.Append("criteria", "only one of folder, path, tags or attributes may be set")
	}

	for i, c := range q.Tags {
		verr = verr.Merge(c.validate("tag", i == len(q.Tags)-1))
	}
	for i, c := range q.Attributes {
		verr = verr.Merge(c.validate("attribute", i == len(q.Attributes)-1))
	}

	return verr
}

// PageSize returns the effective page size for the query.
func (q QueryCriteria) PageSize() int {
	if q.Limit > 0 {
		return q.Limit
	}
	return DefaultPageSize
}

// Matched describes which criterion a query hit satisfied.
type Matched struct {
	Type  IndexType `json:"type"`
	Key   string    `json:"key"`
	Value string    `json:"value"`
}

// DocumentMatch is a single query hit.
type DocumentMatch struct {
	DocumentID string `json:"documentId"`
	// IndexKey is the stable key of the matched index entry.
	IndexKey string `json:"indexKey"`
	// Path is set for folder family hits.
	Path     string `json:"path,omitempty"`
	IsFolder bool   `json:"isFolder,omitempty"`
	// SortValue orders the result within the matched index family.
	SortValue string `json:"sortValue"`

	MatchedTag       *Matched `json:"matchedTag,omitempty"`
	MatchedAttribute *Matched `json:"matchedAttribute,omitempty"`
}

// SearchResult is a page of query hits with pagination cursors. Tokens are
// empty on the final page.
type SearchResult struct {
	Documents     []DocumentMatch `json:"documents"`
	NextToken     string          `json:"nextToken,omitempty"`
	PreviousToken string          `json:"previousToken,omitempty"`
}

// Tag is a key/value label attached to a document. A tag may be key-only
// (no value) or carry multiple values, one index row per value.
type Tag struct {
	Key    string   `json:"key"`
	Value  string   `json:"value,omitempty"`
	Values []string `json:"values,omitempty"`
}

// IndexValues returns every value the tag is indexed under.
func (t Tag) IndexValues() []string {
	if len(t.Values) > 0 {
		return t.Values
	}
	return []string{t.Value}
}

// IndexEntry is a row in the secondary index.
type IndexEntry struct {
	TenantID   string    `json:"tenantId"`
	IndexType  IndexType `json:"indexType"`
	IndexKey   string    `json:"indexKey"`
	DocumentID string    `json:"documentId,omitempty"`
	// Path is the full folder path for folder entries.
	Path string `json:"path,omitempty"`
	// SortValue is the value portion the row sorts under (tag value,
	// attribute value, or folder segment name).
	SortValue string `json:"sortValue"`
	IsFolder  bool   `json:"isFolder,omitempty"`
}
