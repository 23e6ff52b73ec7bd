package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCriteria_Validate_TooManyDocumentIDs(t *testing.T) {
	ids := make([]string, MaxDocumentIDs+1)
	for i := range ids {
		ids[i] = "doc"
	}
	q := QueryCriteria{IndexType: IndexTypeTag, DocumentIDs: ids}
	verr := q.Validate()

	require.False(t, verr.Empty())
	assert.Equal(t, "Maximum number of DocumentIds is 100", verr[0].Message)
}

func TestQueryCriteria_Validate_AtCapIsFine(t *testing.T) {
	q := QueryCriteria{IndexType: IndexTypeTag, DocumentIDs: make([]string, MaxDocumentIDs)}
	assert.True(t, q.Validate().Empty())
}

func TestQueryCriteria_Validate_SingleSelector(t *testing.T) {
	folder := "abc"
	q := QueryCriteria{
		Folder: &folder,
		Tags:   []Criterion{{Key: "status", Eq: "active"}},
	}
	verr := q.Validate()

	require.False(t, verr.Empty())
	assert.Contains(t, verr[0].Message, "only one of")
}

func TestQueryCriteria_Validate_RangeEndRequired(t *testing.T) {
	q := QueryCriteria{
		Tags: []Criterion{{Key: "date", Range: &Range{Start: "2024-01-01"}}},
	}
	verr := q.Validate()

	require.Len(t, verr, 1)
	assert.Equal(t, "range end is required", verr[0].Message)
}

func TestQueryCriteria_Validate_RangeLikeOnlyLast(t *testing.T) {
	q := QueryCriteria{
		Tags: []Criterion{
			{Key: "a", BeginsWith: "x"},
			{Key: "b", Eq: "y"},
		},
	}
	verr := q.Validate()

	require.Len(t, verr, 1)
	assert.Equal(t, "'beginsWith','range' is only supported on the last tag", verr[0].Message)
}

func TestQueryCriteria_Validate_RangeLikeLastIsFine(t *testing.T) {
	q := QueryCriteria{
		Tags: []Criterion{
			{Key: "a", Eq: "x"},
			{Key: "b", Range: &Range{Start: "1", End: "9"}},
		},
	}
	assert.True(t, q.Validate().Empty())
}

func TestQueryCriteria_PageSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, QueryCriteria{}.PageSize())
	assert.Equal(t, 25, QueryCriteria{Limit: 25}.PageSize())
}

func TestTag_IndexValues(t *testing.T) {
	assert.Equal(t, []string{"x"}, Tag{Key: "k", Value: "x"}.IndexValues())
	assert.Equal(t, []string{"a", "b"}, Tag{Key: "k", Values: []string{"a", "b"}}.IndexValues())
	// key-only tag indexes under the empty value
	assert.Equal(t, []string{""}, Tag{Key: "k"}.IndexValues())
}

func TestValidationError_Collects(t *testing.T) {
	var verr ValidationError
	verr = verr.Append("a", "first")
	verr = verr.Merge(Validation("b", "second %d", 2))

	require.Len(t, verr, 2)
	assert.True(t, strings.Contains(verr.Error(), "first"))
	assert.True(t, strings.Contains(verr.Error(), "second 2"))
	assert.Error(t, verr.OrNil())
	assert.NoError(t, ValidationError{}.OrNil())
}
