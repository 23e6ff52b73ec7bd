package index

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"attrix/internal/storage"
	"attrix/pkg/model"
)

// segment is one ordered scan contributing to a query's result stream.
// Segments are arranged in ascending sort-key order so cursor tokens stay
// valid across them.
type segment struct {
	opts storage.ScanOptions
}

// Query evaluates criteria against the tenant's index. Result ordering is
// the sort-key order of the matched index family. Cursors are opaque and
// bound to the query; tokens are omitted on final pages.
func (s *Service) Query(ctx context.Context, tenant string, q model.QueryCriteria) (model.SearchResult, error) {
	if verr := q.Validate(); !verr.Empty() {
		return model.SearchResult{}, verr
	}
	if s.metrics != nil {
		s.metrics.Queries.Inc()
	}

	// Path lookups return the single entry for that path.
	if q.Path != "" {
		entry, err := s.folderEntry(ctx, tenant, FolderKey(trimPath(q.Path)))
		if err != nil {
			return model.SearchResult{}, err
		}
		return model.SearchResult{Documents: []model.DocumentMatch{matchFromEntry(*entry, nil)}}, nil
	}

	plan, err := s.planQuery(q)
	if err != nil {
		return model.SearchResult{}, err
	}

	hash := queryHash(tenant, q)
	var cursor pageToken
	haveCursor := false
	switch {
	case q.NextToken != "":
		if cursor, err = decodeToken(q.NextToken, hash); err != nil {
			return model.SearchResult{}, err
		}
		cursor.Back = false
		haveCursor = true
	case q.PreviousToken != "":
		if cursor, err = decodeToken(q.PreviousToken, hash); err != nil {
			return model.SearchResult{}, err
		}
		cursor.Back = true
		haveCursor = true
	}

	idFilter := makeIDFilter(q.DocumentIDs)
	limit := q.PageSize()
	unbounded := len(q.DocumentIDs) > 0

	type hit struct {
		sortKey string
		match   model.DocumentMatch
	}
	var hits []hit

	segments := plan.segments
	if haveCursor && cursor.Back {
		segments = reverseSegments(segments)
	}

	for _, seg := range segments {
		opts := seg.opts
		if haveCursor {
			opts.StartAfter = cursor.SortKey
			opts.Reverse = cursor.Back
		}
		rows, err := s.store.Scan(ctx, Partition(tenant), opts)
		if err != nil {
			return model.SearchResult{}, err
		}
		for _, row := range rows {
			var entry model.IndexEntry
			if err := json.Unmarshal(row.Value, &entry); err != nil {
				return model.SearchResult{}, err
			}
			if idFilter != nil && !idFilter[entry.DocumentID] {
				continue
			}
			ok, err := s.applyFilters(ctx, tenant, entry.DocumentID, plan)
			if err != nil {
				return model.SearchResult{}, err
			}
			if !ok {
				continue
			}
			hits = append(hits, hit{sortKey: row.SortKey, match: matchFromEntry(entry, plan.matched)})
			if !unbounded && len(hits) > limit {
				break
			}
		}
		if !unbounded && len(hits) > limit {
			break
		}
	}

	result := model.SearchResult{}

	if haveCursor && cursor.Back {
		// Hits were collected descending; restore ascending order.
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].sortKey < hits[j].sortKey })
		hasEarlier := len(hits) > limit
		if hasEarlier {
			hits = hits[len(hits)-limit:]
		}
		for _, h := range hits {
			result.Documents = append(result.Documents, h.match)
		}
		if len(hits) > 0 {
			result.NextToken = encodeToken(pageToken{Hash: hash, SortKey: hits[len(hits)-1].sortKey})
			if hasEarlier {
				result.PreviousToken = encodeToken(pageToken{Hash: hash, SortKey: hits[0].sortKey, Back: true})
			}
		}
		return result, nil
	}

	hasMore := !unbounded && len(hits) > limit
	if hasMore {
		hits = hits[:limit]
	}
	for _, h := range hits {
		result.Documents = append(result.Documents, h.match)
	}
	if hasMore {
		result.NextToken = encodeToken(pageToken{Hash: hash, SortKey: hits[len(hits)-1].sortKey})
	}
	if haveCursor && len(hits) > 0 {
		result.PreviousToken = encodeToken(pageToken{Hash: hash, SortKey: hits[0].sortKey, Back: true})
	}
	return result, nil
}

// queryPlan is the compiled form of one query: ordered scan segments, the
// point-check filters for chained criteria, and the descriptor of the
// driving criterion.
type queryPlan struct {
	segments []segment
	family   string
	filters  []model.Criterion
	matched  *model.Matched
}

// planQuery compiles criteria into scan segments. Chained tag/attribute
// criteria are driven by the last criterion, the only one allowed to be
// range-like; the preceding ones become per-document point checks.
func (s *Service) planQuery(q model.QueryCriteria) (queryPlan, error) {
	switch {
	case q.Folder != nil:
		key := *q.Folder
		if key == "" {
			key = RootFolderKey
		}
		return queryPlan{segments: []segment{{opts: storage.ScanOptions{Prefix: folderChildrenPrefix(key)}}}}, nil

	case len(q.Tags) > 0:
		return planValueQuery(prefixTag, model.IndexTypeTag, q.Tags), nil

	case len(q.Attributes) > 0:
		return planValueQuery(prefixAttr, model.IndexTypeAttribute, q.Attributes), nil

	case q.IndexType != "":
		return queryPlan{segments: []segment{{opts: storage.ScanOptions{Prefix: familyPrefix(q.IndexType)}}}}, nil
	}
	return queryPlan{}, model.Validation("criteria", "no query criteria supplied").OrNil()
}

func planValueQuery(family string, indexType model.IndexType, criteria []model.Criterion) queryPlan {
	driving := criteria[len(criteria)-1]
	plan := queryPlan{
		family:  family,
		filters: criteria[:len(criteria)-1],
		matched: &model.Matched{Type: indexType, Key: driving.Key},
	}

	keyPrefix := valuePrefix(family, driving.Key)
	switch {
	case driving.Eq != "":
		plan.segments = []segment{{opts: storage.ScanOptions{Prefix: keyPrefix + encodeComponent(driving.Eq) + "#"}}}
	case len(driving.EqOr) > 0:
		// Segments in escaped-value order keep the combined stream sorted.
		values := make([]string, len(driving.EqOr))
		copy(values, driving.EqOr)
		sort.Slice(values, func(i, j int) bool {
			return encodeComponent(values[i]) < encodeComponent(values[j])
		})
		for _, v := range values {
			plan.segments = append(plan.segments, segment{
				opts: storage.ScanOptions{Prefix: keyPrefix + encodeComponent(v) + "#"},
			})
		}
	case driving.BeginsWith != "":
		plan.segments = []segment{{opts: storage.ScanOptions{Prefix: keyPrefix + encodeComponent(driving.BeginsWith)}}}
	case driving.Range != nil:
		plan.segments = []segment{{opts: storage.ScanOptions{
			Prefix: keyPrefix,
			Start:  keyPrefix + encodeComponent(driving.Range.Start),
			End:    keyPrefix + encodeComponent(driving.Range.End) + "#\xff\xff\xff\xff",
		}}}
	default:
		// Key presence, the KEY_ONLY access pattern.
		plan.segments = []segment{{opts: storage.ScanOptions{Prefix: keyPrefix}}}
	}
	return plan
}

// applyFilters runs the non-driving criteria as existence checks against
// the document's own rows.
func (s *Service) applyFilters(ctx context.Context, tenant, docID string, plan queryPlan) (bool, error) {
	if len(plan.filters) == 0 {
		return true, nil
	}
	if docID == "" {
		return false, nil
	}
	for _, c := range plan.filters {
		values := c.EqOr
		if c.Eq != "" {
			values = []string{c.Eq}
		}
		if len(values) == 0 {
			// Bare key criterion: presence check through the document's
			// reverse rows, which prefix-scan by key.
			rows, err := s.store.Scan(ctx, Partition(tenant), storage.ScanOptions{
				Prefix: reverseSortKey(docID, valuePrefix(plan.family, c.Key)), Limit: 1,
			})
			if err != nil {
				return false, err
			}
			if len(rows) == 0 {
				return false, nil
			}
			continue
		}
		found := false
		for _, v := range values {
			_, err := s.store.Get(ctx, storage.Key{
				Partition: Partition(tenant),
				SortKey:   valueSortKey(plan.family, c.Key, v, docID),
			})
			if err == nil {
				found = true
				break
			}
			if !errors.Is(err, storage.ErrRowNotFound) {
				return false, err
			}
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}

func matchFromEntry(entry model.IndexEntry, matched *model.Matched) model.DocumentMatch {
	m := model.DocumentMatch{
		DocumentID: entry.DocumentID,
		IndexKey:   entry.IndexKey,
		Path:       entry.Path,
		IsFolder:   entry.IsFolder,
		SortValue:  entry.SortValue,
	}
	if matched != nil {
		hit := model.Matched{Type: matched.Type, Key: entry.IndexKey, Value: entry.SortValue}
		switch matched.Type {
		case model.IndexTypeTag:
			m.MatchedTag = &hit
		case model.IndexTypeAttribute:
			m.MatchedAttribute = &hit
		}
	}
	return m
}

func makeIDFilter(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func reverseSegments(segs []segment) []segment {
	out := make([]segment, len(segs))
	for i, seg := range segs {
		out[len(segs)-1-i] = seg
	}
	return out
}

func trimPath(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	for len(p) > 0 && p[len(p)-1] == '/' {
		p = p[:len(p)-1]
	}
	return p
}
