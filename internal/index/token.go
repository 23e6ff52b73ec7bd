package index

import (
	"encoding/base64"
	"encoding/json"

	"github.com/cespare/xxhash/v2"

	"attrix/pkg/model"
)

// pageToken is the decoded form of a pagination cursor. Hash binds the
// token to the query it was issued for; SortKey is the last (or first, for
// previous tokens) sort key of the page it continues from.
type pageToken struct {
	Hash    uint64 `json:"h"`
	SortKey string `json:"k"`
	Back    bool   `json:"b,omitempty"`
}

// queryHash canonicalizes the criteria a token is bound to. Pagination
// fields are excluded so the hash is stable across pages.
func queryHash(tenant string, q model.QueryCriteria) uint64 {
	q.NextToken = ""
	q.PreviousToken = ""
	q.Limit = 0
	data, _ := json.Marshal(q)

	h := xxhash.New()
	_, _ = h.WriteString(tenant)
	_, _ = h.WriteString("|")
	_, _ = h.Write(data)
	return h.Sum64()
}

// encodeToken renders an opaque cursor.
func encodeToken(t pageToken) string {
	data, _ := json.Marshal(t)
	return base64.RawURLEncoding.EncodeToString(data)
}

// decodeToken parses a cursor and verifies it belongs to the query
// identified by hash. A malformed or cross-query token is a validation
// error.
func decodeToken(raw string, hash uint64) (pageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return pageToken{}, model.ErrBadToken
	}
	var t pageToken
	if err := json.Unmarshal(data, &t); err != nil {
		return pageToken{}, model.ErrBadToken
	}
	if t.Hash != hash {
		return pageToken{}, model.ErrBadToken
	}
	return t, nil
}
