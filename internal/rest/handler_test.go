package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attrix/internal/catalog"
	"attrix/internal/core"
	"attrix/internal/docs"
	"attrix/internal/index"
	"attrix/internal/registry"
	"attrix/internal/reindex"
	"attrix/internal/storage/memory"
	"attrix/internal/validator"
	"attrix/pkg/model"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.Default()
	store := memory.New()
	reg := registry.New(registry.DefaultConfig(), store, nil, logger)
	cat := catalog.New(catalog.DefaultConfig(), store, reg, nil, logger)
	v := validator.New(reg, cat)
	docStore := docs.New(store)
	idx := index.New(store, nil, logger)
	ri := reindex.New(store, docStore, v, idx, nil, logger)
	svc := core.New(store, reg, cat, v, docStore, idx, ri, nil, logger)

	mux := http.NewServeMux()
	NewHandler(svc, logger).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func registerAttribute(t *testing.T, srv *httptest.Server, key, dataType string) {
	t.Helper()
	resp, body := doJSON(t, srv, http.MethodPost, "/v1/acme/attributes",
		map[string]string{"key": key, "dataType": dataType})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, body := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestAttributeLifecycle(t *testing.T) {
	srv := newTestServer(t)
	registerAttribute(t, srv, "department", "STRING")

	resp, body := doJSON(t, srv, http.MethodGet, "/v1/acme/attributes/department", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var attr model.Attribute
	require.NoError(t, json.Unmarshal(body, &attr))
	assert.Equal(t, "department", attr.Key)
	assert.Equal(t, model.DataTypeString, attr.DataType)

	resp, body = doJSON(t, srv, http.MethodGet, "/v1/acme/attributes", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var attrs []model.Attribute
	require.NoError(t, json.Unmarshal(body, &attrs))
	assert.Len(t, attrs, 1)

	resp, _ = doJSON(t, srv, http.MethodDelete, "/v1/acme/attributes/department", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = doJSON(t, srv, http.MethodGet, "/v1/acme/attributes/department", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var apiErr APIError
	require.NoError(t, json.Unmarshal(body, &apiErr))
	assert.Equal(t, ErrCodeNotFound, apiErr.Code)
}

func TestRegisterAttributeBadDataType(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, srv, http.MethodPost, "/v1/acme/attributes",
		map[string]string{"key": "x", "dataType": "BLOB"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegisterAttributeConflict(t *testing.T) {
	srv := newTestServer(t)
	registerAttribute(t, srv, "department", "STRING")

	resp, body := doJSON(t, srv, http.MethodPost, "/v1/acme/attributes",
		map[string]string{"key": "department", "dataType": "STRING"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var apiErr APIError
	require.NoError(t, json.Unmarshal(body, &apiErr))
	assert.Equal(t, ErrCodeConflict, apiErr.Code)
}

func TestSchemaRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	registerAttribute(t, srv, "department", "STRING")

	resp, _ := doJSON(t, srv, http.MethodPut, "/v1/acme/schema", map[string]any{
		"name": "site",
		"rules": map[string]any{
			"required":                  []map[string]any{{"attributeKey": "department"}},
			"allowAdditionalAttributes": true,
		},
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := doJSON(t, srv, http.MethodGet, "/v1/acme/schema", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var schema model.Schema
	require.NoError(t, json.Unmarshal(body, &schema))
	assert.Equal(t, "site", schema.Name)
	require.Len(t, schema.Rules.Required, 1)
}

func TestSetSchemaValidationItems(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, srv, http.MethodPut, "/v1/acme/schema", map[string]any{
		"name": "site",
		"rules": map[string]any{
			"required": []map[string]any{{"attributeKey": "ghost"}},
		},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var apiErr APIError
	require.NoError(t, json.Unmarshal(body, &apiErr))
	assert.Equal(t, ErrCodeBadRequest, apiErr.Code)
	require.Len(t, apiErr.Items, 1)
	assert.Equal(t, "attribute 'ghost' not found", apiErr.Items[0].Message)
}

func TestDocumentLifecycle(t *testing.T) {
	srv := newTestServer(t)
	registerAttribute(t, srv, "department", "STRING")

	resp, body := doJSON(t, srv, http.MethodPut, "/v1/acme/documents/doc-1", map[string]any{
		"path": "projects/report.pdf",
		"tags": []map[string]any{{"key": "status", "value": "final"}},
		"attributes": []map[string]any{
			{"key": "department", "stringValue": "sales"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var attrs []model.DocumentAttribute
	require.NoError(t, json.Unmarshal(body, &attrs))
	require.Len(t, attrs, 1)
	assert.Equal(t, "doc-1", attrs[0].DocumentID)

	resp, body = doJSON(t, srv, http.MethodGet, "/v1/acme/documents/doc-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &attrs))
	assert.Len(t, attrs, 1)

	resp, _ = doJSON(t, srv, http.MethodDelete, "/v1/acme/documents/doc-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodGet, "/v1/acme/documents/doc-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestQueryGetAndPost(t *testing.T) {
	srv := newTestServer(t)
	registerAttribute(t, srv, "department", "STRING")

	for i := 1; i <= 3; i++ {
		resp, body := doJSON(t, srv, http.MethodPut, fmt.Sprintf("/v1/acme/documents/doc-%d", i), map[string]any{
			"tags": []map[string]any{{"key": "status", "value": "active"}},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	}

	resp, body := doJSON(t, srv, http.MethodGet,
		"/v1/acme/query?tags.0.key=status&tags.0.eq=active&limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var result model.SearchResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Len(t, result.Documents, 2)
	assert.NotEmpty(t, result.NextToken)

	resp, body = doJSON(t, srv, http.MethodPost, "/v1/acme/query", map[string]any{
		"tags":  []map[string]any{{"key": "status", "eq": "active"}},
		"limit": 10,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result = model.SearchResult{}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Len(t, result.Documents, 3)
	assert.Empty(t, result.NextToken)
}

func TestQueryBadToken(t *testing.T) {
	srv := newTestServer(t)
	resp, body := doJSON(t, srv, http.MethodPost, "/v1/acme/query", map[string]any{
		"tags":      []map[string]any{{"key": "status", "eq": "active"}},
		"nextToken": "garbage",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var apiErr APIError
	require.NoError(t, json.Unmarshal(body, &apiErr))
	assert.Equal(t, ErrCodeBadRequest, apiErr.Code)
}

func TestReindexEndpoint(t *testing.T) {
	srv := newTestServer(t)
	registerAttribute(t, srv, "region", "STRING")
	registerAttribute(t, srv, "year", "STRING")

	resp, body := doJSON(t, srv, http.MethodPut, "/v1/acme/documents/doc-1", map[string]any{
		"attributes": []map[string]any{
			{"key": "region", "stringValue": "emea"},
			{"key": "year", "stringValue": "2024"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, _ = doJSON(t, srv, http.MethodPut, "/v1/acme/schema", map[string]any{
		"name": "site",
		"rules": map[string]any{
			"optional": []map[string]any{
				{"attributeKey": "region"}, {"attributeKey": "year"},
			},
			"compositeKeys":             []map[string]any{{"attributeKeys": []string{"region", "year"}}},
			"allowAdditionalAttributes": true,
		},
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// empty body defaults to the attributes target
	resp, _ = doJSON(t, srv, http.MethodPost, "/v1/acme/documents/doc-1/reindex", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = doJSON(t, srv, http.MethodGet, "/v1/acme/documents/doc-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "region::year"))

	resp, _ = doJSON(t, srv, http.MethodPost, "/v1/acme/documents/doc-1/reindex",
		map[string]string{"target": "bogus"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteIndexEntry(t *testing.T) {
	srv := newTestServer(t)
	resp, body := doJSON(t, srv, http.MethodPut, "/v1/acme/documents/doc-1", map[string]any{
		"tags": []map[string]any{{"key": "status", "value": "active"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, _ = doJSON(t, srv, http.MethodDelete, "/v1/acme/index/tag/status%23active%23doc-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodDelete, "/v1/acme/index/tag/status%23active%23doc-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClassificationLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, srv, http.MethodPost, "/v1/acme/classifications", map[string]any{
		"name":  "person",
		"rules": map[string]any{"allowAdditionalAttributes": true},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var class model.Classification
	require.NoError(t, json.Unmarshal(body, &class))
	require.NotEmpty(t, class.ID)

	resp, _ = doJSON(t, srv, http.MethodPut, "/v1/acme/classifications/"+class.ID, map[string]any{
		"name":  "individual",
		"rules": map[string]any{"allowAdditionalAttributes": true},
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = doJSON(t, srv, http.MethodGet, "/v1/acme/classifications/"+class.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &class))
	assert.Equal(t, "individual", class.Name)

	resp, _ = doJSON(t, srv, http.MethodDelete, "/v1/acme/classifications/"+class.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodGet, "/v1/acme/classifications/"+class.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
