package elasticsearch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/searchsync/internal/connection"
	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/store"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// newTestClient points a client at a fake store server. The product header
// is required or the official client rejects every response.
func newTestClient(t *testing.T, defaultIndex string, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	desc, err := connection.Build(connection.Options{
		Hostname:     u.Hostname(),
		Port:         port,
		Timeout:      2 * time.Second,
		DefaultIndex: defaultIndex,
	})
	require.NoError(t, err)

	c, err := NewClient(desc, newTestLogger())
	require.NoError(t, err)
	return c, srv
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestPing(t *testing.T) {
	c, _ := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	assert.True(t, c.Ping(context.Background()))
}

func TestPing_Unreachable(t *testing.T) {
	c, srv := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv.Close()
	assert.False(t, c.Ping(context.Background()))
}

func TestTestConnection_NoDefaultIndexDegradesToPing(t *testing.T) {
	var sawHead bool
	c, _ := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead && r.URL.Path != "/" {
			sawHead = true
		}
		w.WriteHeader(http.StatusOK)
	})

	assert.True(t, c.TestConnection(context.Background()))
	assert.False(t, sawHead, "no index existence check expected without a default index")
}

func TestTestConnection_DefaultIndexChecked(t *testing.T) {
	c, _ := newTestClient(t, "catalog_products", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/catalog_products", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	assert.True(t, c.TestConnection(context.Background()))
}

func TestTestConnection_DefaultIndexMissing(t *testing.T) {
	c, _ := newTestClient(t, "catalog_products", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	assert.False(t, c.TestConnection(context.Background()))
}

func TestCreateIndex(t *testing.T) {
	handle := domain.IndexHandle{IndexName: "catalog_products", EntityType: "product"}

	var body string
	c, _ := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/catalog_products", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		writeJSON(w, http.StatusOK, `{"acknowledged":true}`)
	})

	fields := []domain.FieldMapping{
		{FieldName: "name", Type: "text", Analyzer: "standard"},
		{FieldName: "sku", Type: "keyword"},
	}
	require.NoError(t, c.CreateIndex(context.Background(), handle, fields))

	assert.Contains(t, body, `"name"`)
	assert.Contains(t, body, `"analyzer":"standard"`)
	assert.Contains(t, body, `"entity_type"`)
}

func TestCreateIndex_Conflict(t *testing.T) {
	handle := domain.IndexHandle{IndexName: "catalog_products", EntityType: "product"}

	c, _ := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest,
			`{"error":{"type":"resource_already_exists_exception","reason":"index [catalog_products] already exists"},"status":400}`)
	})

	err := c.CreateIndex(context.Background(), handle, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrIndexExists)
}

func TestCreateIndex_ServerError(t *testing.T) {
	handle := domain.IndexHandle{IndexName: "catalog_products", EntityType: "product"}

	c, _ := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError,
			`{"error":{"type":"server_error","reason":"boom"},"status":500}`)
	})

	err := c.CreateIndex(context.Background(), handle, nil)
	require.Error(t, err)

	var opErr *store.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "create_index", opErr.Op)
	assert.Equal(t, http.StatusInternalServerError, opErr.StatusCode)
}

func TestIndexExists(t *testing.T) {
	handle := domain.IndexHandle{IndexName: "catalog_products", EntityType: "product"}

	c, _ := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	exists, err := c.IndexExists(context.Background(), handle)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestIndexExists_Missing(t *testing.T) {
	handle := domain.IndexHandle{IndexName: "catalog_products", EntityType: "product"}

	c, _ := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	exists, err := c.IndexExists(context.Background(), handle)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAddFieldsMapping(t *testing.T) {
	handle := domain.IndexHandle{IndexName: "catalog_products", EntityType: "product"}

	var body string
	c, _ := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/catalog_products/_mapping", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		writeJSON(w, http.StatusOK, `{"acknowledged":true}`)
	})

	err := c.AddFieldsMapping(context.Background(), handle, []domain.FieldMapping{
		{FieldName: "price", Type: "double"},
	})
	require.NoError(t, err)
	assert.Contains(t, body, `"price"`)
}

func TestDeleteMapping(t *testing.T) {
	handle := domain.IndexHandle{IndexName: "catalog_products", EntityType: "product"}

	c, _ := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		writeJSON(w, http.StatusOK, `{"acknowledged":true}`)
	})
	require.NoError(t, c.DeleteMapping(context.Background(), handle))
}

func TestDeleteMapping_NotFound(t *testing.T) {
	handle := domain.IndexHandle{IndexName: "catalog_products", EntityType: "product"}

	c, _ := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound,
			`{"error":{"type":"index_not_found_exception","reason":"no such index"},"status":404}`)
	})

	err := c.DeleteMapping(context.Background(), handle)
	assert.ErrorIs(t, err, store.ErrMappingNotFound)
}

func TestAddDocuments(t *testing.T) {
	handle := domain.IndexHandle{IndexName: "catalog_products", EntityType: "product"}

	var ndjson string
	c, _ := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		ndjson = string(b)
		writeJSON(w, http.StatusOK, `{
			"errors": false,
			"items": [
				{"index": {"_id": "1", "status": 201}},
				{"index": {"_id": "2", "status": 200}}
			]
		}`)
	})

	docs := []domain.Document{
		{ID: "1", Fields: map[string]any{"name": "Widget"}},
		{ID: "2", Fields: map[string]any{"name": "Gadget"}},
	}
	results, err := c.AddDocuments(context.Background(), handle, docs)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Success)
		assert.Empty(t, r.Error)
	}

	// Every document line carries the bookkeeping fields.
	assert.Contains(t, ndjson, `"entity_type":"product"`)
	assert.Equal(t, 2, strings.Count(ndjson, `"entity_type"`))
}

func TestAddDocuments_PartialFailure(t *testing.T) {
	handle := domain.IndexHandle{IndexName: "catalog_products", EntityType: "product"}

	c, _ := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{
			"errors": true,
			"items": [
				{"index": {"_id": "1", "status": 201}},
				{"index": {"_id": "2", "status": 400, "error": {"type": "mapper_parsing_exception", "reason": "bad field"}}},
				{"index": {"_id": "3", "status": 201}}
			]
		}`)
	})

	docs := []domain.Document{
		{ID: "1", Fields: map[string]any{"name": "a"}},
		{ID: "2", Fields: map[string]any{"name": "b"}},
		{ID: "3", Fields: map[string]any{"name": "c"}},
	}
	results, err := c.AddDocuments(context.Background(), handle, docs)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "mapper_parsing_exception")
	assert.True(t, results[2].Success)
}

func TestAddDocuments_Empty(t *testing.T) {
	handle := domain.IndexHandle{IndexName: "catalog_products", EntityType: "product"}

	c, _ := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty batch")
	})
	results, err := c.AddDocuments(context.Background(), handle, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteDocumentsByIDs_AbsentIDsSucceed(t *testing.T) {
	handle := domain.IndexHandle{IndexName: "catalog_products", EntityType: "product"}

	c, _ := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{
			"errors": true,
			"items": [
				{"delete": {"_id": "1", "status": 200}},
				{"delete": {"_id": "2", "status": 404}}
			]
		}`)
	})

	results, err := c.DeleteDocumentsByIDs(context.Background(), handle, []string{"1", "2"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success, "deleting an absent document reaches the requested end-state")
}

func TestDeleteDocumentsByIDs_MissingIndexSucceeds(t *testing.T) {
	handle := domain.IndexHandle{IndexName: "catalog_products", EntityType: "product"}

	c, _ := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound,
			`{"error":{"type":"index_not_found_exception","reason":"no such index"},"status":404}`)
	})

	results, err := c.DeleteDocumentsByIDs(context.Background(), handle, []string{"1", "2", "3"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Success)
	}
}

func TestDeleteDocumentsFromIndex(t *testing.T) {
	handle := domain.IndexHandle{IndexName: "catalog_products", EntityType: "product"}

	var body string
	c, _ := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/catalog_products/_delete_by_query", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		writeJSON(w, http.StatusOK, `{"deleted": 42}`)
	})

	require.NoError(t, c.DeleteDocumentsFromIndex(context.Background(), handle))
	assert.Contains(t, body, `"entity_type":"product"`)
}

func TestDeleteDocumentsFromIndex_MissingIndexSucceeds(t *testing.T) {
	handle := domain.IndexHandle{IndexName: "catalog_products", EntityType: "product"}

	c, _ := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound,
			`{"error":{"type":"index_not_found_exception","reason":"no such index"},"status":404}`)
	})

	require.NoError(t, c.DeleteDocumentsFromIndex(context.Background(), handle))
}

func TestOperationError_WrapsTransportFailure(t *testing.T) {
	handle := domain.IndexHandle{IndexName: "catalog_products", EntityType: "product"}

	c, srv := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv.Close()

	_, err := c.AddDocuments(context.Background(), handle, []domain.Document{{ID: "1"}})
	require.Error(t, err)

	var opErr *store.OperationError
	assert.True(t, errors.As(err, &opErr))
}
