package source

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/searchsync/pkg/httpclient"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func fastConfig() httpclient.Config {
	return httpclient.Config{
		Timeout:         2 * time.Second,
		MaxRetries:      1,
		RetryWaitMin:    time.Millisecond,
		RetryWaitMax:    5 * time.Millisecond,
		MaxConnsPerHost: 10,
	}
}

func TestFetchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/documents", r.URL.Path)
		require.Equal(t, "product", r.URL.Query().Get("entity_type"))
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "100", r.URL.Query().Get("page_size"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"data": [
				{"id": "41", "fields": {"name": "Widget", "price": 9.99}},
				{"id": "42", "fields": {"name": "Gadget"}}
			],
			"page": 2,
			"total_pages": 3,
			"total_count": 250
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, fastConfig(), 100, newTestLogger())

	page, err := c.FetchPage(context.Background(), "product", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 250, page.TotalCount)
	require.Len(t, page.Documents, 2)
	assert.Equal(t, "41", page.Documents[0].ID)
	assert.Equal(t, "Widget", page.Documents[0].Fields["name"])
}

func TestFetchPage_RetriesTransientFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data": [], "page": 1, "total_pages": 1, "total_count": 0}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, fastConfig(), 0, newTestLogger())

	page, err := c.FetchPage(context.Background(), "product", 1)
	require.NoError(t, err)
	assert.Empty(t, page.Documents)
	assert.Equal(t, 2, calls)
}

func TestFetchPage_DownstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"INVALID_INPUT","message":"unknown entity type"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, fastConfig(), 0, newTestLogger())

	_, err := c.FetchPage(context.Background(), "bogus", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown entity type")
}
