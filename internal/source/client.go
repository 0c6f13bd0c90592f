package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/pkg/httpclient"
)

// DefaultPageSize is how many documents one catalog page carries.
const DefaultPageSize = 500

// Page is one page of catalog documents.
type Page struct {
	Documents  []domain.Document
	Page       int
	TotalPages int
	TotalCount int
}

// Catalog fetches documents from the system of record. Implemented by
// Client; the service layer depends on this interface so reindex tests can
// script pages.
type Catalog interface {
	FetchPage(ctx context.Context, entityType string, page int) (*Page, error)
}

// Client reads the catalog service's export API page by page. Calls go
// through a retrying HTTP client behind a circuit breaker so a flapping
// catalog cannot stall a reindex loop indefinitely.
type Client struct {
	baseURL  string
	http     *httpclient.CircuitBreakerClient
	pageSize int
	logger   *slog.Logger
}

func NewClient(baseURL string, cfg httpclient.Config, pageSize int, logger *slog.Logger) *Client {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	cb := httpclient.NewCircuitBreakerClient(
		httpclient.New(cfg),
		httpclient.DefaultCircuitBreakerConfig("catalog"),
		logger,
	)
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		http:     cb,
		pageSize: pageSize,
		logger:   logger,
	}
}

type documentPayload struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

type pageResponse struct {
	Data       []documentPayload `json:"data"`
	Page       int               `json:"page"`
	TotalPages int               `json:"total_pages"`
	TotalCount int               `json:"total_count"`
}

// FetchPage retrieves one page of documents for the entity type. Pages are
// 1-based; a page beyond the last returns an empty document list.
func (c *Client) FetchPage(ctx context.Context, entityType string, page int) (*Page, error) {
	q := url.Values{}
	q.Set("entity_type", entityType)
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(c.pageSize))

	resp, err := c.http.Get(ctx, fmt.Sprintf("%s/api/v1/documents?%s", c.baseURL, q.Encode()))
	if err != nil {
		return nil, fmt.Errorf("fetch catalog page %d: %w", page, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, httpclient.ParseResponseError(resp, "catalog")
	}

	var body pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode catalog page %d: %w", page, err)
	}

	docs := make([]domain.Document, 0, len(body.Data))
	for _, d := range body.Data {
		docs = append(docs, domain.Document{ID: d.ID, Fields: d.Fields})
	}

	c.logger.DebugContext(ctx, "catalog page fetched",
		slog.String("entity_type", entityType),
		slog.Int("page", page),
		slog.Int("documents", len(docs)),
	)

	return &Page{
		Documents:  docs,
		Page:       body.Page,
		TotalPages: body.TotalPages,
		TotalCount: body.TotalCount,
	}, nil
}
