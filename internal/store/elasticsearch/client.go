package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/utafrali/searchsync/internal/connection"
	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/store"
)

// Client is the Elasticsearch-backed implementation of store.IndexStore.
// It holds no mutable state beyond the immutable connection descriptor and
// is safe for concurrent use.
type Client struct {
	es     *elasticsearch.Client
	desc   connection.Descriptor
	logger *slog.Logger
}

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// esBulkItem is one item result inside a bulk response.
type esBulkItem struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// esBulkResponse is the structure used to decode Elasticsearch bulk responses.
type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index  *esBulkItem `json:"index"`
		Delete *esBulkItem `json:"delete"`
	} `json:"items"`
}

// NewClient creates an Elasticsearch client from the connection descriptor.
func NewClient(desc connection.Descriptor, logger *slog.Logger) (*Client, error) {
	return NewClientWithTransport(desc, nil, logger)
}

// NewClientWithTransport creates an Elasticsearch client with a substitute
// HTTP transport. This is the dependency substitution point for tests: a
// fake transport stands in for the remote store.
func NewClientWithTransport(desc connection.Descriptor, transport http.RoundTripper, logger *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{fmt.Sprintf("%s://%s", desc.Scheme(), desc.Addr())},
		Transport: transport,
	}
	if desc.AuthEnabled() {
		cfg.Username = desc.Username()
		cfg.Password = desc.Password()
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to create client: %w", err)
	}

	return &Client{
		es:     es,
		desc:   desc,
		logger: logger,
	}, nil
}

// opCtx bounds every remote call by the descriptor's timeout so a stalled
// store cannot starve callers.
func (c *Client) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.desc.Timeout())
}

// Ping checks whether the store is reachable. It returns false on timeout or
// connection refusal rather than an error, since callers use it for routing
// decisions.
func (c *Client) Ping(ctx context.Context) bool {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		c.logger.DebugContext(ctx, "store ping failed", slog.String("error", err.Error()))
		return false
	}
	defer func() { _ = res.Body.Close() }()

	return !res.IsError()
}

// TestConnection checks the default index's existence when one is configured,
// otherwise it degrades to Ping. With no default index it returns true after
// a successful ping; callers needing a readiness signal per entity type
// should call IndexExists explicitly.
func (c *Client) TestConnection(ctx context.Context) bool {
	if c.desc.DefaultIndex() == "" {
		return c.Ping(ctx)
	}

	exists, err := c.IndexExists(ctx, domain.IndexHandle{IndexName: c.desc.DefaultIndex()})
	if err != nil {
		c.logger.DebugContext(ctx, "store connection test failed",
			slog.String("index", c.desc.DefaultIndex()),
			slog.String("error", err.Error()),
		)
		return false
	}
	return exists
}

// CreateIndex creates the handle's index with the given field mappings plus
// the gateway's bookkeeping fields. A pre-existing index fails with
// store.ErrIndexExists; callers wanting idempotence check IndexExists first.
func (c *Client) CreateIndex(ctx context.Context, handle domain.IndexHandle, fields []domain.FieldMapping) error {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	body, err := json.Marshal(map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]any{
			"properties": buildProperties(fields),
		},
	})
	if err != nil {
		return fmt.Errorf("create index: marshal mapping: %w", err)
	}

	res, err := c.es.Indices.Create(
		handle.IndexName,
		c.es.Indices.Create.WithBody(bytes.NewReader(body)),
		c.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return &store.OperationError{Op: "create_index", Handle: handle, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		errResp := decodeError(res.Body)
		if isAlreadyExists(res.StatusCode, errResp) {
			return fmt.Errorf("create index %s: %w", handle.IndexName, store.ErrIndexExists)
		}
		return &store.OperationError{
			Op:         "create_index",
			Handle:     handle,
			StatusCode: res.StatusCode,
			Detail:     errResp.detail(),
		}
	}

	c.logger.InfoContext(ctx, "index created",
		slog.String("index", handle.IndexName),
		slog.String("entity_type", handle.EntityType),
	)
	return nil
}

// IndexExists reports whether the handle's index exists.
func (c *Client) IndexExists(ctx context.Context, handle domain.IndexHandle) (bool, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	res, err := c.es.Indices.Exists(
		[]string{handle.IndexName},
		c.es.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return false, &store.OperationError{Op: "index_exists", Handle: handle, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, &store.OperationError{
			Op:         "index_exists",
			Handle:     handle,
			StatusCode: res.StatusCode,
			Detail:     res.Status(),
		}
	}
}

// AddFieldsMapping merges fields into the index's schema. The remote store
// applies last-write-wins per field name on overlapping calls.
func (c *Client) AddFieldsMapping(ctx context.Context, handle domain.IndexHandle, fields []domain.FieldMapping) error {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	body, err := json.Marshal(map[string]any{
		"properties": buildProperties(fields),
	})
	if err != nil {
		return fmt.Errorf("add fields mapping: marshal: %w", err)
	}

	res, err := c.es.Indices.PutMapping(
		[]string{handle.IndexName},
		bytes.NewReader(body),
		c.es.Indices.PutMapping.WithContext(ctx),
	)
	if err != nil {
		return &store.OperationError{Op: "add_fields_mapping", Handle: handle, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return &store.OperationError{
			Op:         "add_fields_mapping",
			Handle:     handle,
			StatusCode: res.StatusCode,
			Detail:     decodeError(res.Body).detail(),
		}
	}

	c.logger.InfoContext(ctx, "fields mapping updated",
		slog.String("index", handle.IndexName),
		slog.Int("field_count", len(fields)),
	)
	return nil
}

// DeleteMapping drops the handle's index/mapping pair. The pair is one
// lifecycle unit, so dropping the mapping drops the index. Absence fails
// with store.ErrMappingNotFound; this is an administrative operation, not a
// delete-style document operation, so not-found is surfaced.
func (c *Client) DeleteMapping(ctx context.Context, handle domain.IndexHandle) error {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	res, err := c.es.Indices.Delete(
		[]string{handle.IndexName},
		c.es.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return &store.OperationError{Op: "delete_mapping", Handle: handle, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("delete mapping %s: %w", handle, store.ErrMappingNotFound)
	}
	if res.IsError() {
		return &store.OperationError{
			Op:         "delete_mapping",
			Handle:     handle,
			StatusCode: res.StatusCode,
			Detail:     decodeError(res.Body).detail(),
		}
	}

	c.logger.InfoContext(ctx, "mapping deleted", slog.String("index", handle.IndexName))
	return nil
}

// AddDocuments sends a bulk NDJSON upsert and reports per-document outcomes.
func (c *Client) AddDocuments(ctx context.Context, handle domain.IndexHandle, docs []domain.Document) ([]domain.DocumentResult, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	var buf bytes.Buffer
	for i := range docs {
		action := map[string]any{
			"index": map[string]any{
				"_index": handle.IndexName,
				"_id":    docs[i].ID,
			},
		}
		if err := json.NewEncoder(&buf).Encode(action); err != nil {
			return nil, fmt.Errorf("add documents: encode action: %w", err)
		}
		if err := json.NewEncoder(&buf).Encode(documentBody(handle, docs[i])); err != nil {
			return nil, fmt.Errorf("add documents: encode document: %w", err)
		}
	}

	res, err := c.es.Bulk(
		bytes.NewReader(buf.Bytes()),
		c.es.Bulk.WithIndex(handle.IndexName),
		c.es.Bulk.WithContext(ctx),
	)
	if err != nil {
		return nil, &store.OperationError{Op: "add_documents", Handle: handle, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, &store.OperationError{
			Op:         "add_documents",
			Handle:     handle,
			StatusCode: res.StatusCode,
			Detail:     decodeError(res.Body).detail(),
		}
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return nil, &store.OperationError{Op: "add_documents", Handle: handle, Err: fmt.Errorf("decode response: %w", err)}
	}

	results := make([]domain.DocumentResult, 0, len(bulkResp.Items))
	for _, item := range bulkResp.Items {
		if item.Index == nil {
			continue
		}
		results = append(results, upsertResult(*item.Index))
	}

	c.logger.DebugContext(ctx, "bulk upsert sent",
		slog.String("index", handle.IndexName),
		slog.Int("count", len(docs)),
	)
	return results, nil
}

// DeleteDocumentsFromIndex deletes all documents of the handle's entity type
// via delete-by-query. A missing index is success: the target state already
// holds.
func (c *Client) DeleteDocumentsFromIndex(ctx context.Context, handle domain.IndexHandle) error {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	body, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"term": map[string]any{
				"entity_type": handle.EntityType,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete documents: marshal query: %w", err)
	}

	res, err := c.es.DeleteByQuery(
		[]string{handle.IndexName},
		bytes.NewReader(body),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithConflicts("proceed"),
	)
	if err != nil {
		return &store.OperationError{Op: "delete_documents", Handle: handle, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	// Not-found tolerance: a missing index or type means there is nothing
	// left to delete.
	if res.StatusCode == http.StatusNotFound {
		c.logger.DebugContext(ctx, "delete-by-query target absent, treating as success",
			slog.String("index", handle.IndexName),
			slog.String("entity_type", handle.EntityType),
		)
		return nil
	}
	if res.IsError() {
		return &store.OperationError{
			Op:         "delete_documents",
			Handle:     handle,
			StatusCode: res.StatusCode,
			Detail:     decodeError(res.Body).detail(),
		}
	}

	c.logger.InfoContext(ctx, "documents deleted by entity type",
		slog.String("index", handle.IndexName),
		slog.String("entity_type", handle.EntityType),
	)
	return nil
}

// DeleteDocumentsByIDs sends a bulk delete for the given ids. Per-id 404s
// count as success by the not-found tolerance rule.
func (c *Client) DeleteDocumentsByIDs(ctx context.Context, handle domain.IndexHandle, ids []string) ([]domain.DocumentResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	var buf bytes.Buffer
	for _, id := range ids {
		action := map[string]any{
			"delete": map[string]any{
				"_index": handle.IndexName,
				"_id":    id,
			},
		}
		if err := json.NewEncoder(&buf).Encode(action); err != nil {
			return nil, fmt.Errorf("delete documents by ids: encode action: %w", err)
		}
	}

	res, err := c.es.Bulk(
		bytes.NewReader(buf.Bytes()),
		c.es.Bulk.WithIndex(handle.IndexName),
		c.es.Bulk.WithContext(ctx),
	)
	if err != nil {
		return nil, &store.OperationError{Op: "delete_documents_by_ids", Handle: handle, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	// A missing index means every id is already absent.
	if res.StatusCode == http.StatusNotFound {
		results := make([]domain.DocumentResult, 0, len(ids))
		for _, id := range ids {
			results = append(results, domain.DocumentResult{ID: id, Success: true})
		}
		return results, nil
	}
	if res.IsError() {
		return nil, &store.OperationError{
			Op:         "delete_documents_by_ids",
			Handle:     handle,
			StatusCode: res.StatusCode,
			Detail:     decodeError(res.Body).detail(),
		}
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return nil, &store.OperationError{Op: "delete_documents_by_ids", Handle: handle, Err: fmt.Errorf("decode response: %w", err)}
	}

	results := make([]domain.DocumentResult, 0, len(bulkResp.Items))
	for _, item := range bulkResp.Items {
		if item.Delete == nil {
			continue
		}
		results = append(results, deleteResult(*item.Delete))
	}

	c.logger.DebugContext(ctx, "bulk delete sent",
		slog.String("index", handle.IndexName),
		slog.Int("count", len(ids)),
	)
	return results, nil
}

// buildProperties converts field mappings into an Elasticsearch properties
// object, always including the entity_type bookkeeping field used by
// delete-by-entity-type.
func buildProperties(fields []domain.FieldMapping) map[string]any {
	props := make(map[string]any, len(fields)+2)
	for _, f := range fields {
		prop := map[string]any{"type": f.Type}
		if f.Analyzer != "" {
			prop["analyzer"] = f.Analyzer
		}
		for k, v := range f.Options {
			prop[k] = v
		}
		props[f.FieldName] = prop
	}
	props["id"] = map[string]any{"type": "keyword"}
	props["entity_type"] = map[string]any{"type": "keyword"}
	return props
}

// documentBody flattens a document's fields into the indexed source, adding
// the id and entity_type bookkeeping fields. The caller's Document is never
// mutated.
func documentBody(handle domain.IndexHandle, doc domain.Document) map[string]any {
	body := make(map[string]any, len(doc.Fields)+2)
	for k, v := range doc.Fields {
		body[k] = v
	}
	body["id"] = doc.ID
	body["entity_type"] = handle.EntityType
	return body
}

func upsertResult(item esBulkItem) domain.DocumentResult {
	r := domain.DocumentResult{ID: item.ID, Success: item.Status < 300}
	if !r.Success {
		r.Error = itemError(item)
	}
	return r
}

func deleteResult(item esBulkItem) domain.DocumentResult {
	// 404 on delete means the document is already absent, which is the
	// requested end-state.
	r := domain.DocumentResult{ID: item.ID, Success: item.Status < 300 || item.Status == http.StatusNotFound}
	if !r.Success {
		r.Error = itemError(item)
	}
	return r
}

func itemError(item esBulkItem) string {
	if item.Error.Type != "" {
		return fmt.Sprintf("%s: %s", item.Error.Type, item.Error.Reason)
	}
	return fmt.Sprintf("status %d", item.Status)
}

func decodeError(body io.Reader) esErrorResponse {
	var errResp esErrorResponse
	_ = json.NewDecoder(body).Decode(&errResp)
	return errResp
}

func (e esErrorResponse) detail() string {
	if e.Error.Type == "" {
		return "unexpected error"
	}
	return fmt.Sprintf("%s: %s", e.Error.Type, e.Error.Reason)
}

func isAlreadyExists(status int, errResp esErrorResponse) bool {
	if status == http.StatusConflict {
		return true
	}
	return strings.Contains(errResp.Error.Type, "resource_already_exists")
}
