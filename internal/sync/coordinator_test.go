package sync

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/store"
)

var products = domain.IndexHandle{IndexName: "catalog_products", EntityType: "product"}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// fakeStore scripts per-call behavior for the bulk operations and records
// what the coordinator sent.
type fakeStore struct {
	addFunc    func(call int, docs []domain.Document) ([]domain.DocumentResult, error)
	deleteFunc func(call int, ids []string) ([]domain.DocumentResult, error)
	purgeFunc  func(call int) error

	addCalls    [][]domain.Document
	deleteCalls [][]string
	purgeCalls  int
}

func (f *fakeStore) Ping(context.Context) bool           { return true }
func (f *fakeStore) TestConnection(context.Context) bool { return true }
func (f *fakeStore) CreateIndex(context.Context, domain.IndexHandle, []domain.FieldMapping) error {
	return nil
}
func (f *fakeStore) IndexExists(context.Context, domain.IndexHandle) (bool, error) {
	return true, nil
}
func (f *fakeStore) AddFieldsMapping(context.Context, domain.IndexHandle, []domain.FieldMapping) error {
	return nil
}
func (f *fakeStore) DeleteMapping(context.Context, domain.IndexHandle) error { return nil }

func (f *fakeStore) AddDocuments(_ context.Context, _ domain.IndexHandle, docs []domain.Document) ([]domain.DocumentResult, error) {
	f.addCalls = append(f.addCalls, docs)
	if f.addFunc != nil {
		return f.addFunc(len(f.addCalls), docs)
	}
	return allSuccess(docIDs(docs)), nil
}

func (f *fakeStore) DeleteDocumentsByIDs(_ context.Context, _ domain.IndexHandle, ids []string) ([]domain.DocumentResult, error) {
	f.deleteCalls = append(f.deleteCalls, ids)
	if f.deleteFunc != nil {
		return f.deleteFunc(len(f.deleteCalls), ids)
	}
	return allSuccess(ids), nil
}

func (f *fakeStore) DeleteDocumentsFromIndex(context.Context, domain.IndexHandle) error {
	f.purgeCalls++
	if f.purgeFunc != nil {
		return f.purgeFunc(f.purgeCalls)
	}
	return nil
}

func allSuccess(ids []string) []domain.DocumentResult {
	results := make([]domain.DocumentResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, domain.DocumentResult{ID: id, Success: true})
	}
	return results
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		Backoff:      BackoffFixed,
		BaseInterval: time.Millisecond,
		MaxInterval:  time.Millisecond,
	}
}

func docs(ids ...string) []domain.Document {
	out := make([]domain.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Document{ID: id, Fields: map[string]any{"name": id}})
	}
	return out
}

func TestRun_UpsertAllSucceed(t *testing.T) {
	fs := &fakeStore{}
	c := New(fs, fastPolicy(), 0, newTestLogger())

	result, err := c.Run(context.Background(), []domain.BulkOperation{
		domain.Upsert(products, docs("1", "2", "3")),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Upserted)
	assert.Len(t, fs.addCalls, 1)
}

func TestRun_RetriesOnlyFailedSubset(t *testing.T) {
	fs := &fakeStore{
		addFunc: func(call int, d []domain.Document) ([]domain.DocumentResult, error) {
			if call == 1 {
				return []domain.DocumentResult{
					{ID: "1", Success: true},
					{ID: "2", Success: false, Error: "mapper_parsing_exception"},
					{ID: "3", Success: true},
				}, nil
			}
			return allSuccess(docIDs(d)), nil
		},
	}
	c := New(fs, fastPolicy(), 0, newTestLogger())

	result, err := c.Run(context.Background(), []domain.BulkOperation{
		domain.Upsert(products, docs("1", "2", "3")),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Upserted)

	require.Len(t, fs.addCalls, 2)
	require.Len(t, fs.addCalls[1], 1, "only the failed document is resent")
	assert.Equal(t, "2", fs.addCalls[1][0].ID)
}

func TestRun_ExhaustedRetriesReportIncomplete(t *testing.T) {
	fs := &fakeStore{
		addFunc: func(_ int, d []domain.Document) ([]domain.DocumentResult, error) {
			results := make([]domain.DocumentResult, 0, len(d))
			for _, doc := range d {
				ok := doc.ID != "2"
				r := domain.DocumentResult{ID: doc.ID, Success: ok}
				if !ok {
					r.Error = "version_conflict_engine_exception"
				}
				results = append(results, r)
			}
			return results, nil
		},
	}
	c := New(fs, fastPolicy(), 0, newTestLogger())

	result, err := c.Run(context.Background(), []domain.BulkOperation{
		domain.Upsert(products, docs("1", "2", "3")),
	})
	require.Error(t, err)
	assert.Equal(t, 2, result.Upserted)

	var incomplete *IncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []string{"2"}, incomplete.FailedIDs)
	assert.Equal(t, 3, incomplete.Attempts)
	assert.Len(t, fs.addCalls, 3)
}

func TestRun_TransportFailureRetriesWholeBatch(t *testing.T) {
	opErr := &store.OperationError{Op: "add_documents", Handle: products, Detail: "connection refused"}
	fs := &fakeStore{
		addFunc: func(call int, d []domain.Document) ([]domain.DocumentResult, error) {
			if call < 3 {
				return nil, opErr
			}
			return allSuccess(docIDs(d)), nil
		},
	}
	c := New(fs, fastPolicy(), 0, newTestLogger())

	result, err := c.Run(context.Background(), []domain.BulkOperation{
		domain.Upsert(products, docs("1", "2")),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Upserted)
	require.Len(t, fs.addCalls, 3)
	assert.Len(t, fs.addCalls[2], 2, "whole batch resent after transport failure")
}

func TestRun_PartitionsBatches(t *testing.T) {
	fs := &fakeStore{}
	c := New(fs, fastPolicy(), 2, newTestLogger())

	result, err := c.Run(context.Background(), []domain.BulkOperation{
		domain.Upsert(products, docs("1", "2", "3", "4", "5")),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, result.Upserted)

	require.Len(t, fs.addCalls, 3)
	assert.Len(t, fs.addCalls[0], 2)
	assert.Len(t, fs.addCalls[1], 2)
	assert.Len(t, fs.addCalls[2], 1)
}

func TestRun_DeleteByIDs(t *testing.T) {
	fs := &fakeStore{
		deleteFunc: func(call int, ids []string) ([]domain.DocumentResult, error) {
			if call == 1 {
				return []domain.DocumentResult{
					{ID: "1", Success: true},
					{ID: "2", Success: false, Error: "timeout"},
				}, nil
			}
			return allSuccess(ids), nil
		},
	}
	c := New(fs, fastPolicy(), 0, newTestLogger())

	result, err := c.Run(context.Background(), []domain.BulkOperation{
		domain.DeleteByID(products, []string{"1", "2"}),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Deleted)
	require.Len(t, fs.deleteCalls, 2)
	assert.Equal(t, []string{"2"}, fs.deleteCalls[1])
}

func TestRun_DeleteAllRetriesUntilSuccess(t *testing.T) {
	fs := &fakeStore{
		purgeFunc: func(call int) error {
			if call < 3 {
				return &store.OperationError{Op: "delete_documents", Handle: products, Detail: "unavailable"}
			}
			return nil
		},
	}
	c := New(fs, fastPolicy(), 0, newTestLogger())

	result, err := c.Run(context.Background(), []domain.BulkOperation{
		domain.DeleteAll(products),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Purged)
	assert.Equal(t, 3, fs.purgeCalls)
}

func TestRun_OperationsAreIndependent(t *testing.T) {
	fs := &fakeStore{
		purgeFunc: func(int) error {
			return &store.OperationError{Op: "delete_documents", Handle: products, Detail: "unavailable"}
		},
	}
	c := New(fs, fastPolicy(), 0, newTestLogger())

	result, err := c.Run(context.Background(), []domain.BulkOperation{
		domain.DeleteAll(products),
		domain.Upsert(products, docs("1")),
	})
	require.Error(t, err)
	assert.Equal(t, 1, result.Upserted, "later operations still run after an earlier one fails")

	var incomplete *IncompleteError
	assert.ErrorAs(t, err, &incomplete)
}

func TestRun_ContextCancelAbortsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fs := &fakeStore{
		addFunc: func(int, []domain.Document) ([]domain.DocumentResult, error) {
			cancel()
			return nil, &store.OperationError{Op: "add_documents", Handle: products, Detail: "unavailable"}
		},
	}
	policy := fastPolicy()
	policy.BaseInterval = time.Minute
	policy.MaxInterval = time.Minute
	c := New(fs, policy, 0, newTestLogger())

	start := time.Now()
	_, err := c.Run(ctx, []domain.BulkOperation{domain.Upsert(products, docs("1"))})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Len(t, fs.addCalls, 1, "no retry after cancellation")
}

func TestRetryPolicy_Delay(t *testing.T) {
	exp := RetryPolicy{
		MaxAttempts:  5,
		Backoff:      BackoffExponential,
		BaseInterval: 100 * time.Millisecond,
		MaxInterval:  500 * time.Millisecond,
	}
	assert.Equal(t, 100*time.Millisecond, exp.delay(1))
	assert.Equal(t, 200*time.Millisecond, exp.delay(2))
	assert.Equal(t, 400*time.Millisecond, exp.delay(3))
	assert.Equal(t, 500*time.Millisecond, exp.delay(4), "capped at the max interval")

	fixed := RetryPolicy{
		MaxAttempts:  3,
		Backoff:      BackoffFixed,
		BaseInterval: 100 * time.Millisecond,
	}
	assert.Equal(t, 100*time.Millisecond, fixed.delay(1))
	assert.Equal(t, 100*time.Millisecond, fixed.delay(3))
}

func TestParseBackoff(t *testing.T) {
	assert.Equal(t, BackoffFixed, ParseBackoff("FIXED"))
	assert.Equal(t, BackoffExponential, ParseBackoff("exponential"))
	assert.Equal(t, BackoffExponential, ParseBackoff("whatever"))
}

func TestRun_UnknownKind(t *testing.T) {
	c := New(&fakeStore{}, fastPolicy(), 0, newTestLogger())
	_, err := c.Run(context.Background(), []domain.BulkOperation{{Kind: "rebalance", Handle: products}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported operation kind")
}
