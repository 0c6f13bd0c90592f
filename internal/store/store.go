package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/utafrali/searchsync/internal/domain"
)

// State-conflict errors on administrative operations. They are not retried
// automatically; the caller decides.
var (
	// ErrIndexExists is returned by CreateIndex when the store reports a
	// conflict. CreateIndex is deliberately not idempotent: callers that want
	// idempotence check IndexExists first (or use the service-level
	// EnsureIndex composition).
	ErrIndexExists = errors.New("index already exists")

	// ErrMappingNotFound is returned by DeleteMapping when the target
	// index/mapping pair does not exist.
	ErrMappingNotFound = errors.New("mapping not found")
)

// OperationError reports a remote call that failed for a reason other than
// not-found: auth failure, malformed query, timeout. It is retryable per the
// sync coordinator's policy.
type OperationError struct {
	Op         string
	Handle     domain.IndexHandle
	StatusCode int
	Detail     string
	Err        error
}

func (e *OperationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.Handle, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("store %s %s: status %d: %s", e.Op, e.Handle, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("store %s %s: %s", e.Op, e.Handle, e.Detail)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// IndexStore is the gateway's view of the remote inverted-index store.
// Implementations must be safe for concurrent use: every operation is an
// independent remote call with no shared mutable client state beyond the
// immutable connection handle.
//
// Not-found tolerance: any "resource not found" condition from the remote
// store, when the requested end-state is "resource absent" (the delete
// operations), is classified as success rather than surfaced as an error.
type IndexStore interface {
	// Ping issues a lightweight liveness call bounded by the connection
	// timeout. It returns false on timeout or connection refusal rather than
	// an error, since callers use it for routing decisions.
	Ping(ctx context.Context) bool

	// TestConnection checks the default index's existence when one is
	// configured; otherwise it degrades to Ping. Note the permissive
	// behavior: with no default index configured it returns true after a
	// bare ping, conflating "store reachable" with "store ready". Callers
	// needing a readiness signal should use IndexExists explicitly.
	TestConnection(ctx context.Context) bool

	// CreateIndex creates the index with the given field mappings. A
	// conflict with a pre-existing index fails with ErrIndexExists.
	CreateIndex(ctx context.Context, handle domain.IndexHandle, fields []domain.FieldMapping) error

	// IndexExists reports whether the handle's index exists.
	IndexExists(ctx context.Context, handle domain.IndexHandle) (bool, error)

	// AddFieldsMapping merges fields into the index's schema. Last write
	// wins per field name when called twice with overlapping fields.
	AddFieldsMapping(ctx context.Context, handle domain.IndexHandle, fields []domain.FieldMapping) error

	// DeleteMapping drops the handle's index/mapping pair. The pair is one
	// lifecycle unit, so dropping the mapping drops the index with it.
	// Fails with ErrMappingNotFound when absent.
	DeleteMapping(ctx context.Context, handle domain.IndexHandle) error

	// AddDocuments sends a bulk upsert and reports per-document outcomes.
	AddDocuments(ctx context.Context, handle domain.IndexHandle, docs []domain.Document) ([]domain.DocumentResult, error)

	// DeleteDocumentsFromIndex deletes all documents of the handle's entity
	// type. A missing index or type is success: the target state ("no
	// documents of this type") already holds.
	DeleteDocumentsFromIndex(ctx context.Context, handle domain.IndexHandle) error

	// DeleteDocumentsByIDs deletes the given documents, reporting
	// per-document outcomes. Already-absent ids count as success.
	DeleteDocumentsByIDs(ctx context.Context, handle domain.IndexHandle, ids []string) ([]domain.DocumentResult, error)
}
