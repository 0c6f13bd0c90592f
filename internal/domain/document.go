package domain

// IndexHandle identifies one logical index/mapping pair in the remote store.
// The index name is immutable once created; renaming an index means creating
// a new one and swapping aliases, which is outside this gateway's scope.
type IndexHandle struct {
	IndexName  string `json:"index_name"`
	EntityType string `json:"entity_type"`
}

// String returns a human-readable form used in logs and error messages.
func (h IndexHandle) String() string {
	return h.IndexName + "/" + h.EntityType
}

// Document is a single searchable document owned by the caller. The gateway
// never mutates a Document, only transmits it.
type Document struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// DocumentResult reports the per-document outcome of a bulk operation.
// Bulk operations are partially failable by nature, so the store reports a
// result list instead of a single pass/fail.
type DocumentResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// FieldMapping describes one field of an index schema. It is sent once per
// index/entity lifecycle and stored remotely; this gateway keeps no local
// mapping cache.
type FieldMapping struct {
	FieldName string         `json:"field_name"`
	Type      string         `json:"type"`
	Analyzer  string         `json:"analyzer,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// OperationKind enumerates the supported bulk mutation kinds.
type OperationKind string

const (
	OpUpsert     OperationKind = "upsert"
	OpDeleteByID OperationKind = "delete_by_id"
	OpDeleteAll  OperationKind = "delete_all"
)

// BulkOperation is a batched set of document mutations targeting one index
// handle. Instances are transient: constructed per sync call and discarded
// once the call completes or permanently fails.
type BulkOperation struct {
	Kind      OperationKind `json:"kind"`
	Handle    IndexHandle   `json:"handle"`
	Documents []Document    `json:"documents,omitempty"`
	IDs       []string      `json:"ids,omitempty"`
}

// Upsert builds a bulk upsert operation for the given documents.
func Upsert(handle IndexHandle, docs []Document) BulkOperation {
	return BulkOperation{Kind: OpUpsert, Handle: handle, Documents: docs}
}

// DeleteByID builds a bulk delete operation for the given document ids.
func DeleteByID(handle IndexHandle, ids []string) BulkOperation {
	return BulkOperation{Kind: OpDeleteByID, Handle: handle, IDs: ids}
}

// DeleteAll builds an operation that removes every document of the handle's
// entity type.
func DeleteAll(handle IndexHandle) BulkOperation {
	return BulkOperation{Kind: OpDeleteAll, Handle: handle}
}
