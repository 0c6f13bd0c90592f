package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/store"
)

type storedDoc struct {
	doc        domain.Document
	entityType string
}

type index struct {
	fields map[string]domain.FieldMapping
	docs   map[string]storedDoc
}

// Store is an in-memory store.IndexStore used for local development and
// tests. It mirrors the remote store's semantics, including auto-creation of
// indices on document writes and not-found tolerance on deletes.
type Store struct {
	mu           sync.RWMutex
	indices      map[string]*index
	defaultIndex string
	healthy      bool
}

// New creates an empty in-memory store. defaultIndex may be empty; when set
// it is used by TestConnection the same way the remote client uses its
// configured default index.
func New(defaultIndex string) *Store {
	return &Store{
		indices:      make(map[string]*index),
		defaultIndex: defaultIndex,
		healthy:      true,
	}
}

// SetHealthy toggles the simulated reachability of the store.
func (s *Store) SetHealthy(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = healthy
}

func (s *Store) Ping(_ context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

func (s *Store) TestConnection(ctx context.Context) bool {
	if s.defaultIndex == "" {
		return s.Ping(ctx)
	}
	exists, err := s.IndexExists(ctx, domain.IndexHandle{IndexName: s.defaultIndex})
	return err == nil && exists
}

func (s *Store) CreateIndex(_ context.Context, handle domain.IndexHandle, fields []domain.FieldMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.healthy {
		return &store.OperationError{Op: "create_index", Handle: handle, Detail: "store unavailable"}
	}
	if _, ok := s.indices[handle.IndexName]; ok {
		return fmt.Errorf("create index %s: %w", handle.IndexName, store.ErrIndexExists)
	}

	idx := &index{
		fields: make(map[string]domain.FieldMapping, len(fields)),
		docs:   make(map[string]storedDoc),
	}
	for _, f := range fields {
		idx.fields[f.FieldName] = f
	}
	s.indices[handle.IndexName] = idx
	return nil
}

func (s *Store) IndexExists(_ context.Context, handle domain.IndexHandle) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.healthy {
		return false, &store.OperationError{Op: "index_exists", Handle: handle, Detail: "store unavailable"}
	}
	_, ok := s.indices[handle.IndexName]
	return ok, nil
}

func (s *Store) AddFieldsMapping(_ context.Context, handle domain.IndexHandle, fields []domain.FieldMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indices[handle.IndexName]
	if !ok {
		return &store.OperationError{Op: "add_fields_mapping", Handle: handle, StatusCode: 404, Detail: "no such index"}
	}
	// Last write wins per field name.
	for _, f := range fields {
		idx.fields[f.FieldName] = f
	}
	return nil
}

func (s *Store) DeleteMapping(_ context.Context, handle domain.IndexHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.indices[handle.IndexName]; !ok {
		return fmt.Errorf("delete mapping %s: %w", handle, store.ErrMappingNotFound)
	}
	delete(s.indices, handle.IndexName)
	return nil
}

func (s *Store) AddDocuments(_ context.Context, handle domain.IndexHandle, docs []domain.Document) ([]domain.DocumentResult, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.healthy {
		return nil, &store.OperationError{Op: "add_documents", Handle: handle, Detail: "store unavailable"}
	}

	// Document writes auto-create the index, matching the remote store.
	idx, ok := s.indices[handle.IndexName]
	if !ok {
		idx = &index{fields: make(map[string]domain.FieldMapping), docs: make(map[string]storedDoc)}
		s.indices[handle.IndexName] = idx
	}

	results := make([]domain.DocumentResult, 0, len(docs))
	for _, doc := range docs {
		idx.docs[doc.ID] = storedDoc{doc: doc, entityType: handle.EntityType}
		results = append(results, domain.DocumentResult{ID: doc.ID, Success: true})
	}
	return results, nil
}

func (s *Store) DeleteDocumentsFromIndex(_ context.Context, handle domain.IndexHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.healthy {
		return &store.OperationError{Op: "delete_documents", Handle: handle, Detail: "store unavailable"}
	}

	idx, ok := s.indices[handle.IndexName]
	if !ok {
		// Nothing to delete: the requested end-state already holds.
		return nil
	}
	for id, sd := range idx.docs {
		if sd.entityType == handle.EntityType {
			delete(idx.docs, id)
		}
	}
	return nil
}

func (s *Store) DeleteDocumentsByIDs(_ context.Context, handle domain.IndexHandle, ids []string) ([]domain.DocumentResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.healthy {
		return nil, &store.OperationError{Op: "delete_documents_by_ids", Handle: handle, Detail: "store unavailable"}
	}

	idx, ok := s.indices[handle.IndexName]
	results := make([]domain.DocumentResult, 0, len(ids))
	for _, id := range ids {
		if ok {
			delete(idx.docs, id)
		}
		// Absent documents count as success.
		results = append(results, domain.DocumentResult{ID: id, Success: true})
	}
	return results, nil
}

// DocumentCount reports how many documents of the handle's entity type the
// store holds. Test helper.
func (s *Store) DocumentCount(handle domain.IndexHandle) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.indices[handle.IndexName]
	if !ok {
		return 0
	}
	n := 0
	for _, sd := range idx.docs {
		if sd.entityType == handle.EntityType {
			n++
		}
	}
	return n
}
