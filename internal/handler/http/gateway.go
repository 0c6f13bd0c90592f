package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/health"
	gwsync "github.com/utafrali/searchsync/internal/sync"
	"github.com/utafrali/searchsync/pkg/httputil"
	"github.com/utafrali/searchsync/pkg/validator"
)

// GatewayService is the service surface the HTTP handlers depend on.
type GatewayService interface {
	Sync(ctx context.Context, ops []domain.BulkOperation) (*gwsync.Result, error)
	EnsureIndex(ctx context.Context, handle domain.IndexHandle, fields []domain.FieldMapping) (bool, error)
	AddFieldsMapping(ctx context.Context, handle domain.IndexHandle, fields []domain.FieldMapping) error
	DeleteMapping(ctx context.Context, handle domain.IndexHandle) error
	Probe(ctx context.Context) health.Status
	ProbeStatus() health.Status
	Reindex(ctx context.Context, handle domain.IndexHandle) (*gwsync.Result, error)
}

// GatewayHandler handles the admin HTTP API.
type GatewayHandler struct {
	service GatewayService
	logger  *slog.Logger
}

func NewGatewayHandler(svc GatewayService, logger *slog.Logger) *GatewayHandler {
	return &GatewayHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// FieldMappingRequest is one field definition in a mapping request.
type FieldMappingRequest struct {
	FieldName string         `json:"field_name" validate:"required"`
	Type      string         `json:"type" validate:"required"`
	Analyzer  string         `json:"analyzer"`
	Options   map[string]any `json:"options"`
}

// EnsureIndexRequest is the JSON body for PUT mapping requests.
type EnsureIndexRequest struct {
	Fields []FieldMappingRequest `json:"fields" validate:"dive"`
}

// AddFieldsRequest is the JSON body for extending an index schema.
type AddFieldsRequest struct {
	Fields []FieldMappingRequest `json:"fields" validate:"required,min=1,dive"`
}

// DocumentRequest is one document in an upsert request.
type DocumentRequest struct {
	ID     string         `json:"id" validate:"required"`
	Fields map[string]any `json:"fields"`
}

// UpsertDocumentsRequest is the JSON body for document upserts.
type UpsertDocumentsRequest struct {
	Documents []DocumentRequest `json:"documents" validate:"required,min=1,max=10000,dive"`
}

// DeleteDocumentsRequest is the JSON body for document deletes. Either IDs
// or All must be set.
type DeleteDocumentsRequest struct {
	IDs []string `json:"ids"`
	All bool     `json:"all"`
}

// SyncResponse reports what a sync call accomplished.
type SyncResponse struct {
	Upserted int `json:"upserted"`
	Deleted  int `json:"deleted"`
	Purged   int `json:"purged"`
}

// --- Handlers ---

func handleFromRequest(r *http.Request) domain.IndexHandle {
	return domain.IndexHandle{
		IndexName:  chi.URLParam(r, "index"),
		EntityType: chi.URLParam(r, "entityType"),
	}
}

func toFieldMappings(fields []FieldMappingRequest) []domain.FieldMapping {
	out := make([]domain.FieldMapping, 0, len(fields))
	for _, f := range fields {
		out = append(out, domain.FieldMapping{
			FieldName: f.FieldName,
			Type:      f.Type,
			Analyzer:  f.Analyzer,
			Options:   f.Options,
		})
	}
	return out
}

// Probe handles GET /api/v1/probe. By default it triggers a fresh probe
// cycle; cached=true returns the last observation without a store call.
func (h *GatewayHandler) Probe(w http.ResponseWriter, r *http.Request) {
	var status health.Status
	if cached, _ := strconv.ParseBool(r.URL.Query().Get("cached")); cached {
		status = h.service.ProbeStatus()
	} else {
		status = h.service.Probe(r.Context())
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: status})
}

// EnsureIndex handles PUT /api/v1/indices/{index}/mappings/{entityType}.
func (h *GatewayHandler) EnsureIndex(w http.ResponseWriter, r *http.Request) {
	var req EnsureIndexRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	handle := handleFromRequest(r)
	created, err := h.service.EnsureIndex(r.Context(), handle, toFieldMappings(req.Fields))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, httputil.Response{Data: map[string]any{
		"index":       handle.IndexName,
		"entity_type": handle.EntityType,
		"created":     created,
	}})
}

// AddFields handles POST /api/v1/indices/{index}/mappings/{entityType}/fields.
func (h *GatewayHandler) AddFields(w http.ResponseWriter, r *http.Request) {
	var req AddFieldsRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	handle := handleFromRequest(r)
	if err := h.service.AddFieldsMapping(r.Context(), handle, toFieldMappings(req.Fields)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{
		"index":  handle.IndexName,
		"fields": len(req.Fields),
	}})
}

// DeleteMapping handles DELETE /api/v1/indices/{index}/mappings/{entityType}.
func (h *GatewayHandler) DeleteMapping(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteMapping(r.Context(), handleFromRequest(r)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpsertDocuments handles POST /api/v1/indices/{index}/documents/{entityType}.
func (h *GatewayHandler) UpsertDocuments(w http.ResponseWriter, r *http.Request) {
	var req UpsertDocumentsRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	docs := make([]domain.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		docs = append(docs, domain.Document{ID: d.ID, Fields: d.Fields})
	}

	result, err := h.service.Sync(r.Context(), []domain.BulkOperation{
		domain.Upsert(handleFromRequest(r), docs),
	})
	h.writeSyncResult(w, r, result, err)
}

// DeleteDocuments handles DELETE /api/v1/indices/{index}/documents/{entityType}.
func (h *GatewayHandler) DeleteDocuments(w http.ResponseWriter, r *http.Request) {
	var req DeleteDocumentsRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	handle := handleFromRequest(r)
	op := domain.DeleteByID(handle, req.IDs)
	if req.All {
		op = domain.DeleteAll(handle)
	}

	result, err := h.service.Sync(r.Context(), []domain.BulkOperation{op})
	h.writeSyncResult(w, r, result, err)
}

// Reindex handles POST /api/v1/indices/{index}/reindex/{entityType}. The
// call is synchronous; large catalogs go through the coordinator's batching
// so the response arrives when the last page lands.
func (h *GatewayHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Reindex(r.Context(), handleFromRequest(r))
	h.writeSyncResult(w, r, result, err)
}

// writeSyncResult renders a sync outcome. Partial failures respond 502 with
// the failed ids so the caller can resubmit exactly what is missing.
func (h *GatewayHandler) writeSyncResult(w http.ResponseWriter, r *http.Request, result *gwsync.Result, err error) {
	if err != nil {
		var incomplete *gwsync.IncompleteError
		if errors.As(err, &incomplete) {
			resp := httputil.Response{
				Error: &httputil.ErrorResponse{
					Code:    "SYNC_INCOMPLETE",
					Message: incomplete.Error(),
				},
			}
			if result != nil {
				resp.Data = map[string]any{
					"result":     SyncResponse{Upserted: result.Upserted, Deleted: result.Deleted, Purged: result.Purged},
					"failed_ids": incomplete.FailedIDs,
				}
			}
			httputil.WriteJSON(w, http.StatusBadGateway, resp)
			return
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: SyncResponse{Upserted: result.Upserted, Deleted: result.Deleted, Purged: result.Purged},
	})
}
