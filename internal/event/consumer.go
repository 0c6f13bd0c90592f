package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/searchsync/internal/domain"
	gwsync "github.com/utafrali/searchsync/internal/sync"
	"github.com/utafrali/searchsync/pkg/kafka"
)

// Topics consumed from the catalog service.
var (
	TopicDocumentUpdated = kafka.Topic("document", "updated")
	TopicDocumentDeleted = kafka.Topic("document", "deleted")
)

// Syncer is the slice of the gateway the event handlers need.
type Syncer interface {
	Sync(ctx context.Context, ops []domain.BulkOperation) (*gwsync.Result, error)
}

// Handlers translates catalog change events into sync operations. Handler
// errors propagate to the consumer's retry and dead-letter machinery; the
// handlers themselves do not retry.
type Handlers struct {
	gateway Syncer
	logger  *slog.Logger
}

func NewHandlers(gateway Syncer, logger *slog.Logger) *Handlers {
	return &Handlers{gateway: gateway, logger: logger}
}

type documentUpdatedPayload struct {
	Handle    domain.IndexHandle `json:"handle"`
	Documents []domain.Document  `json:"documents"`
}

type documentDeletedPayload struct {
	Handle domain.IndexHandle `json:"handle"`
	IDs    []string           `json:"ids,omitempty"`
	All    bool               `json:"all,omitempty"`
}

// HandleDocumentUpdated upserts the changed documents into the index.
func (h *Handlers) HandleDocumentUpdated(ctx context.Context, event *kafka.Event) error {
	var payload documentUpdatedPayload
	if err := event.UnmarshalData(&payload); err != nil {
		return fmt.Errorf("decode document.updated payload: %w", err)
	}

	result, err := h.gateway.Sync(ctx, []domain.BulkOperation{
		domain.Upsert(payload.Handle, payload.Documents),
	})
	if err != nil {
		return fmt.Errorf("sync document.updated %s: %w", event.AggregateID, err)
	}

	h.logger.InfoContext(ctx, "document update event applied",
		slog.String("event_id", event.EventID),
		slog.String("handle", payload.Handle.String()),
		slog.Int("upserted", result.Upserted),
	)
	return nil
}

// HandleDocumentDeleted removes documents from the index. With All set the
// whole entity type is purged; otherwise only the listed ids are removed.
func (h *Handlers) HandleDocumentDeleted(ctx context.Context, event *kafka.Event) error {
	var payload documentDeletedPayload
	if err := event.UnmarshalData(&payload); err != nil {
		return fmt.Errorf("decode document.deleted payload: %w", err)
	}

	op := domain.DeleteByID(payload.Handle, payload.IDs)
	if payload.All {
		op = domain.DeleteAll(payload.Handle)
	}

	result, err := h.gateway.Sync(ctx, []domain.BulkOperation{op})
	if err != nil {
		return fmt.Errorf("sync document.deleted %s: %w", event.AggregateID, err)
	}

	h.logger.InfoContext(ctx, "document delete event applied",
		slog.String("event_id", event.EventID),
		slog.String("handle", payload.Handle.String()),
		slog.Int("deleted", result.Deleted),
		slog.Int("purged", result.Purged),
	)
	return nil
}
