package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/health"
	"github.com/utafrali/searchsync/internal/source"
	"github.com/utafrali/searchsync/internal/store"
	gwsync "github.com/utafrali/searchsync/internal/sync"
	apperrors "github.com/utafrali/searchsync/pkg/errors"
	pkgkafka "github.com/utafrali/searchsync/pkg/kafka"
)

// Publisher emits gateway lifecycle events to interested downstream
// consumers. Satisfied by pkg/kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Gateway exposes the synchronization operations to the inbound surfaces
// (HTTP admin API and event consumers). It owns no index state; the remote
// store is the single source of truth for what is indexed.
type Gateway struct {
	store     store.IndexStore
	probe     *health.Probe
	catalog   source.Catalog
	policy    gwsync.RetryPolicy
	batchSize int
	publisher Publisher
	logger    *slog.Logger
}

// NewGateway wires the gateway. catalog may be nil when reindexing from the
// system of record is not configured.
func NewGateway(st store.IndexStore, probe *health.Probe, catalog source.Catalog, policy gwsync.RetryPolicy, batchSize int, logger *slog.Logger) *Gateway {
	return &Gateway{
		store:     st,
		probe:     probe,
		catalog:   catalog,
		policy:    policy,
		batchSize: batchSize,
		logger:    logger,
	}
}

// WithPublisher enables reindex-completion event publication. Without one,
// completion events are skipped.
func (g *Gateway) WithPublisher(p Publisher) *Gateway {
	g.publisher = p
	return g
}

// Sync validates and applies the bulk operations through a fresh
// coordinator. The returned result carries partial progress even when the
// error is non-nil.
func (g *Gateway) Sync(ctx context.Context, ops []domain.BulkOperation) (*gwsync.Result, error) {
	if len(ops) == 0 {
		return nil, apperrors.InvalidInput("no operations to sync")
	}
	for i, op := range ops {
		if err := validateOp(op); err != nil {
			return nil, apperrors.InvalidInput(fmt.Sprintf("operation %d: %v", i, err))
		}
	}

	coord := gwsync.New(g.store, g.policy, g.batchSize, g.logger)
	return coord.Run(ctx, ops)
}

// EnsureIndex creates the handle's index with the given mapping unless it
// already exists. The create/exists race against a concurrent caller is
// absorbed: losing the race still means the index exists, which is the goal.
func (g *Gateway) EnsureIndex(ctx context.Context, handle domain.IndexHandle, fields []domain.FieldMapping) (bool, error) {
	if handle.IndexName == "" {
		return false, apperrors.InvalidInput("index name is required")
	}

	exists, err := g.store.IndexExists(ctx, handle)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if err := g.store.CreateIndex(ctx, handle, fields); err != nil {
		if errors.Is(err, store.ErrIndexExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// AddFieldsMapping merges additional fields into an existing index schema.
func (g *Gateway) AddFieldsMapping(ctx context.Context, handle domain.IndexHandle, fields []domain.FieldMapping) error {
	if len(fields) == 0 {
		return apperrors.InvalidInput("no fields to map")
	}
	return g.store.AddFieldsMapping(ctx, handle, fields)
}

// DeleteMapping drops the index/mapping pair. A missing pair surfaces as a
// not-found error; unlike document deletes this is an administrative
// operation where absence signals a caller mistake.
func (g *Gateway) DeleteMapping(ctx context.Context, handle domain.IndexHandle) error {
	err := g.store.DeleteMapping(ctx, handle)
	if errors.Is(err, store.ErrMappingNotFound) {
		return apperrors.NotFound("mapping", handle.String())
	}
	return err
}

// Probe triggers one probe cycle and returns the fresh observation.
func (g *Gateway) Probe(ctx context.Context) health.Status {
	return g.probe.Check(ctx)
}

// ProbeStatus returns the cached observation without a store round trip.
func (g *Gateway) ProbeStatus() health.Status {
	return g.probe.Status()
}

// Reindex streams every catalog page for the handle's entity type into the
// store. Documents are upserted in place; removal of documents that vanished
// from the catalog is driven by delete events, not by reindexing.
func (g *Gateway) Reindex(ctx context.Context, handle domain.IndexHandle) (*gwsync.Result, error) {
	if g.catalog == nil {
		return nil, apperrors.Unavailable("no catalog source configured")
	}
	if handle.IndexName == "" || handle.EntityType == "" {
		return nil, apperrors.InvalidInput("index name and entity type are required")
	}

	total := &gwsync.Result{}
	coord := gwsync.New(g.store, g.policy, g.batchSize, g.logger)

	for page := 1; ; page++ {
		p, err := g.catalog.FetchPage(ctx, handle.EntityType, page)
		if err != nil {
			return total, fmt.Errorf("reindex %s: %w", handle, err)
		}
		if len(p.Documents) > 0 {
			result, err := coord.Run(ctx, []domain.BulkOperation{domain.Upsert(handle, p.Documents)})
			total.Upserted += result.Upserted
			if err != nil {
				return total, fmt.Errorf("reindex %s: %w", handle, err)
			}
		}
		if page >= p.TotalPages || len(p.Documents) == 0 {
			break
		}
	}

	g.logger.InfoContext(ctx, "reindex complete",
		slog.String("handle", handle.String()),
		slog.Int("documents", total.Upserted),
	)
	g.publishReindexed(ctx, handle, total.Upserted)
	return total, nil
}

// publishReindexed emits a completion event so downstream consumers can react
// to a rebuilt index. Publish failures are logged, not surfaced: the reindex
// itself already succeeded.
func (g *Gateway) publishReindexed(ctx context.Context, handle domain.IndexHandle, docs int) {
	if g.publisher == nil {
		return
	}

	evt, err := pkgkafka.NewEvent("index.reindexed", handle.String(), "index", "searchsync-gateway", map[string]any{
		"index_name":  handle.IndexName,
		"entity_type": handle.EntityType,
		"documents":   docs,
	})
	if err != nil {
		g.logger.WarnContext(ctx, "failed to build reindex event", slog.String("error", err.Error()))
		return
	}
	if err := g.publisher.Publish(ctx, pkgkafka.Topic("index", "reindexed"), evt); err != nil {
		g.logger.WarnContext(ctx, "failed to publish reindex event",
			slog.String("handle", handle.String()),
			slog.String("error", err.Error()),
		)
	}
}

func validateOp(op domain.BulkOperation) error {
	if op.Handle.IndexName == "" {
		return errors.New("index name is required")
	}
	if op.Handle.EntityType == "" {
		return errors.New("entity type is required")
	}

	switch op.Kind {
	case domain.OpUpsert:
		if len(op.Documents) == 0 {
			return errors.New("upsert requires documents")
		}
		for _, d := range op.Documents {
			if d.ID == "" {
				return errors.New("every document requires an id")
			}
		}
	case domain.OpDeleteByID:
		if len(op.IDs) == 0 {
			return errors.New("delete requires ids")
		}
		for _, id := range op.IDs {
			if id == "" {
				return errors.New("empty document id")
			}
		}
	case domain.OpDeleteAll:
		// No payload.
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
	return nil
}
