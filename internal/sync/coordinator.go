package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/store"
)

// DefaultMaxBatchSize caps how many documents travel in one store call.
const DefaultMaxBatchSize = 500

// Backoff strategies for the retry policy.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// RetryPolicy controls how failed store calls are retried. Retries apply to
// the failed subset of a batch only; documents that already succeeded are
// never resent.
type RetryPolicy struct {
	MaxAttempts  int
	Backoff      string
	BaseInterval time.Duration
	MaxInterval  time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		Backoff:      BackoffExponential,
		BaseInterval: 100 * time.Millisecond,
		MaxInterval:  5 * time.Second,
	}
}

// delay computes the pause before the given retry attempt (1-based).
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseInterval
	if p.Backoff == BackoffExponential {
		for i := 1; i < attempt; i++ {
			d *= 2
			if p.MaxInterval > 0 && d >= p.MaxInterval {
				return p.MaxInterval
			}
		}
	}
	if p.MaxInterval > 0 && d > p.MaxInterval {
		return p.MaxInterval
	}
	return d
}

// IncompleteError reports documents that remained failed after the retry
// budget was spent. The successful part of the batch is already applied; the
// caller decides whether to resubmit the failed ids.
type IncompleteError struct {
	Handle    domain.IndexHandle
	FailedIDs []string
	Attempts  int
	Err       error
}

func (e *IncompleteError) Error() string {
	msg := fmt.Sprintf("sync incomplete for %s: %d documents failed after %d attempts",
		e.Handle, len(e.FailedIDs), e.Attempts)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IncompleteError) Unwrap() error { return e.Err }

// Result summarizes one coordinator run. Counts cover documents that reached
// the requested end-state; failures are reported through IncompleteError.
type Result struct {
	Upserted int
	Deleted  int
	Purged   int // delete-all operations completed
}

// Coordinator drives batched, retrying synchronization of bulk operations
// against the index store. A coordinator is cheap and stateless between
// runs; the service layer builds one per sync call.
type Coordinator struct {
	store        store.IndexStore
	policy       RetryPolicy
	maxBatchSize int
	logger       *slog.Logger
}

func New(st store.IndexStore, policy RetryPolicy, maxBatchSize int, logger *slog.Logger) *Coordinator {
	if policy.MaxAttempts < 1 {
		policy = DefaultRetryPolicy()
	}
	if maxBatchSize < 1 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &Coordinator{
		store:        st,
		policy:       policy,
		maxBatchSize: maxBatchSize,
		logger:       logger,
	}
}

// Run applies the operations in order. Operations are independent: a failure
// in one does not stop the rest. All per-document failures that survive the
// retry budget are collected into joined IncompleteErrors alongside the
// partial Result.
func (c *Coordinator) Run(ctx context.Context, ops []domain.BulkOperation) (*Result, error) {
	result := &Result{}
	var errs []error

	for _, op := range ops {
		var err error
		switch op.Kind {
		case domain.OpUpsert:
			err = c.runUpsert(ctx, op, result)
		case domain.OpDeleteByID:
			err = c.runDeleteByIDs(ctx, op, result)
		case domain.OpDeleteAll:
			err = c.runDeleteAll(ctx, op, result)
		default:
			err = fmt.Errorf("unsupported operation kind %q", op.Kind)
		}
		if err != nil {
			if ctx.Err() != nil {
				errs = append(errs, err)
				return result, errors.Join(errs...)
			}
			errs = append(errs, err)
		}
	}

	return result, errors.Join(errs...)
}

func (c *Coordinator) runUpsert(ctx context.Context, op domain.BulkOperation, result *Result) error {
	var incomplete []error

	for _, batch := range partitionDocs(op.Documents, c.maxBatchSize) {
		synced, err := c.syncBatch(ctx, op.Handle, batch)
		result.Upserted += synced
		if err != nil {
			incomplete = append(incomplete, err)
		}
	}
	return errors.Join(incomplete...)
}

// syncBatch pushes one batch, retrying only the documents that failed.
func (c *Coordinator) syncBatch(ctx context.Context, handle domain.IndexHandle, batch []domain.Document) (int, error) {
	pending := batch
	synced := 0
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			retriesTotal.WithLabelValues(string(domain.OpUpsert)).Inc()
			if err := c.pause(ctx, attempt-1); err != nil {
				return synced, c.incomplete(handle, docIDs(pending), attempt-1, err)
			}
		}

		results, err := c.store.AddDocuments(ctx, handle, pending)
		if err != nil {
			// Transport-level failure: the whole remaining batch is retried.
			lastErr = err
			c.logger.WarnContext(ctx, "bulk upsert attempt failed",
				slog.String("handle", handle.String()),
				slog.Int("attempt", attempt),
				slog.Int("pending", len(pending)),
				slog.String("error", err.Error()),
			)
			continue
		}

		var failed []domain.Document
		byID := docsByID(pending)
		for _, r := range results {
			if r.Success {
				synced++
				continue
			}
			if doc, ok := byID[r.ID]; ok {
				failed = append(failed, doc)
			}
			lastErr = errors.New(r.Error)
		}
		if len(failed) == 0 {
			documentsTotal.WithLabelValues(string(domain.OpUpsert), "success").Add(float64(len(batch)))
			return synced, nil
		}
		pending = failed
	}

	documentsTotal.WithLabelValues(string(domain.OpUpsert), "success").Add(float64(synced))
	documentsTotal.WithLabelValues(string(domain.OpUpsert), "failure").Add(float64(len(pending)))
	return synced, c.incomplete(handle, docIDs(pending), c.policy.MaxAttempts, lastErr)
}

func (c *Coordinator) runDeleteByIDs(ctx context.Context, op domain.BulkOperation, result *Result) error {
	var incomplete []error

	for _, batch := range partitionIDs(op.IDs, c.maxBatchSize) {
		deleted, err := c.deleteBatch(ctx, op.Handle, batch)
		result.Deleted += deleted
		if err != nil {
			incomplete = append(incomplete, err)
		}
	}
	return errors.Join(incomplete...)
}

func (c *Coordinator) deleteBatch(ctx context.Context, handle domain.IndexHandle, batch []string) (int, error) {
	pending := batch
	deleted := 0
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			retriesTotal.WithLabelValues(string(domain.OpDeleteByID)).Inc()
			if err := c.pause(ctx, attempt-1); err != nil {
				return deleted, c.incomplete(handle, pending, attempt-1, err)
			}
		}

		results, err := c.store.DeleteDocumentsByIDs(ctx, handle, pending)
		if err != nil {
			lastErr = err
			c.logger.WarnContext(ctx, "bulk delete attempt failed",
				slog.String("handle", handle.String()),
				slog.Int("attempt", attempt),
				slog.Int("pending", len(pending)),
				slog.String("error", err.Error()),
			)
			continue
		}

		var failed []string
		for _, r := range results {
			if r.Success {
				deleted++
				continue
			}
			failed = append(failed, r.ID)
			lastErr = errors.New(r.Error)
		}
		if len(failed) == 0 {
			documentsTotal.WithLabelValues(string(domain.OpDeleteByID), "success").Add(float64(len(batch)))
			return deleted, nil
		}
		pending = failed
	}

	documentsTotal.WithLabelValues(string(domain.OpDeleteByID), "success").Add(float64(deleted))
	documentsTotal.WithLabelValues(string(domain.OpDeleteByID), "failure").Add(float64(len(pending)))
	return deleted, c.incomplete(handle, pending, c.policy.MaxAttempts, lastErr)
}

func (c *Coordinator) runDeleteAll(ctx context.Context, op domain.BulkOperation, result *Result) error {
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			retriesTotal.WithLabelValues(string(domain.OpDeleteAll)).Inc()
			if err := c.pause(ctx, attempt-1); err != nil {
				return c.incomplete(op.Handle, nil, attempt-1, err)
			}
		}

		if err := c.store.DeleteDocumentsFromIndex(ctx, op.Handle); err != nil {
			lastErr = err
			c.logger.WarnContext(ctx, "delete-all attempt failed",
				slog.String("handle", op.Handle.String()),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.Purged++
		return nil
	}

	return c.incomplete(op.Handle, nil, c.policy.MaxAttempts, lastErr)
}

// pause sleeps for the policy's backoff delay, aborting early when the
// context ends.
func (c *Coordinator) pause(ctx context.Context, retry int) error {
	timer := time.NewTimer(c.policy.delay(retry))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Coordinator) incomplete(handle domain.IndexHandle, ids []string, attempts int, err error) error {
	c.logger.ErrorContext(context.Background(), "sync incomplete",
		slog.String("handle", handle.String()),
		slog.Int("failed", len(ids)),
		slog.Int("attempts", attempts),
	)
	return &IncompleteError{Handle: handle, FailedIDs: ids, Attempts: attempts, Err: err}
}

func partitionDocs(docs []domain.Document, size int) [][]domain.Document {
	var batches [][]domain.Document
	for start := 0; start < len(docs); start += size {
		end := min(start+size, len(docs))
		batches = append(batches, docs[start:end])
	}
	return batches
}

func partitionIDs(ids []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batches = append(batches, ids[start:end])
	}
	return batches
}

func docIDs(docs []domain.Document) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids
}

func docsByID(docs []domain.Document) map[string]domain.Document {
	m := make(map[string]domain.Document, len(docs))
	for _, d := range docs {
		m[d.ID] = d
	}
	return m
}

// ParseBackoff normalizes a configured backoff name, defaulting to
// exponential for unknown values.
func ParseBackoff(name string) string {
	if strings.EqualFold(name, BackoffFixed) {
		return BackoffFixed
	}
	return BackoffExponential
}
