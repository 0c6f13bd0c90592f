package health

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/store"
	pkghealth "github.com/utafrali/searchsync/pkg/health"
)

// DefaultInterval is how often the background probe runs when no interval is
// configured.
const DefaultInterval = 15 * time.Second

// Status is the probe's last observation of the remote store. Reachability
// and index readiness are reported separately: a reachable store whose index
// was never created is alive but not ready to serve.
type Status struct {
	Reachable   bool      `json:"reachable"`
	IndexReady  bool      `json:"index_ready"`
	LastChecked time.Time `json:"last_checked"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Probe periodically verifies the remote store and caches the result so
// health endpoints never block on a slow store.
type Probe struct {
	store    store.IndexStore
	handle   *domain.IndexHandle
	interval time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	status Status
}

// NewProbe builds a probe. handle may be nil; without one, index readiness
// degrades to the store's permissive connection test, which only proves
// reachability.
func NewProbe(st store.IndexStore, handle *domain.IndexHandle, interval time.Duration, logger *slog.Logger) *Probe {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Probe{
		store:    st,
		handle:   handle,
		interval: interval,
		logger:   logger,
	}
}

// Check performs one probe cycle and records the observation.
func (p *Probe) Check(ctx context.Context) Status {
	now := time.Now().UTC()
	s := Status{LastChecked: now}

	s.Reachable = p.store.Ping(ctx)
	if s.Reachable {
		if p.handle != nil {
			ready, err := p.store.IndexExists(ctx, *p.handle)
			if err != nil {
				s.LastError = err.Error()
			}
			s.IndexReady = ready
		} else {
			s.IndexReady = p.store.TestConnection(ctx)
		}
	} else {
		s.LastError = "store unreachable"
	}

	p.mu.Lock()
	if s.Reachable {
		s.LastSuccess = now
	} else {
		s.LastSuccess = p.status.LastSuccess
	}
	p.status = s
	p.mu.Unlock()

	storeUp.Set(boolGauge(s.Reachable))
	indexReady.Set(boolGauge(s.IndexReady))

	if !s.Reachable || !s.IndexReady {
		p.logger.WarnContext(ctx, "store probe degraded",
			slog.Bool("reachable", s.Reachable),
			slog.Bool("index_ready", s.IndexReady),
			slog.String("error", s.LastError),
		)
	}
	return s
}

// Start runs the probe loop until the context ends. One check runs
// immediately so status is populated before the first tick.
func (p *Probe) Start(ctx context.Context) {
	p.Check(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// Status returns the last recorded observation without touching the store.
func (p *Probe) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// ReadinessChecker adapts the probe for the health endpoint registry. It
// reads the cached status so readiness polls stay cheap.
func (p *Probe) ReadinessChecker() pkghealth.Checker {
	return func(context.Context) error {
		s := p.Status()
		if !s.Reachable {
			return errors.New("index store unreachable")
		}
		if !s.IndexReady {
			return errors.New("index not ready")
		}
		return nil
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
