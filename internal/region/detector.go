// Package region decides provider ordering by probing whether the primary
// weather provider is reachable from this deployment.
package region

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/skyglance/skyglance/internal/cache"
	"github.com/skyglance/skyglance/internal/provider/resilience"
)

// DefaultProbeTimeout bounds the reachability probe.
const DefaultProbeTimeout = 2500 * time.Millisecond

// staleRetryInterval spaces background refreshes while a stale decision
// could not be replaced, for example because detection is disabled.
const staleRetryInterval = time.Minute

// Status is the persisted region decision.
type Status struct {
	PrimaryReachable bool      `json:"primaryReachable"`
	CheckedAt        time.Time `json:"checkedAt"`
}

// Config holds configuration for the detector.
type Config struct {
	// ProbeURL is requested with HEAD; any 2xx marks the primary reachable.
	ProbeURL string

	// Store persists the decision under cache.RegionKey.
	Store *cache.Store

	// Client performs the probe. If nil, a dedicated client is created.
	Client *resilience.Client

	// Timeout bounds the probe. Default: 2.5s.
	Timeout time.Duration

	// Enabled reports whether detection should run. When it returns false the
	// preference keeps its current value. Optional.
	Enabled func(ctx context.Context) bool

	// Logger for detection outcomes.
	Logger zerolog.Logger

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Detector holds the process-wide region preference.
// The zero preference is "primary reachable" until a detection completes.
type Detector struct {
	probeURL string
	store    *cache.Store
	client   *resilience.Client
	timeout  time.Duration
	enabled  func(ctx context.Context) bool
	logger   zerolog.Logger
	now      func() time.Time

	reachable  atomic.Bool
	refreshing atomic.Bool

	mu          sync.RWMutex
	checkedAt   time.Time
	nextRefresh time.Time
}

// NewDetector creates a new region detector.
func NewDetector(cfg Config) *Detector {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultProbeTimeout
	}

	client := cfg.Client
	if client == nil {
		client = resilience.NewClient(resilience.ClientConfig{
			Name:   "region-probe",
			Policy: resilience.Policy{Timeout: timeout, MaxRetries: 0},
		})
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	d := &Detector{
		probeURL: cfg.ProbeURL,
		store:    cfg.Store,
		client:   client,
		timeout:  timeout,
		enabled:  cfg.Enabled,
		logger:   cfg.Logger,
		now:      now,
	}
	d.reachable.Store(true)

	return d
}

// PrimaryReachable reports whether the primary provider should be tried first.
// Once the decision is older than cache.RegionTTL it starts one background
// Detect and keeps answering with the current decision meanwhile.
func (d *Detector) PrimaryReachable() bool {
	d.refreshIfStale()
	return d.reachable.Load()
}

func (d *Detector) refreshIfStale() {
	now := d.now()

	d.mu.RLock()
	stale := !d.checkedAt.IsZero() &&
		now.Sub(d.checkedAt) >= cache.RegionTTL &&
		!now.Before(d.nextRefresh)
	d.mu.RUnlock()

	if !stale || !d.refreshing.CompareAndSwap(false, true) {
		return
	}

	d.mu.Lock()
	d.nextRefresh = now.Add(staleRetryInterval)
	d.mu.Unlock()

	go func() {
		defer d.refreshing.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), 2*d.timeout)
		defer cancel()
		d.logger.Debug().Time("checked_at", d.Status().CheckedAt).Msg("region decision stale, re-detecting")
		d.Detect(ctx)
	}()
}

// Status returns the current decision. CheckedAt is zero until a detection completes.
func (d *Detector) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Status{
		PrimaryReachable: d.reachable.Load(),
		CheckedAt:        d.checkedAt,
	}
}

// Detect refreshes the preference. A fresh persisted decision is adopted
// without any network call. Detect never fails; a probe that cannot complete
// marks the primary unreachable.
func (d *Detector) Detect(ctx context.Context) {
	if d.enabled != nil && !d.enabled(ctx) {
		d.logger.Debug().Msg("region detection disabled")
		return
	}

	if d.store != nil {
		if status, ok := cache.Lookup[Status](ctx, d.store, cache.RegionKey); ok {
			d.adopt(status)
			return
		}
	}

	status := Status{
		PrimaryReachable: d.probe(ctx),
		CheckedAt:        d.now().UTC(),
	}
	d.adopt(status)

	d.logger.Info().
		Bool("primary_reachable", status.PrimaryReachable).
		Str("probe_url", d.probeURL).
		Msg("region detected")

	if d.store != nil {
		if err := d.store.Put(ctx, cache.RegionKey, status); err != nil {
			d.logger.Warn().Err(err).Msg("failed to persist region status")
		}
	}
}

func (d *Detector) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, d.probeURL, http.NoBody)
	if err != nil {
		d.logger.Warn().Err(err).Str("probe_url", d.probeURL).Msg("invalid region probe url")
		return false
	}

	resp, err := d.client.DoWithPolicy(ctx, req, resilience.Policy{Timeout: d.timeout, MaxRetries: 0})
	if err != nil {
		d.logger.Debug().Err(err).Msg("region probe failed")
		return false
	}
	_ = resp.Body.Close()

	return true
}

func (d *Detector) adopt(s Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reachable.Store(s.PrimaryReachable)
	d.checkedAt = s.CheckedAt
}
