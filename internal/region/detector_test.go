package region_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyglance/skyglance/internal/cache"
	"github.com/skyglance/skyglance/internal/region"
)

type probeServer struct {
	*httptest.Server
	hits   atomic.Int32
	method atomic.Value
}

func newProbeServer(t *testing.T, status int, delay time.Duration) *probeServer {
	t.Helper()
	ps := &probeServer{}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.hits.Add(1)
		ps.method.Store(r.Method)
		if delay > 0 {
			time.Sleep(delay)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(ps.Close)
	return ps
}

func newStore() *cache.Store {
	return cache.New(cache.Config{Logger: zerolog.Nop()})
}

func TestDetector_DefaultsToReachable(t *testing.T) {
	d := region.NewDetector(region.Config{ProbeURL: "http://unused", Logger: zerolog.Nop()})

	assert.True(t, d.PrimaryReachable())
	assert.True(t, d.Status().CheckedAt.IsZero())
}

func TestDetector_ProbeOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		delay     time.Duration
		reachable bool
	}{
		{"2xx is reachable", http.StatusOK, 0, true},
		{"no content is reachable", http.StatusNoContent, 0, true},
		{"server error is unreachable", http.StatusInternalServerError, 0, false},
		{"forbidden is unreachable", http.StatusForbidden, 0, false},
		{"timeout is unreachable", http.StatusOK, 300 * time.Millisecond, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newProbeServer(t, tt.status, tt.delay)

			d := region.NewDetector(region.Config{
				ProbeURL: server.URL,
				Store:    newStore(),
				Timeout:  100 * time.Millisecond,
				Logger:   zerolog.Nop(),
			})
			d.Detect(context.Background())

			assert.Equal(t, tt.reachable, d.PrimaryReachable())
			assert.Equal(t, int32(1), server.hits.Load(), "probe must not retry")
			assert.Equal(t, http.MethodHead, server.method.Load())
			assert.False(t, d.Status().CheckedAt.IsZero())
		})
	}
}

func TestDetector_UnreachableHost(t *testing.T) {
	d := region.NewDetector(region.Config{
		ProbeURL: "http://127.0.0.1:0",
		Logger:   zerolog.Nop(),
	})
	d.Detect(context.Background())

	assert.False(t, d.PrimaryReachable())
}

func TestDetector_AdoptsCachedDecision(t *testing.T) {
	server := newProbeServer(t, http.StatusInternalServerError, 0)
	store := newStore()

	first := region.NewDetector(region.Config{ProbeURL: server.URL, Store: store, Logger: zerolog.Nop()})
	first.Detect(context.Background())
	require.False(t, first.PrimaryReachable())
	require.Equal(t, int32(1), server.hits.Load())

	// A second detector sharing the store adopts the persisted decision.
	second := region.NewDetector(region.Config{ProbeURL: server.URL, Store: store, Logger: zerolog.Nop()})
	second.Detect(context.Background())

	assert.False(t, second.PrimaryReachable())
	assert.Equal(t, int32(1), server.hits.Load(), "no network call while decision is fresh")
	assert.Equal(t, first.Status().CheckedAt.Unix(), second.Status().CheckedAt.Unix())
}

func TestDetector_RedetectsAfterTTL(t *testing.T) {
	server := newProbeServer(t, http.StatusOK, 0)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := cache.New(cache.Config{Logger: zerolog.Nop(), Now: clock})

	d := region.NewDetector(region.Config{ProbeURL: server.URL, Store: store, Logger: zerolog.Nop(), Now: clock})

	d.Detect(context.Background())
	d.Detect(context.Background())
	assert.Equal(t, int32(1), server.hits.Load())

	now = now.Add(cache.RegionTTL)
	d.Detect(context.Background())
	assert.Equal(t, int32(2), server.hits.Load())
}

func TestDetector_Disabled(t *testing.T) {
	server := newProbeServer(t, http.StatusInternalServerError, 0)

	d := region.NewDetector(region.Config{
		ProbeURL: server.URL,
		Store:    newStore(),
		Enabled:  func(context.Context) bool { return false },
		Logger:   zerolog.Nop(),
	})
	d.Detect(context.Background())

	assert.True(t, d.PrimaryReachable())
	assert.Equal(t, int32(0), server.hits.Load())
}

func TestDetector_StaleDecisionRefreshesInBackground(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	var nowNanos atomic.Int64
	nowNanos.Store(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())
	clock := func() time.Time { return time.Unix(0, nowNanos.Load()).UTC() }
	store := cache.New(cache.Config{Logger: zerolog.Nop(), Now: clock})

	d := region.NewDetector(region.Config{ProbeURL: server.URL, Store: store, Logger: zerolog.Nop(), Now: clock})
	d.Detect(context.Background())
	require.False(t, d.PrimaryReachable())

	// Fresh decision: reads stay local.
	status.Store(http.StatusOK)
	for i := 0; i < 3; i++ {
		assert.False(t, d.PrimaryReachable())
	}
	assert.Equal(t, int32(1), hits.Load())

	nowNanos.Add(int64(cache.RegionTTL))
	d.PrimaryReachable()

	assert.Eventually(t, d.PrimaryReachable, time.Second, 10*time.Millisecond,
		"stale decision should refresh without an explicit Detect")
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, clock(), d.Status().CheckedAt)
}

func TestDetector_StaleRefreshIsThrottledWhileDisabled(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var enabled atomic.Bool
	enabled.Store(true)
	var nowNanos atomic.Int64
	nowNanos.Store(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())
	clock := func() time.Time { return time.Unix(0, nowNanos.Load()).UTC() }

	d := region.NewDetector(region.Config{
		ProbeURL: server.URL,
		Store:    cache.New(cache.Config{Logger: zerolog.Nop(), Now: clock}),
		Enabled:  func(context.Context) bool { return enabled.Load() },
		Logger:   zerolog.Nop(),
		Now:      clock,
	})
	d.Detect(context.Background())
	require.Equal(t, int32(1), hits.Load())

	enabled.Store(false)
	nowNanos.Add(int64(cache.RegionTTL))
	for i := 0; i < 50; i++ {
		assert.True(t, d.PrimaryReachable())
	}
	time.Sleep(50 * time.Millisecond)

	// Still inside the retry interval of the disabled attempt.
	enabled.Store(true)
	d.PrimaryReachable()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), hits.Load())

	nowNanos.Add(int64(2 * time.Minute))
	d.PrimaryReachable()
	assert.Eventually(t, func() bool { return hits.Load() == 2 }, time.Second, 10*time.Millisecond)
}
