package resilience_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyglance/skyglance/internal/provider/resilience"
)

func fastPolicy(retries uint64) resilience.Policy {
	return resilience.Policy{
		Timeout:         time.Second,
		MaxRetries:      retries,
		InitialInterval: 10 * time.Millisecond,
	}
}

// lenientBreaker keeps the circuit closed for the duration of a test.
func lenientBreaker(name string) *resilience.CircuitBreakerConfig {
	cb := resilience.DefaultCircuitBreakerConfig(name)
	cb.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.Requests >= 100
	}
	return &cb
}

func newRequest(t *testing.T, method, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, http.NoBody)
	require.NoError(t, err)
	return req
}

func TestClient_SuccessfulRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.DefaultClientConfig("test"))

	resp, err := client.Do(newRequest(t, http.MethodGet, server.URL))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The body stays readable after the attempt deadline has been released.
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestClient_RetryWithExponentialBackoff(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.ClientConfig{
		Name:           "test-retry",
		CircuitBreaker: lenientBreaker("test-retry"),
	})

	policy := resilience.Policy{
		Timeout:         time.Second,
		MaxRetries:      2,
		InitialInterval: 50 * time.Millisecond,
	}

	start := time.Now()
	resp, err := client.DoWithPolicy(context.Background(), newRequest(t, http.MethodGet, server.URL), policy)
	elapsed := time.Since(start)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), attempts.Load(), "should have retried until success")

	// delay*2^0 + delay*2^1
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, 750*time.Millisecond)
}

func TestClient_ExhaustedRetriesReturnLastError(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.ClientConfig{
		Name:           "test-exhausted",
		CircuitBreaker: lenientBreaker("test-exhausted"),
	})

	resp, err := client.DoWithPolicy(context.Background(), newRequest(t, http.MethodGet, server.URL), fastPolicy(2))
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, int32(3), attempts.Load())

	var statusErr *resilience.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode, "should surface the last attempt's error")
}

func TestClient_ClientErrorsAreRetried(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.ClientConfig{Name: "test-4xx"})

	_, err := client.DoWithPolicy(context.Background(), newRequest(t, http.MethodGet, server.URL), fastPolicy(2))
	require.Error(t, err)

	var statusErr *resilience.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, int32(3), attempts.Load())

	// 4xx responses do not count against the breaker.
	assert.Equal(t, gobreaker.StateClosed, client.CircuitBreakerState())
}

func TestClient_ZeroRetriesMakesOneAttempt(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.ClientConfig{Name: "test-once"})

	_, err := client.DoWithPolicy(context.Background(), newRequest(t, http.MethodGet, server.URL), fastPolicy(0))
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_CircuitBreakerTrips(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	// Configure circuit breaker to trip after 5 requests with 50% failure
	cbConfig := resilience.CircuitBreakerConfig{
		Name:        "test-trip",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	}

	client := resilience.NewClient(resilience.ClientConfig{
		Name:           "test-trip",
		Policy:         fastPolicy(0),
		CircuitBreaker: &cbConfig,
	})

	for i := 0; i < 5; i++ {
		_, _ = client.Do(newRequest(t, http.MethodGet, server.URL))
	}

	assert.Equal(t, gobreaker.StateOpen, client.CircuitBreakerState())

	// Next request should fail immediately with ErrCircuitOpen, without retrying.
	before := attempts.Load()
	_, err := client.DoWithPolicy(context.Background(), newRequest(t, http.MethodGet, server.URL), fastPolicy(3))
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, before, attempts.Load())
}

func TestClient_TimeoutHandling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.ClientConfig{
		Name:           "test-timeout",
		CircuitBreaker: lenientBreaker("test-timeout"),
	})

	policy := resilience.Policy{
		Timeout:         100 * time.Millisecond,
		MaxRetries:      0,
		InitialInterval: 10 * time.Millisecond,
	}

	_, err := client.DoWithPolicy(context.Background(), newRequest(t, http.MethodGet, server.URL), policy)
	require.Error(t, err)

	var netErr *resilience.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout)
	assert.Contains(t, netErr.Error(), "timed out")
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.DefaultClientConfig("test-cancel"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	_, err = client.Do(req)
	assert.Error(t, err, "should be canceled")
}

func TestClient_CallerCancellationDoesNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(200 * time.Millisecond):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("test-caller-cancel")
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		_, err := client.DoWithPolicy(ctx, newRequest(t, http.MethodGet, server.URL), fastPolicy(2))
		cancel()

		require.Error(t, err)
		assert.ErrorIs(t, err, resilience.ErrCanceled)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}

	assert.Equal(t, gobreaker.StateClosed, client.CircuitBreakerState())

	health := registry.GetHealth("test-caller-cancel")
	require.NotNil(t, health)
	assert.Nil(t, health.LastFailureAt)
	assert.Zero(t, health.Counts.TotalFailures)
}

func TestClient_CallerCancellationDuringBackoff(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.DefaultClientConfig("test-backoff-cancel"))
	policy := resilience.Policy{Timeout: time.Second, MaxRetries: 2, InitialInterval: time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.DoWithPolicy(ctx, newRequest(t, http.MethodGet, server.URL), policy)

	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrCanceled)
	assert.EqualValues(t, 1, attempts.Load(), "no retry after the caller left")
}

func TestClient_AttemptTimeoutCountsAgainstBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(200 * time.Millisecond):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.DefaultClientConfig("test-attempt-timeout"))
	policy := resilience.Policy{Timeout: 20 * time.Millisecond, InitialInterval: time.Millisecond}

	for i := 0; i < 5; i++ {
		_, err := client.DoWithPolicy(context.Background(), newRequest(t, http.MethodGet, server.URL), policy)
		require.Error(t, err)
		assert.NotErrorIs(t, err, resilience.ErrCanceled)
	}

	assert.Equal(t, gobreaker.StateOpen, client.CircuitBreakerState())
}

func TestClient_SetsUserAgent(t *testing.T) {
	var userAgent atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.UserAgent())
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.ClientConfig{
		Name:      "test-ua",
		UserAgent: "SkyGlance/1.0",
	})

	_, err := client.Do(newRequest(t, http.MethodGet, server.URL))
	require.NoError(t, err)
	assert.Equal(t, "SkyGlance/1.0", userAgent.Load())
}

func TestClient_NetworkErrorHidesURL(t *testing.T) {
	client := resilience.NewClient(resilience.ClientConfig{Name: "test-dns"})

	// Port 0 is never listening.
	req := newRequest(t, http.MethodGet, "http://127.0.0.1:0/data?appid=secret")
	_, err := client.DoWithPolicy(context.Background(), req, fastPolicy(0))
	require.Error(t, err)

	var netErr *resilience.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.NotContains(t, err.Error(), "secret")
}

func TestDefaultPolicy(t *testing.T) {
	p := resilience.DefaultPolicy()

	assert.Equal(t, 8*time.Second, p.Timeout)
	assert.Equal(t, uint64(2), p.MaxRetries)
	assert.Equal(t, time.Second, p.InitialInterval)

	geo := resilience.GeocodingPolicy()
	assert.Less(t, geo.Timeout, p.Timeout)
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	cfg := resilience.DefaultCircuitBreakerConfig("test")

	assert.Equal(t, "test", cfg.Name)
	assert.Equal(t, uint32(1), cfg.MaxRequests)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.NotNil(t, cfg.ReadyToTrip)
	assert.NotNil(t, cfg.IsSuccessful)
}

func TestDefaultReadyToTrip(t *testing.T) {
	tests := []struct {
		name     string
		counts   gobreaker.Counts
		expected bool
	}{
		{
			name:     "no requests",
			counts:   gobreaker.Counts{},
			expected: false,
		},
		{
			name:     "not enough requests",
			counts:   gobreaker.Counts{Requests: 4, TotalFailures: 4},
			expected: false,
		},
		{
			name:     "enough requests but low failure rate",
			counts:   gobreaker.Counts{Requests: 10, TotalFailures: 4},
			expected: false,
		},
		{
			name:     "enough requests and high failure rate",
			counts:   gobreaker.Counts{Requests: 10, TotalFailures: 5},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, resilience.DefaultReadyToTrip(tt.counts))
		})
	}
}

func TestDefaultIsSuccessful(t *testing.T) {
	assert.True(t, resilience.DefaultIsSuccessful(nil))
	assert.True(t, resilience.DefaultIsSuccessful(&resilience.StatusError{StatusCode: http.StatusNotFound}))
	assert.False(t, resilience.DefaultIsSuccessful(&resilience.StatusError{StatusCode: http.StatusBadGateway}))
	assert.False(t, resilience.DefaultIsSuccessful(&resilience.NetworkError{Err: io.ErrUnexpectedEOF}))
	assert.True(t, resilience.DefaultIsSuccessful(fmt.Errorf("%w: %w", resilience.ErrCanceled, context.Canceled)))
}

func TestStatusError(t *testing.T) {
	err := &resilience.StatusError{StatusCode: http.StatusInternalServerError}
	assert.Contains(t, err.Error(), "Internal Server Error")
	assert.Contains(t, err.Error(), "500")
}
