package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// Predefined errors for resilient operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrCanceled wraps the caller's context error when the caller gave up
	// before the upstream answered. It never counts against the provider.
	ErrCanceled = errors.New("request canceled by caller")
)

// Policy is the timeout and retry budget applied to one call.
// Call sites tune it: geocoding uses shorter timeouts than forecasts.
type Policy struct {
	// Timeout bounds each individual attempt, including reading the body.
	Timeout time.Duration

	// MaxRetries is the number of additional attempts after the first one.
	// Zero means a single attempt.
	MaxRetries uint64

	// InitialInterval is the wait before the first retry. Later retries wait
	// InitialInterval * 2^attempt.
	InitialInterval time.Duration
}

// DefaultPolicy returns the default policy: 8s per attempt, 2 retries, 1s base delay.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:         8 * time.Second,
		MaxRetries:      2,
		InitialInterval: time.Second,
	}
}

// GeocodingPolicy returns the shorter policy used for geocoding lookups.
func GeocodingPolicy() Policy {
	return Policy{
		Timeout:         3 * time.Second,
		MaxRetries:      2,
		InitialInterval: time.Second,
	}
}

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies this client for circuit breaker naming and the registry.
	Name string

	// Policy is applied by Do. DoWithPolicy overrides it per call.
	// Zero Timeout and InitialInterval fall back to DefaultPolicy values.
	Policy Policy

	// MaxInterval caps a single backoff wait.
	// Default: 30 seconds
	MaxInterval time.Duration

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Registry receives success/failure reports. Optional.
	Registry *Registry

	// UserAgent is set on requests that do not carry one already.
	UserAgent string

	// Transport overrides the underlying round tripper (tests, proxies).
	Transport http.RoundTripper
}

// DefaultClientConfig returns sensible defaults for the resilient client.
func DefaultClientConfig(name string) ClientConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:           name,
		Policy:         DefaultPolicy(),
		MaxInterval:    30 * time.Second,
		CircuitBreaker: &cbConfig,
	}
}

// Client is a resilient HTTP client with circuit breaker and retry logic.
type Client struct {
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker[*http.Response]
	config         ClientConfig
}

// NewClient creates a new resilient HTTP client.
func NewClient(cfg ClientConfig) *Client {
	defaults := DefaultPolicy()
	if cfg.Policy.Timeout == 0 {
		cfg.Policy.Timeout = defaults.Timeout
	}
	if cfg.Policy.InitialInterval == 0 {
		cfg.Policy.InitialInterval = defaults.InitialInterval
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 30 * time.Second
	}

	cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
	}
	cb := NewCircuitBreaker[*http.Response](cbConfig) //nolint:bodyclose // type param, not response

	c := &Client{
		// Deadlines are enforced per attempt through the request context.
		httpClient:     &http.Client{Transport: cfg.Transport},
		circuitBreaker: cb,
		config:         cfg,
	}

	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}

	return c
}

// Name returns the client name.
func (c *Client) Name() string {
	return c.config.Name
}

// Do executes an HTTP request with the client's default policy.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithPolicy(req.Context(), req, c.config.Policy)
}

// DoWithPolicy executes an HTTP request under the given policy.
//
// Every network error, timeout and non-2xx status is a failed attempt. While
// attempts remain the client waits InitialInterval * 2^attempt and tries again;
// after the last attempt the last error is returned. An open circuit fails fast
// with ErrCircuitOpen. The returned response body is fully buffered, so each
// attempt's deadline is released before DoWithPolicy returns.
func (c *Client) DoWithPolicy(ctx context.Context, req *http.Request, p Policy) (*http.Response, error) {
	if p.Timeout == 0 {
		p.Timeout = c.config.Policy.Timeout
	}
	if p.InitialInterval == 0 {
		p.InitialInterval = c.config.Policy.InitialInterval
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0 // Unlimited, we control retries via WithMaxRetries

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, p.MaxRetries), ctx)

	var resp *http.Response
	operation := func() error {
		r, err := c.circuitBreaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // body is buffered
			return c.attempt(ctx, req, p.Timeout)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			if errors.Is(err, ErrCanceled) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		// Retry returns the bare context error when the caller leaves mid-backoff.
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) && !errors.Is(err, ErrCanceled) {
			err = fmt.Errorf("%w: %w", ErrCanceled, ctxErr)
		}
		if !errors.Is(err, ErrCanceled) {
			c.recordFailure(err)
		}
		return nil, err
	}

	c.recordSuccess()
	return resp, nil
}

// attempt performs one request under its own deadline. The deadline's cancel
// func runs on every path before returning.
func (c *Client) attempt(ctx context.Context, req *http.Request, timeout time.Duration) (*http.Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqClone := req.Clone(attemptCtx)
	if c.config.UserAgent != "" && reqClone.Header.Get("User-Agent") == "" {
		reqClone.Header.Set("User-Agent", c.config.UserAgent)
	}

	r, err := c.httpClient.Do(reqClone)
	if err != nil {
		return nil, attemptError(ctx, err)
	}

	body, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return nil, attemptError(ctx, err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if r.StatusCode < 200 || r.StatusCode > 299 {
		return nil, &StatusError{StatusCode: r.StatusCode}
	}

	return r, nil
}

// attemptError separates the caller giving up (parent context done) from the
// attempt deadline or a transport failure, which are the provider's fault.
func attemptError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrCanceled, ctxErr)
	}
	return newNetworkError(err)
}

func (c *Client) recordSuccess() {
	if c.config.Registry != nil {
		c.config.Registry.RecordSuccess(c.config.Name)
	}
}

func (c *Client) recordFailure(err error) {
	if c.config.Registry != nil {
		c.config.Registry.RecordFailure(c.config.Name, err)
	}
}

// StatusError represents a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// NetworkError represents a request that could not complete: DNS, connection
// reset, or an attempt deadline.
type NetworkError struct {
	Err     error
	Timeout bool
}

func newNetworkError(err error) *NetworkError {
	// url.Error embeds the full URL, which may carry an API key.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	timeout := errors.Is(err, context.DeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}

	return &NetworkError{Err: err, Timeout: timeout}
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return "request timed out: " + e.Err.Error()
	}
	return "network error: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.circuitBreaker.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.circuitBreaker.Counts()
}
