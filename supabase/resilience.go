package supabase

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"
)

// RetryPolicy controls how failed gateway requests are retried.
type RetryPolicy struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// Jitter randomizes backoff by the given fraction (0 to 1).
	Jitter float64
	// RetryableStatusCodes are retried in addition to transient network
	// errors.
	RetryableStatusCodes []int
}

// DefaultRetryPolicy returns the policy used when resilience is enabled
// without further tuning.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	// OpenFor is how long the circuit stays open before probing again.
	OpenFor time.Duration
}

// DefaultBreakerConfig returns the breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, OpenFor: 30 * time.Second}
}

// ErrBreakerOpen is returned while the circuit is open.
var ErrBreakerOpen = errors.New("supabase: circuit breaker open")

// Breaker is a circuit breaker over gateway requests.
type Breaker struct {
	mu sync.Mutex

	config    BreakerConfig
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(config BreakerConfig) *Breaker {
	return &Breaker{config: config, state: BreakerClosed}
}

// Allow reports whether a request may proceed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if time.Since(b.openedAt) > b.config.OpenFor {
			b.state = BreakerHalfOpen
			b.successes = 0
			return nil
		}
		return ErrBreakerOpen
	}
	return nil
}

// RecordSuccess notes a successful request.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures = 0
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.state = BreakerClosed
			b.failures = 0
		}
	}
}

// RecordFailure notes a failed request.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.state = BreakerOpen
			b.openedAt = time.Now()
		}
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.openedAt = time.Now()
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// retryTransport retries transient failures with exponential backoff and
// trips the breaker on persistent ones.
type retryTransport struct {
	base    *http.Client
	policy  RetryPolicy
	breaker *Breaker
}

func newRetryTransport(base *http.Client, policy RetryPolicy, breaker *Breaker) *retryTransport {
	return &retryTransport{base: base, policy: policy, breaker: breaker}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.breaker.Allow(); err != nil {
		return nil, err
	}

	transport := t.base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= t.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(t.backoff(attempt)):
			}
			req = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				req.Body = body
			}
		}

		resp, lastErr = transport.RoundTrip(req)

		if lastErr != nil {
			if t.retryableError(lastErr) {
				continue
			}
			t.breaker.RecordFailure()
			return nil, lastErr
		}
		if t.retryableStatus(resp.StatusCode) {
			lastErr = &APIError{StatusCode: resp.StatusCode}
			resp.Body.Close()
			continue
		}

		t.breaker.RecordSuccess()
		return resp, nil
	}

	t.breaker.RecordFailure()
	return nil, lastErr
}

func (t *retryTransport) backoff(attempt int) time.Duration {
	d := float64(t.policy.InitialBackoff) * math.Pow(t.policy.BackoffMultiplier, float64(attempt-1))
	if max := float64(t.policy.MaxBackoff); d > max {
		d = max
	}
	if t.policy.Jitter > 0 {
		d += d * t.policy.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

func (t *retryTransport) retryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (t *retryTransport) retryableStatus(code int) bool {
	for _, retryable := range t.policy.RetryableStatusCodes {
		if code == retryable {
			return true
		}
	}
	return false
}
