package resilience

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/sony/gobreaker"

	"github.com/antigravity-gateway/gateway/internal/gwerrors"
)

type RetryConfig struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	JitterDelay time.Duration
	ShouldRetry func(resp *http.Response, err error) bool
}

// DefaultRetryConfig retries only upstream 429s. Every other failure
// (credential-fatal, validation, transport) is handled by the rotator or
// surfaced to the caller instead of being retried here.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:  3,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    30 * time.Second,
	JitterDelay: 250 * time.Millisecond,
	ShouldRetry: func(resp *http.Response, err error) bool {
		if gwErr := asGwError(err); gwErr != nil {
			return gwErr.IsRateLimited()
		}
		if resp != nil {
			return resp.StatusCode == 429
		}
		return false
	},
}

// asGwError unwraps err into a *gwerrors.Error, if it is one.
func asGwError(err error) *gwerrors.Error {
	var gwErr *gwerrors.Error
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return nil
}

type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	FailureRatio     float64
	MinRequests      uint32
	OnStateChange    func(name string, from, to gobreaker.State)
	IsSuccessful     func(err error) bool
}

// DefaultIsSuccessful treats rate-limited and credential-fatal errors as
// outside the breaker's concern: the rotator already disables a credential
// on a fatal refresh failure, and the retrier already owns 429s. Counting
// either against the breaker would trip it on load the rotator is already
// handling.
func DefaultIsSuccessful(err error) bool {
	gwErr := asGwError(err)
	if gwErr == nil {
		return err == nil
	}
	return gwErr.IsRateLimited() || gwErr.IsCredentialFatal()
}

func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         10 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		FailureRatio:     0.5,
		MinRequests:      10,
		IsSuccessful:     DefaultIsSuccessful,
	}
}

type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			if counts.ConsecutiveFailures >= cfg.FailureThreshold {
				return true
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		OnStateChange: cfg.OnStateChange,
		IsSuccessful:  cfg.IsSuccessful,
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

func (c *CircuitBreaker) Execute(fn func() (any, error)) (any, error) {
	return c.cb.Execute(fn)
}

func (c *CircuitBreaker) State() gobreaker.State {
	return c.cb.State()
}

func (c *CircuitBreaker) Counts() gobreaker.Counts {
	return c.cb.Counts()
}

func (c *CircuitBreaker) Name() string {
	return c.cb.Name()
}

func NewRetryPolicy[R any](cfg RetryConfig) retrypolicy.RetryPolicy[R] {
	builder := retrypolicy.NewBuilder[R]().
		WithMaxRetries(cfg.MaxRetries).
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay)
	if cfg.JitterDelay > 0 {
		builder = builder.WithJitter(cfg.JitterDelay)
	}
	if cfg.ShouldRetry != nil {
		builder = builder.HandleIf(func(_ R, err error) bool {
			return cfg.ShouldRetry(nil, err)
		})
	}
	return builder.Build()
}

type Executor[R any] struct {
	executor failsafe.Executor[R]
	breaker  *CircuitBreaker
}

func NewExecutor[R any](retryConfig RetryConfig, breakerConfig *BreakerConfig) *Executor[R] {
	rp := NewRetryPolicy[R](retryConfig)

	var breaker *CircuitBreaker
	if breakerConfig != nil {
		breaker = NewCircuitBreaker(*breakerConfig)
	}

	return &Executor[R]{
		executor: failsafe.With(rp),
		breaker:  breaker,
	}
}

func (e *Executor[R]) Execute(ctx context.Context, fn func() (R, error)) (R, error) {
	if e.breaker != nil {
		result, err := e.breaker.Execute(func() (any, error) {
			return e.executor.WithContext(ctx).Get(fn)
		})
		if err != nil {
			var zero R
			return zero, err
		}
		return result.(R), nil
	}
	return e.executor.WithContext(ctx).Get(fn)
}

func (e *Executor[R]) CircuitBreaker() *CircuitBreaker {
	return e.breaker
}

// Retrier wraps an error-only call in the 429-only retry policy, with no
// breaker attached: the gateway frontend calls this once per chat request,
// before any response bytes are written.
type Retrier struct {
	executor *Executor[struct{}]
}

// NewRetrier builds a Retrier from cfg.
func NewRetrier(cfg RetryConfig) *Retrier {
	return &Retrier{executor: NewExecutor[struct{}](cfg, nil)}
}

// Do runs fn, retrying per the configured policy.
func (r *Retrier) Do(ctx context.Context, fn func() error) error {
	_, err := r.executor.Execute(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// BreakerRegistry hands out one CircuitBreaker per credential, created
// lazily on first use and reused for the lifetime of the process. A
// credential that trips its breaker stops receiving traffic independently
// of the others, so one rate-limited or misconfigured credential can't
// starve the rest of the pool.
type BreakerRegistry struct {
	mu        sync.Mutex
	breakers  map[string]*CircuitBreaker
	streamers map[string]*StreamingCircuitBreaker
	onOpen    func(credential string)
}

// NewBreakerRegistry builds an empty registry. onOpen, if non-nil, is
// called every time any credential's breaker (unary or streaming) trips
// into the open state — the gateway wires this to a Prometheus counter.
func NewBreakerRegistry(onOpen func(credential string)) *BreakerRegistry {
	return &BreakerRegistry{
		breakers:  make(map[string]*CircuitBreaker),
		streamers: make(map[string]*StreamingCircuitBreaker),
		onOpen:    onOpen,
	}
}

func (r *BreakerRegistry) configFor(refreshToken string) BreakerConfig {
	cfg := DefaultBreakerConfig(refreshToken)
	if r.onOpen != nil {
		cfg.OnStateChange = func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				r.onOpen(refreshToken)
			}
		}
	}
	return cfg
}

// For returns the breaker for refreshToken, creating it on first use.
func (r *BreakerRegistry) For(refreshToken string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[refreshToken]; ok {
		return cb
	}
	cb := NewCircuitBreaker(r.configFor(refreshToken))
	r.breakers[refreshToken] = cb
	return cb
}

// ForStreaming returns the two-phase breaker for refreshToken, creating it
// on first use. Streaming calls use Allow()/done() instead of Execute()
// because a stream's outcome (wrote bytes vs. failed before any) is known
// only after the handler has drained it, not at call time.
func (r *BreakerRegistry) ForStreaming(refreshToken string) *StreamingCircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sb, ok := r.streamers[refreshToken]; ok {
		return sb
	}
	cfg := r.configFor(refreshToken)
	cfg.Name = refreshToken + ":stream"
	sb := NewStreamingCircuitBreaker(cfg)
	r.streamers[refreshToken] = sb
	return sb
}
