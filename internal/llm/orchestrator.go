package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger is the minimal logging contract the orchestrator needs.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Orchestrator tries providers in order, skipping those whose breaker is
// open, and bounds total in-flight calls with a semaphore.
type Orchestrator struct {
	providers []Provider
	logger    Logger
	clock     func() time.Time

	breakerThreshold int
	breakerCooldown  time.Duration

	sem chan struct{}

	mu       sync.Mutex
	breakers map[string]*breaker
}

// Option customizes orchestrator construction.
type Option func(*Orchestrator)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock allows tests to control breaker timing.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithMaxConcurrent bounds in-flight completion calls.
func WithMaxConcurrent(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.sem = make(chan struct{}, n)
		}
	}
}

// WithBreakerPolicy sets the per-model failure threshold and cool-down.
func WithBreakerPolicy(threshold int, cooldown time.Duration) Option {
	return func(o *Orchestrator) {
		if threshold > 0 {
			o.breakerThreshold = threshold
		}
		if cooldown > 0 {
			o.breakerCooldown = cooldown
		}
	}
}

// NewOrchestrator wires the failover chain. Provider order is the failover
// order.
func NewOrchestrator(providers []Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		providers:        providers,
		logger:           nopLogger{},
		clock:            time.Now,
		breakerThreshold: 3,
		breakerCooldown:  30 * time.Second,
		sem:              make(chan struct{}, 4),
		breakers:         map[string]*breaker{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Complete runs one completion request through the chain. Providers whose
// breaker is open are skipped; the first success wins. Returns ErrNoProviders
// when nothing was callable and ErrAllFailed (wrapping the last error) when
// every attempt failed.
func (o *Orchestrator) Complete(ctx context.Context, req Request) (Response, error) {
	if len(o.providers) == 0 {
		return Response{}, ErrNoProviders
	}
	select {
	case o.sem <- struct{}{}:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
	defer func() { <-o.sem }()

	var lastErr error
	attempted := false
	for _, provider := range o.providers {
		br := o.breakerFor(provider.Name())
		if !br.Allow() {
			o.logger.Printf("llm: skipping %s, breaker open", provider.Name())
			continue
		}
		attempted = true
		resp, err := provider.Complete(ctx, req)
		if err == nil {
			br.Success()
			return resp, nil
		}
		br.Failure()
		lastErr = err
		o.logger.Printf("llm: %s failed: %v", provider.Name(), err)
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		if !IsTransient(err) {
			// Permanent errors (auth, malformed request) won't improve on
			// another provider sharing the same request.
			break
		}
	}
	if !attempted {
		return Response{}, ErrNoProviders
	}
	return Response{}, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

// BreakerOpen reports whether the named provider is currently shorted out.
func (o *Orchestrator) BreakerOpen(name string) bool {
	return o.breakerFor(name).Open()
}

func (o *Orchestrator) breakerFor(name string) *breaker {
	o.mu.Lock()
	defer o.mu.Unlock()
	br, ok := o.breakers[name]
	if !ok {
		br = newBreaker(o.breakerThreshold, o.breakerCooldown, o.clock)
		o.breakers[name] = br
	}
	return br
}
