// Package llm routes completion requests across a chain of model providers
// with per-model circuit breaking and bounded concurrency.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Request is a single completion call.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Response carries the completion text plus which model produced it.
type Response struct {
	Text  string
	Model string
}

// Provider is implemented by every backing model.
type Provider interface {
	// Name identifies the provider for breaker bookkeeping and logs.
	Name() string
	// Model returns the model identifier sent upstream.
	Model() string
	// Complete performs one completion call.
	Complete(ctx context.Context, req Request) (Response, error)
}

// Sentinel errors surfaced by the orchestrator.
var (
	// ErrNoProviders means the chain is empty or every breaker is open.
	ErrNoProviders = errors.New("llm: no providers available")
	// ErrAllFailed means every reachable provider returned an error.
	ErrAllFailed = errors.New("llm: all providers failed")
)

// transientError marks failures worth retrying on another provider or later
// (timeouts, 429s, 5xx). Permanent failures (bad request, auth) are not.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Transientf is a convenience formatter for transient errors.
func Transientf(format string, args ...any) error {
	return Transient(fmt.Errorf(format, args...))
}

// IsTransient reports whether err (or anything it wraps) is transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
