package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// Default per-attempt timeouts.
const (
	DefaultQueryTimeout     = 5 * time.Second
	DefaultBroadcastTimeout = 10 * time.Second
)

var errNoProviders = errors.New("no providers configured")

// Attempt records one call against one provider.
type Attempt struct {
	Index    int
	Endpoint Endpoint
	Err      error
	Duration time.Duration
}

// FailoverOptions configures a Failover run.
type FailoverOptions struct {
	// Operation names the call in errors and observations.
	Operation string
	// Timeout bounds each attempt independently. Zero means DefaultQueryTimeout.
	Timeout time.Duration
	// Observer, if set, is called after every attempt including the winner.
	Observer func(Attempt)
}

// Outcome is the result of a Failover run. On success Value and Index are
// set; Attempts always holds every attempt made, in order.
type Outcome[T any] struct {
	Value     T
	Index     int
	Operation string
	Attempts  []Attempt
	err       error
}

// OK reports whether a provider succeeded.
func (o Outcome[T]) OK() bool { return o.err == nil }

// Err returns nil on success, otherwise an ErrAllProvidersFailed error whose
// cause joins every attempt's error.
func (o Outcome[T]) Err() error { return o.err }

// Failures returns the failed attempts.
func (o Outcome[T]) Failures() []Attempt {
	out := make([]Attempt, 0, len(o.Attempts))
	for _, a := range o.Attempts {
		if a.Err != nil {
			out = append(out, a)
		}
	}
	return out
}

// Failover calls fn against each endpoint in order until one succeeds. Each
// attempt runs under its own timeout derived from ctx. Providers are never
// retried and no state survives between runs. Cancellation of ctx stops the
// walk.
func Failover[T any](ctx context.Context, endpoints []Endpoint, opts FailoverOptions,
	fn func(context.Context, Endpoint) (T, error),
) Outcome[T] {
	out := Outcome[T]{Index: -1, Operation: opts.Operation}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}

	if len(endpoints) == 0 {
		out.err = satchelerr.AllProvidersFailed(opts.Operation, 0, errNoProviders)
		return out
	}

	for i, ep := range endpoints {
		start := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		value, err := fn(attemptCtx, ep)
		cancel()

		a := Attempt{Index: i, Endpoint: ep, Err: err, Duration: time.Since(start)}
		out.Attempts = append(out.Attempts, a)
		if opts.Observer != nil {
			opts.Observer(a)
		}
		if err == nil {
			out.Value = value
			out.Index = i
			return out
		}
		if ctx.Err() != nil {
			break
		}
	}

	causes := make([]error, 0, len(out.Attempts))
	for _, a := range out.Attempts {
		causes = append(causes, fmt.Errorf("provider %d (%s): %w", a.Index, a.Endpoint.URL, a.Err))
	}
	out.err = satchelerr.AllProvidersFailed(opts.Operation, len(out.Attempts), errors.Join(causes...))
	return out
}
