// Package retrier repeats an operation with growing pauses between attempts.
// The line client uses it to keep dialing the wallet server while it starts up.
package retrier

import (
	"context"
	"math/rand"
	"time"
)

// Defaults suit dialing a local server: a few quick attempts, then give up within seconds.
const (
	defaultInitialInterval = 250 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
	defaultMultiplier      = 2.0
	defaultMaxRetries      = 5
	defaultJitter          = 0.1
)

// Retrier runs an operation until it succeeds, the retries run out, the context ends
// or the error is classified as permanent.
type Retrier struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
	maxRetries      int
	jitter          float64
	retryIf         func(error) bool
	onRetry         func(attempt int, err error)
}

type Option func(*Retrier)

// WithInitialInterval sets the pause before the first retry.
func WithInitialInterval(d time.Duration) Option {
	return func(r *Retrier) { r.initialInterval = d }
}

// WithMaxInterval caps the pause between retries.
func WithMaxInterval(d time.Duration) Option {
	return func(r *Retrier) { r.maxInterval = d }
}

// WithMultiplier sets how fast the pause grows.
func WithMultiplier(m float64) Option {
	return func(r *Retrier) { r.multiplier = m }
}

// WithMaxRetries sets how many times a failed attempt is repeated.
func WithMaxRetries(n int) Option {
	return func(r *Retrier) { r.maxRetries = n }
}

// WithJitter spreads each pause by up to ±j of its length, 0 <= j <= 1.
func WithJitter(j float64) Option {
	return func(r *Retrier) { r.jitter = j }
}

// WithRetryIf stops retrying as soon as fn reports an error as permanent.
func WithRetryIf(fn func(error) bool) Option {
	return func(r *Retrier) { r.retryIf = fn }
}

// WithOnRetry calls fn before every retry with the attempt number and the last error.
func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(r *Retrier) { r.onRetry = fn }
}

func New(opts ...Option) *Retrier {
	r := &Retrier{
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		multiplier:      defaultMultiplier,
		maxRetries:      defaultMaxRetries,
		jitter:          defaultJitter,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do calls fn once and then up to maxRetries more times while it fails.
// The last error is returned, or ctx.Err() when the context ends during a pause.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	for attempt := 1; err != nil && attempt <= r.maxRetries; attempt++ {
		if !r.retryable(err) {
			return err
		}
		if r.onRetry != nil {
			r.onRetry(attempt, err)
		}
		if werr := sleep(ctx, r.spread(r.pause(attempt))); werr != nil {
			return werr
		}
		err = fn(ctx)
	}
	return err
}

// DoWithData is Do for operations that produce a value, such as a dialed connection.
func DoWithData[T any](r *Retrier, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}

func (r *Retrier) retryable(err error) bool {
	return r.retryIf == nil || r.retryIf(err)
}

// pause is the un-jittered wait before retry number attempt (1-based).
func (r *Retrier) pause(attempt int) time.Duration {
	d := float64(r.initialInterval)
	for i := 1; i < attempt; i++ {
		d *= r.multiplier
		if d >= float64(r.maxInterval) {
			return r.maxInterval
		}
	}
	return min(time.Duration(d), r.maxInterval)
}

func (r *Retrier) spread(d time.Duration) time.Duration {
	if r.jitter <= 0 {
		return d
	}
	offset := (rand.Float64()*2 - 1) * r.jitter * float64(d)
	return max(time.Duration(float64(d)+offset), 0)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
