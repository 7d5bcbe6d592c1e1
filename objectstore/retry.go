package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// RetryPolicy implements spec.md §7's Transient I/O error kind: back off
// x2 from 1s up to 30s, retrying until the operation succeeds, the
// operation returns an unretryable error (wrapped with backoff.Permanent),
// or the context is canceled.
type RetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
	Store   Store
}

// NewRetryPolicy builds the default policy described in spec.md §4.5 step
// 8 and §7.
func NewRetryPolicy(store Store) *RetryPolicy {
	return &RetryPolicy{Initial: time.Second, Max: 30 * time.Second, Store: store}
}

// Do runs op, retrying on errors the underlying Store classifies as
// retryable. An error not classified as retryable is returned immediately.
// A *backoff.PermanentError returned by op (or wrapping its error) is never
// retried regardless of the store's classification, matching spec.md §9's
// note that some post-retry paths are intentionally treated as
// unreachable.
func (p *RetryPolicy) Do(ctx context.Context, component string, op func(ctx context.Context) error) error {
	initial, max := p.Initial, p.Max
	if initial <= 0 {
		initial = time.Second
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	log := zerolog.Ctx(ctx).With().Str("component", component).Logger()

	delay := initial
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op(ctx)
		if err == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Unwrap()
		}
		if p.Store == nil || !p.Store.IsRetryable(err) {
			return err
		}
		log.Info().Err(err).Int("attempt", attempt).Dur("wait", delay).Msg("transient error, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > max {
			delay = max
		}
	}
}

// Permanent marks err as unretryable regardless of the store's
// classification, for callers of Do's op function.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// ErrContainerExists signals a storage-conflict from CreateContainer
// (spec.md §7 "Storage conflict").
var ErrContainerExists = fmt.Errorf("objectstore: container already exists")

// ErrContainerNotFound is returned by GetContainer when the named
// container does not exist.
var ErrContainerNotFound = fmt.Errorf("objectstore: container not found")
