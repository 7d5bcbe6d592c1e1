package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/AshleyT3/atbu-go"
)

// MaxAutoCreateAttempts bounds the auto-find-and-create retry loop
// (spec.md §4.3).
const MaxAutoCreateAttempts = 100

// AutoCreateSuffix is the character that, when trailing a requested
// container name, requests auto-find-and-create with a random UUID
// suffix.
const AutoCreateSuffix = '*'

// CreateContainerAuto implements the trailing-'*' auto-find-and-create
// contract: it strips the '*', appends a random UUID, and retries on
// ErrContainerExists up to MaxAutoCreateAttempts times.
func CreateContainerAuto(ctx context.Context, store Store, name string) (Container, error) {
	if !strings.HasSuffix(name, string(AutoCreateSuffix)) {
		return store.CreateContainer(ctx, name)
	}
	base := strings.TrimSuffix(name, string(AutoCreateSuffix))
	for attempt := 0; attempt < MaxAutoCreateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidate := base + uuid.NewString()
		c, err := store.CreateContainer(ctx, candidate)
		switch {
		case err == nil:
			return c, nil
		case errors.Is(err, ErrContainerExists):
			continue
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %q", atbu.ErrContainerCreateExhausted, base)
}
