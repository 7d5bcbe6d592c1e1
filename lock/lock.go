// Package lock implements the two serialization primitives spec.md §5
// requires around a storage destination: a cross-process destination lease
// lock, and an in-process name reservation map that keeps concurrent
// uploaders within one session from colliding on a candidate object name.
package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofrs/flock"

	"github.com/AshleyT3/atbu-go"
)

// Destination guards a storage destination against a second concurrent
// backup process via an OS file lock on a lease file at a path the caller
// supplies (spec.md §5, §7 "Concurrent-use error"); the package does not
// choose a location in the user config directory itself.
type Destination struct {
	path string
	fl   *flock.Flock
}

// NewDestination returns a Destination lease lock backed by a file at
// leasePath. The file is created on first Acquire if absent.
func NewDestination(leasePath string) *Destination {
	return &Destination{path: leasePath, fl: flock.New(leasePath)}
}

// Acquire takes the lease lock without blocking. A second process (or a
// second call within this process) attempting to acquire the same lease
// fails immediately with atbu.ErrBackupAlreadyInUse — spec.md §5 describes
// this as destination-scoped mutual exclusion, not a queue.
func (d *Destination) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ok, err := d.fl.TryLock()
	if err != nil {
		return fmt.Errorf("lock: acquiring %q: %w", d.path, err)
	}
	if !ok {
		return fmt.Errorf("lock: %q: %w", d.path, atbu.ErrBackupAlreadyInUse)
	}
	return nil
}

// Release drops the lease lock. Safe to call even if Acquire failed.
func (d *Destination) Release() error {
	return d.fl.Unlock()
}

// Reservations is a cross-process name reservation map, used only to
// serialize candidate object-name probing during upload (spec.md §5
// "name reservation map"). Within one process it is a plain mutex-guarded
// set; cross-process exclusivity is achieved because only the process
// holding the Destination lease ever uploads to a given destination, so a
// second process can never race this map concurrently with the first.
type Reservations struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewReservations returns an empty Reservations map.
func NewReservations() *Reservations {
	return &Reservations{held: map[string]struct{}{}}
}

// TryReserve atomically reserves name if it is not already held, returning
// true on success. The caller must call Release once the name's upload
// either succeeds or permanently fails, so a later retry pass can reuse the
// name after a failed upload's cleanup.
func (r *Reservations) TryReserve(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.held[name]; ok {
		return false
	}
	r.held[name] = struct{}{}
	return true
}

// Release frees a previously reserved name.
func (r *Reservations) Release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.held, name)
}
