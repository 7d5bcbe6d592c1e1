package lock

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AshleyT3/atbu-go"
)

func TestDestinationSecondAcquireFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dest.lock")
	first := NewDestination(path)
	require.NoError(t, first.Acquire(context.Background()))
	defer first.Release()

	second := NewDestination(path)
	err := second.Acquire(context.Background())
	require.True(t, errors.Is(err, atbu.ErrBackupAlreadyInUse))
}

func TestDestinationReleaseThenReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dest.lock")
	first := NewDestination(path)
	require.NoError(t, first.Acquire(context.Background()))
	require.NoError(t, first.Release())

	second := NewDestination(path)
	require.NoError(t, second.Acquire(context.Background()))
	require.NoError(t, second.Release())
}

func TestReservationsPreventDuplicate(t *testing.T) {
	r := NewReservations()
	require.True(t, r.TryReserve("obj1"))
	require.False(t, r.TryReserve("obj1"))
	r.Release("obj1")
	require.True(t, r.TryReserve("obj1"))
}
