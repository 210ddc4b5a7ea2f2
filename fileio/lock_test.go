package fileio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLock_Exclusive(t *testing.T) {
	ctx := context.Background()
	fio := NewLocal(t.TempDir())

	release, err := AcquireLock(ctx, fio, "maintenance", LockOptions{})
	require.NoError(t, err)

	_, err = AcquireLock(ctx, fio, "maintenance", LockOptions{MaxRetries: 2, RetryInterval: time.Millisecond})
	require.Error(t, err)
	assert.True(t, IsExist(err))

	require.NoError(t, release(ctx))
	ok, err := fio.Exists(ctx, "maintenance.lock")
	require.NoError(t, err)
	assert.False(t, ok)

	release, err = AcquireLock(ctx, fio, "maintenance", LockOptions{})
	require.NoError(t, err)
	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx), "releasing twice is harmless")
}

func TestAcquireLock_BreaksStaleLock(t *testing.T) {
	ctx := context.Background()
	fio := NewLocal(t.TempDir())
	past := time.Unix(1000, 0)

	stale, err := AcquireLock(ctx, fio, "maintenance", LockOptions{Now: func() time.Time { return past }})
	require.NoError(t, err)

	fresh, err := AcquireLock(ctx, fio, "maintenance", LockOptions{
		MaxRetries:    1,
		RetryInterval: time.Millisecond,
		StaleTTL:      time.Minute,
	})
	require.NoError(t, err)

	// The broken holder must not remove the new holder's lock.
	require.NoError(t, stale(ctx))
	ok, err := fio.Exists(ctx, "maintenance.lock")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, fresh(ctx))
}

func TestAcquireLock_ContextCanceled(t *testing.T) {
	fio := NewLocal(t.TempDir())
	_, err := AcquireLock(context.Background(), fio, "maintenance", LockOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = AcquireLock(ctx, fio, "maintenance", LockOptions{MaxRetries: 5, RetryInterval: time.Hour})
	assert.ErrorIs(t, err, context.Canceled)
}
