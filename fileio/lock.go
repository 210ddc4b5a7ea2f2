package fileio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"time"
)

// LockOptions tunes AcquireLock.
type LockOptions struct {
	MaxRetries    int
	RetryInterval time.Duration
	// StaleTTL > 0 lets a lock older than this be broken. Zero never breaks a lock.
	StaleTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// lockPayload is pid (uint32) followed by the unixnano acquisition time (uint64).
const lockPayloadSize = 12

// AcquireLock creates path + ".lock" with a non-overwriting write, so at most
// one holder succeeds on any store where such writes are atomic. It retries up
// to MaxRetries times. The returned release removes the lock only while it
// still holds this holder's pid and timestamp.
func AcquireLock(ctx context.Context, fio FileIO, path string, opts LockOptions) (func(context.Context) error, error) {
	lockPath := path + ".lock"
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var lastErr error
	for i := 0; i <= opts.MaxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(opts.RetryInterval):
			}
		}

		ts := now().UTC().UnixNano()
		payload := make([]byte, lockPayloadSize)
		binary.LittleEndian.PutUint32(payload[0:4], uint32(os.Getpid()))
		binary.LittleEndian.PutUint64(payload[4:12], uint64(ts))

		err := fio.Write(ctx, lockPath, payload, false)
		if err == nil {
			release := func(ctx context.Context) error {
				current, err := fio.Read(ctx, lockPath)
				if err != nil {
					if IsNotExist(err) {
						return nil
					}
					return err
				}
				if !bytes.Equal(current, payload) {
					// Broken as stale and taken over by someone else.
					return nil
				}
				_, err = fio.Delete(ctx, lockPath, false)
				return err
			}
			return release, nil
		}
		if !IsExist(err) {
			return nil, fmt.Errorf("failed to create lock %s: %w", lockPath, err)
		}
		lastErr = err

		if opts.StaleTTL <= 0 {
			continue
		}
		held, rerr := fio.Read(ctx, lockPath)
		if rerr != nil || len(held) < lockPayloadSize {
			continue
		}
		heldAt := time.Unix(0, int64(binary.LittleEndian.Uint64(held[4:12])))
		if now().Sub(heldAt) > opts.StaleTTL {
			_, _ = fio.Delete(ctx, lockPath, false)
		}
	}
	return nil, fmt.Errorf("lock %s is held by another process: %w", lockPath, lastErr)
}
