package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_SerializesAccess(t *testing.T) {
	locker := NewLocalLocker()

	const workers = 16

	var (
		wg      sync.WaitGroup
		counter int
	)

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := locker.WithLock(context.Background(), InstanceKey("inst-1"), func(_ context.Context) error {
				value := counter
				time.Sleep(time.Millisecond)
				counter = value + 1

				return nil
			})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()
	assert.Equal(t, workers, counter)
}

func TestLocalLocker_Reentrant(t *testing.T) {
	locker := NewLocalLocker()

	var inner bool

	err := locker.WithLock(t.Context(), InstanceKey("inst-1"), func(ctx context.Context) error {
		return locker.WithLock(ctx, InstanceKey("inst-1"), func(_ context.Context) error {
			inner = true

			return nil
		})
	})
	require.NoError(t, err)
	assert.True(t, inner)
}

func TestLocalLocker_IndependentKeys(t *testing.T) {
	locker := NewLocalLocker()

	release := make(chan struct{})
	holding := make(chan struct{})

	go func() {
		_ = locker.WithLock(context.Background(), InstanceKey("inst-1"), func(_ context.Context) error {
			close(holding)
			<-release

			return nil
		})
	}()

	<-holding

	// A different key is not blocked by the held lock.
	done := make(chan error, 1)

	go func() {
		done <- locker.WithLock(context.Background(), InstanceKey("inst-2"), func(_ context.Context) error {
			return nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("independent key blocked by unrelated lock")
	}

	close(release)
}

func TestLocalLocker_ContextCancelled(t *testing.T) {
	locker := NewLocalLocker()

	release := make(chan struct{})
	holding := make(chan struct{})

	go func() {
		_ = locker.WithLock(context.Background(), InstanceKey("inst-1"), func(_ context.Context) error {
			close(holding)
			<-release

			return nil
		})
	}()

	<-holding

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := locker.WithLock(ctx, InstanceKey("inst-1"), func(_ context.Context) error {
		t.Error("callback ran despite cancelled context")

		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)

	close(release)

	// The key is usable again once the first holder releases.
	err = locker.WithLock(context.Background(), InstanceKey("inst-1"), func(_ context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}

func TestInstanceKey(t *testing.T) {
	assert.Equal(t, "caseflow:instance:abc", InstanceKey("abc"))
}
