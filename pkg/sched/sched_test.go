package sched

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockFreeDeviceIsImmediate(t *testing.T) {
	l := NewInProcessLock()
	require.NoError(t, l.Lock(context.Background(), "a", 0))
	assert.Equal(t, "a", l.Holder())
	require.NoError(t, l.Unlock())
	assert.Equal(t, "", l.Holder())
}

func TestUnlockWithoutHolder(t *testing.T) {
	l := NewInProcessLock()
	assert.ErrorIs(t, l.Unlock(), ErrNotHeld)
}

// Waiters queued with priorities 1, 5, 3 in that arrival order must
// acquire in order 5, 3, 1.
func TestPriorityOrdering(t *testing.T) {
	l := NewInProcessLock()
	require.NoError(t, l.Lock(context.Background(), "holder", 0))

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup

	enqueue := func(tag string, prio uint8) {
		wg.Add(1)
		started := make(chan struct{})
		go func() {
			defer wg.Done()
			close(started)
			require.NoError(t, l.Lock(context.Background(), tag, prio))
			mu.Lock()
			order = append(order, tag)
			mu.Unlock()
			require.NoError(t, l.Unlock())
		}()
		<-started
		// Give the goroutine time to enter the wait queue before the
		// next arrival, so arrival order is deterministic.
		time.Sleep(20 * time.Millisecond)
	}

	enqueue("p1", 1)
	enqueue("p5", 5)
	enqueue("p3", 3)

	require.NoError(t, l.Unlock())
	wg.Wait()

	assert.Equal(t, []string{"p5", "p3", "p1"}, order)
}

// Equal priorities are served in arrival order.
func TestEqualPriorityFIFO(t *testing.T) {
	l := NewInProcessLock()
	require.NoError(t, l.Lock(context.Background(), "holder", 0))

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup

	for _, tag := range []string{"first", "second", "third"} {
		tag := tag
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Lock(context.Background(), tag, 2))
			mu.Lock()
			order = append(order, tag)
			mu.Unlock()
			require.NoError(t, l.Unlock())
		}()
		time.Sleep(20 * time.Millisecond)
	}

	require.NoError(t, l.Unlock())
	wg.Wait()

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestLockTimeout(t *testing.T) {
	l := NewInProcessLock(WithTimeout(50 * time.Millisecond))
	require.NoError(t, l.Lock(context.Background(), "holder", 0))
	defer l.Unlock()

	start := time.Now()
	err := l.Lock(context.Background(), "waiter", 1)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLockCancelIsNotTimeout(t *testing.T) {
	l := NewInProcessLock()
	require.NoError(t, l.Lock(context.Background(), "holder", 0))
	defer l.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := l.Lock(ctx, "waiter", 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrLockTimeout)
}

// No two holders may ever execute concurrently for the same device.
func TestMutualExclusion(t *testing.T) {
	l := NewInProcessLock()

	var inside, maxInside int32
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				require.NoError(t, l.Lock(context.Background(), "worker", uint8(n%3)))
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()
				time.Sleep(time.Microsecond)
				mu.Lock()
				inside--
				mu.Unlock()
				require.NoError(t, l.Unlock())
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestAbandonedWaiterDoesNotStallQueue(t *testing.T) {
	l := NewInProcessLock(WithTimeout(30 * time.Millisecond))
	require.NoError(t, l.Lock(context.Background(), "holder", 0))

	// This waiter times out while queued.
	assert.ErrorIs(t, l.Lock(context.Background(), "quitter", 9), ErrLockTimeout)

	acquired := make(chan struct{})
	go func() {
		if err := l.Lock(context.Background(), "patient", 1); err == nil {
			close(acquired)
		}
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, l.Unlock())
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("surviving waiter never acquired the lock")
	}
	require.NoError(t, l.Unlock())
}
