package workerpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestPoolRunsAllTasks(t *testing.T) {
	p := New(4, 8, nil)

	var count atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func() {
			defer wg.Done()
			count.Inc()
		}))
	}
	wg.Wait()
	p.Close()

	assert.Equal(t, int32(100), count.Load())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := New(2, 16, nil)
	defer p.Close()

	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func() {
			defer wg.Done()
			n := inFlight.Inc()
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inFlight.Dec()
		}))
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestSubmitAfterClose(t *testing.T) {
	p := New(1, 1, nil)
	p.Close()
	p.Close()

	err := p.Submit(context.Background(), func() {})
	require.ErrorIs(t, err, ErrPoolClosed)
}

func TestSubmitHonoursContextWhenSaturated(t *testing.T) {
	p := New(1, 0, nil)
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func() {
		close(started)
		<-release
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func() {})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(0), p.Queued())

	close(release)
}

func TestCloseWaitsForQueuedTasks(t *testing.T) {
	p := New(1, 4, nil)

	var count atomic.Int32
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Submit(context.Background(), func() {
			time.Sleep(time.Millisecond)
			count.Inc()
		}))
	}
	p.Close()

	assert.Equal(t, int32(4), count.Load())
}

func TestWorkerSurvivesPanic(t *testing.T) {
	p := New(1, 1, nil)
	defer p.Close()

	require.NoError(t, p.Submit(context.Background(), func() { panic("boom") }))

	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not recover from panic")
	}
}
