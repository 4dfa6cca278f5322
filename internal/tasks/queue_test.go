package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	emberrors "github.com/emberboard/emberboard/internal/errors"
)

// recorder counts handler calls per key and can hold them on a gate.
type recorder struct {
	mu      sync.Mutex
	calls   map[string]int
	inRun   atomic.Int32
	gate    chan struct{}
	entered chan string
	err     error
}

func newRecorder() *recorder {
	return &recorder{calls: make(map[string]int)}
}

// gated makes every handler call announce itself on entered and then
// block until the gate closes.
func (r *recorder) gated() *recorder {
	r.gate = make(chan struct{})
	r.entered = make(chan string, 16)
	return r
}

func (r *recorder) handle(ctx context.Context, key string) error {
	r.inRun.Add(1)
	defer r.inRun.Add(-1)

	if r.entered != nil {
		r.entered <- key
	}
	if r.gate != nil {
		<-r.gate
	}

	r.mu.Lock()
	r.calls[key]++
	r.mu.Unlock()
	return r.err
}

func (r *recorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[key]
}

func startQueue(t *testing.T, r *recorder, workers int) *Queue {
	t.Helper()
	q, err := New(Config{Handler: r.handle, Workers: workers})
	require.NoError(t, err)
	q.Start(context.Background())
	t.Cleanup(q.Stop)
	return q
}

func TestNewQueueRequiresHandler(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.True(t, emberrors.HasCode(err, emberrors.ErrCodeConfigInvalid))
}

func TestQueueRunsEnqueuedKey(t *testing.T) {
	r := newRecorder()
	q := startQueue(t, r, 1)

	q.Enqueue("en-US")

	require.Eventually(t, func() bool {
		return r.count("en-US") == 1
	}, time.Second, 2*time.Millisecond)
}

func TestQueueCoalescesWhileQueued(t *testing.T) {
	// Given a single worker pinned on another key
	r := newRecorder().gated()
	q := startQueue(t, r, 1)

	q.Enqueue("en-US")
	require.Equal(t, "en-US", <-r.entered)

	// When a second key is enqueued several times while it waits
	q.Enqueue("de")
	q.Enqueue("de")
	q.Enqueue("de")
	assert.Equal(t, 1, q.Pending())

	close(r.gate)

	// Then it runs exactly once
	require.Eventually(t, func() bool {
		return r.count("de") == 1
	}, time.Second, 2*time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, r.count("de"))
}

func TestQueueRerunsKeyMarkedDirtyMidFlight(t *testing.T) {
	// Given a sync in flight for the key
	r := newRecorder().gated()
	q := startQueue(t, r, 1)

	q.Enqueue("en-US")
	require.Equal(t, "en-US", <-r.entered)

	// When more triggers arrive while it runs
	q.Enqueue("en-US")
	q.Enqueue("en-US")
	close(r.gate)

	// Then the worker goes exactly once more with fresh data
	require.Equal(t, "en-US", <-r.entered)
	require.Eventually(t, func() bool {
		return r.count("en-US") == 2
	}, time.Second, 2*time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 2, r.count("en-US"))
}

func TestQueueRunsKeysInParallel(t *testing.T) {
	r := newRecorder().gated()
	q := startQueue(t, r, 2)

	q.Enqueue("en-US")
	q.Enqueue("de")

	// Both keys are in flight at once before the gate opens.
	seen := map[string]bool{(<-r.entered): true, (<-r.entered): true}
	assert.True(t, seen["en-US"])
	assert.True(t, seen["de"])
	assert.Equal(t, int32(2), r.inRun.Load())

	close(r.gate)
}

func TestQueueLogsHandlerFailureAndMovesOn(t *testing.T) {
	r := newRecorder()
	r.err = emberrors.IndexUnavailable("engine closed", nil)
	q := startQueue(t, r, 1)

	q.Enqueue("en-US")
	require.Eventually(t, func() bool {
		return r.count("en-US") == 1
	}, time.Second, 2*time.Millisecond)

	// The failure does not wedge the worker.
	r.err = nil
	q.Enqueue("de")
	require.Eventually(t, func() bool {
		return r.count("de") == 1
	}, time.Second, 2*time.Millisecond)
}

func TestStopWaitsForInFlightRun(t *testing.T) {
	r := newRecorder().gated()
	q, err := New(Config{Handler: r.handle, Workers: 1})
	require.NoError(t, err)
	q.Start(context.Background())

	q.Enqueue("en-US")
	require.Equal(t, "en-US", <-r.entered)

	done := make(chan struct{})
	go func() {
		q.Stop()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Stop returned while a handler was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(r.gate)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the handler finished")
	}
	assert.Equal(t, 1, r.count("en-US"))
}

func TestEnqueueAfterStopIsDropped(t *testing.T) {
	r := newRecorder()
	q, err := New(Config{Handler: r.handle, Workers: 1})
	require.NoError(t, err)
	q.Start(context.Background())
	q.Stop()

	q.Enqueue("en-US")

	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, r.count("en-US"))
	assert.Zero(t, q.Pending())
}

func TestStopIsIdempotent(t *testing.T) {
	r := newRecorder()
	q, err := New(Config{Handler: r.handle, Workers: 1})
	require.NoError(t, err)
	q.Start(context.Background())

	q.Stop()
	q.Stop()
}

func TestEnqueueIgnoresBlankKeys(t *testing.T) {
	r := newRecorder()
	q := startQueue(t, r, 1)

	q.Enqueue("   ")
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, q.Pending())
}
