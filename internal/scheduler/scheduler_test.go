package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduler_RunsRegisteredJobs(t *testing.T) {
	s := New()

	var runs atomic.Int32
	s.Register("counter", 10*time.Millisecond, func(ctx context.Context) {
		runs.Add(1)
	})

	s.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, runs.Load(), int32(3))

	// Nothing fires after Stop.
	settled := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, runs.Load())
}

func TestScheduler_SkipsOverlappingCycles(t *testing.T) {
	s := New()

	var running atomic.Int32
	var overlapped atomic.Bool
	s.Register("slow", 5*time.Millisecond, func(ctx context.Context) {
		if running.Add(1) > 1 {
			overlapped.Store(true)
		}
		time.Sleep(25 * time.Millisecond)
		running.Add(-1)
	})

	s.Start(context.Background())
	time.Sleep(80 * time.Millisecond)
	s.Stop()

	assert.False(t, overlapped.Load(), "a slow cycle must not run concurrently with itself")
}

func TestScheduler_RecoversFromPanics(t *testing.T) {
	s := New()

	var runs atomic.Int32
	s.Register("panicky", 10*time.Millisecond, func(ctx context.Context) {
		runs.Add(1)
		panic("boom")
	})

	s.Start(context.Background())
	time.Sleep(45 * time.Millisecond)
	s.Stop()

	// The panic in one cycle must not kill the job's ticker loop.
	assert.GreaterOrEqual(t, runs.Load(), int32(2))
}

func TestScheduler_StartIsIdempotent(t *testing.T) {
	s := New()

	var runs atomic.Int32
	s.Register("once", 10*time.Millisecond, func(ctx context.Context) {
		runs.Add(1)
	})

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx)
	time.Sleep(25 * time.Millisecond)
	s.Stop()

	// A double Start must not double the goroutines; with one ticker the count
	// stays near the elapsed interval count.
	assert.LessOrEqual(t, runs.Load(), int32(4))
}
