// Package scheduler runs named periodic jobs. Business code registers a job
// body and an interval; the scheduler owns the tickers, keeps a slow cycle
// from overlapping the next tick of the same job, and stops everything on
// shutdown.
package scheduler

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

type job struct {
	name     string
	interval time.Duration
	run      func(context.Context)
	running  atomic.Bool
}

type Scheduler struct {
	mu      sync.Mutex
	jobs    []*job
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func New() *Scheduler {
	return &Scheduler{}
}

// Register adds a periodic job. Must be called before Start.
func (s *Scheduler) Register(name string, interval time.Duration, run func(context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &job{name: name, interval: interval, run: run})
}

// Start launches one goroutine per registered job. Each job ticks on its own
// interval; a tick that fires while the previous cycle of the same job is
// still running is skipped rather than stacked.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.runJob(ctx, j)
	}
	log.Printf("[SCHEDULER] Started %d periodic jobs", len(s.jobs))
}

// Stop cancels all jobs and waits for in-flight cycles to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, j *job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, j)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j *job) {
	if !j.running.CompareAndSwap(false, true) {
		log.Printf("[SCHEDULER] Job %s still running, skipping this tick", j.name)
		return
	}
	defer j.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[SCHEDULER] Job %s panicked: %v", j.name, r)
		}
	}()

	j.run(ctx)
}
