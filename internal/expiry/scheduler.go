package expiry

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/FlatDrop/internal/clock"
)

// idleWait bounds how long Run sleeps when nothing is scheduled.
const idleWait = time.Minute

type task struct {
	id string
	at time.Time
}

// taskHeap is a min-heap ordered by due time.
type taskHeap []task

func (h taskHeap) Len() int           { return len(h) }
func (h taskHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h taskHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(task)) }

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	*h = old[:n-1]
	return t
}

// HeapScheduler keeps pending expiries in process memory. RunDue fires
// everything due at the clock's current time, so tests can advance a fake
// clock and fire deterministically; Run drives RunDue from a real timer.
type HeapScheduler struct {
	clock clock.Clock
	log   zerolog.Logger

	mu    sync.Mutex
	tasks taskHeap
	wake  chan struct{}
}

// NewHeapScheduler builds an empty scheduler.
func NewHeapScheduler(c clock.Clock, log zerolog.Logger) *HeapScheduler {
	return &HeapScheduler{
		clock: c,
		log:   log,
		wake:  make(chan struct{}, 1),
	}
}

// Schedule queues id to fire at the given instant.
func (s *HeapScheduler) Schedule(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	heap.Push(&s.tasks, task{id: id, at: at})
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending reports how many expiries have not fired yet.
func (s *HeapScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.Len()
}

// RunDue fires every task due at or before now, earliest first, and returns
// how many fired.
func (s *HeapScheduler) RunDue(ctx context.Context, fire ExpireFunc) int {
	now := s.clock.Now()
	var due []task
	s.mu.Lock()
	for s.tasks.Len() > 0 && !s.tasks[0].at.After(now) {
		due = append(due, heap.Pop(&s.tasks).(task))
	}
	s.mu.Unlock()
	for _, t := range due {
		fire(ctx, t.id)
	}
	return len(due)
}

// Run fires tasks as they come due until ctx is cancelled.
func (s *HeapScheduler) Run(ctx context.Context, fire ExpireFunc) error {
	s.log.Info().Msg("expiry scheduler started")
	for {
		s.RunDue(ctx, fire)
		timer := time.NewTimer(s.nextWait())
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info().Int("pending", s.Pending()).Msg("expiry scheduler stopped")
			return ctx.Err()
		case <-s.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

func (s *HeapScheduler) nextWait() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks.Len() == 0 {
		return idleWait
	}
	wait := s.tasks[0].at.Sub(s.clock.Now())
	if wait < 0 {
		return 0
	}
	if wait > idleWait {
		return idleWait
	}
	return wait
}
