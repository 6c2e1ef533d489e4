package client

import (
	"sort"
	"sync"
	"time"
)

// manualScheduler fires registered jobs only when the test asks it to.
type manualScheduler struct {
	mu   sync.Mutex
	next int
	jobs map[int]manualJob
}

type manualJob struct {
	interval time.Duration
	fn       func()
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{jobs: make(map[int]manualJob)}
}

func (s *manualScheduler) Every(interval time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.jobs[id] = manualJob{interval: interval, fn: fn}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.jobs, id)
	}
}

// Fire runs every job registered with interval, in registration order.
func (s *manualScheduler) Fire(interval time.Duration) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.jobs))
	for id, job := range s.jobs {
		if job.interval == interval {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.jobs[id].fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (s *manualScheduler) Active(interval time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, job := range s.jobs {
		if job.interval == interval {
			n++
		}
	}
	return n
}
