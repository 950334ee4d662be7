package queue

import (
	"sync"

	"github.com/platefull/jobqueue/internal/queue/domain"
)

// typeState is the per-type dispatch point shared by the aggregator, the
// retry scheduler and the worker pool: the priority queue for individual
// jobs, the FIFO of flushed batches awaiting a worker, and a wake channel
// so idle workers block instead of spinning.
type typeState struct {
	queue *PriorityQueue

	mu      sync.Mutex
	batches []*domain.Batch

	wake chan struct{}
}

func newTypeState() *typeState {
	return &typeState{
		queue: NewPriorityQueue(),
		wake:  make(chan struct{}, 1),
	}
}

// notify wakes at most one idle worker. Non-blocking.
func (s *typeState) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// insertJob queues an individual job and wakes a worker.
func (s *typeState) insertJob(job *domain.Job) {
	s.queue.Insert(job)
	s.notify()
}

// pushBatch appends a flushed batch to the ready FIFO and wakes a worker.
func (s *typeState) pushBatch(b *domain.Batch) {
	s.mu.Lock()
	s.batches = append(s.batches, b)
	s.mu.Unlock()
	s.notify()
}

// popBatch removes the oldest ready batch, or nil when none is waiting.
func (s *typeState) popBatch() *domain.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.batches) == 0 {
		return nil
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b
}

// backlog returns the number of jobs waiting for a worker: individually
// queued jobs plus members of flushed-but-unclaimed batches. Members of a
// still-open batch are counted by the aggregator.
func (s *typeState) backlog() int {
	n := s.queue.Len()

	s.mu.Lock()
	for _, b := range s.batches {
		n += b.Size()
	}
	s.mu.Unlock()

	return n
}
