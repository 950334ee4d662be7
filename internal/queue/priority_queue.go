package queue

import (
	"container/heap"
	"sync"

	"github.com/platefull/jobqueue/internal/queue/domain"
)

// PriorityQueue holds the pending jobs of a single type ordered by priority
// weight, FIFO among equal weights. Safe for concurrent use; PopNext never
// blocks.
type PriorityQueue struct {
	mu   sync.Mutex
	heap jobHeap
	seq  uint64
}

// NewPriorityQueue creates an empty queue.
func NewPriorityQueue() *PriorityQueue {
	pq := &PriorityQueue{}
	heap.Init(&pq.heap)
	return pq
}

// Insert adds a job, keeping the queue ordered by priority weight with
// insertion-order tie-break.
func (q *PriorityQueue) Insert(job *domain.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	heap.Push(&q.heap, queuedJob{
		job:    job,
		weight: job.Priority.Weight(),
		seq:    q.seq,
	})
}

// PopNext removes and returns the highest-priority, earliest-inserted job.
// The second return is false when the queue is empty.
func (q *PriorityQueue) PopNext() (*domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		return nil, false
	}
	it := heap.Pop(&q.heap).(queuedJob)
	return it.job, true
}

// Len returns the number of pending jobs.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

type queuedJob struct {
	job    *domain.Job
	weight int
	seq    uint64
}

type jobHeap []queuedJob

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].weight == h[j].weight {
		return h[i].seq < h[j].seq
	}
	return h[i].weight > h[j].weight
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x interface{}) {
	*h = append(*h, x.(queuedJob))
}

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
