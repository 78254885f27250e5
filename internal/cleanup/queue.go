package cleanup

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrQueueClosed is returned once a queue has been closed.
var ErrQueueClosed = errors.New("cleanup queue closed")

// Queue delivers deletion jobs at least once. A popped job stays in flight
// until acknowledged; Recover hands in-flight jobs back for redelivery.
type Queue interface {
	Push(ctx context.Context, job Job) error
	Schedule(ctx context.Context, job Job, at time.Time) error
	Pop(ctx context.Context) (Job, error)
	Ack(ctx context.Context, job Job) error
	Recover(ctx context.Context) (int, error)
	Close() error
}

// MemoryQueue is an in-process Queue for single-binary deployments and tests.
// Scheduled jobs are held by timers and lost on restart.
type MemoryQueue struct {
	ready chan Job

	mu       sync.Mutex
	inflight map[string]Job
	timers   map[*time.Timer]struct{}
	closed   bool
	done     chan struct{}
}

// NewMemoryQueue returns a queue buffering up to size ready jobs.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	return &MemoryQueue{
		ready:    make(chan Job, size),
		inflight: make(map[string]Job),
		timers:   make(map[*time.Timer]struct{}),
		done:     make(chan struct{}),
	}
}

func (q *MemoryQueue) Push(ctx context.Context, job Job) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	case q.ready <- job:
		return nil
	}
}

func (q *MemoryQueue) Schedule(ctx context.Context, job Job, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	var timer *time.Timer
	timer = time.AfterFunc(time.Until(at), func() {
		q.mu.Lock()
		delete(q.timers, timer)
		q.mu.Unlock()
		_ = q.Push(context.Background(), job)
	})
	q.timers[timer] = struct{}{}
	return nil
}

func (q *MemoryQueue) Pop(ctx context.Context) (Job, error) {
	select {
	case <-ctx.Done():
		return Job{}, ctx.Err()
	case <-q.done:
		return Job{}, ErrQueueClosed
	case job := <-q.ready:
		q.mu.Lock()
		q.inflight[job.ID] = job
		q.mu.Unlock()
		return job, nil
	}
}

func (q *MemoryQueue) Ack(ctx context.Context, job Job) error {
	q.mu.Lock()
	delete(q.inflight, job.ID)
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) Recover(ctx context.Context) (int, error) {
	q.mu.Lock()
	jobs := make([]Job, 0, len(q.inflight))
	for id, job := range q.inflight {
		jobs = append(jobs, job)
		delete(q.inflight, id)
	}
	q.mu.Unlock()

	for i, job := range jobs {
		if err := q.Push(ctx, job); err != nil {
			return i, err
		}
	}
	return len(jobs), nil
}

// Pending returns the number of ready, scheduled and in-flight jobs.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.timers) + len(q.inflight)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for timer := range q.timers {
		timer.Stop()
	}
	q.timers = map[*time.Timer]struct{}{}
	close(q.done)
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
