package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tweetbox/backend/internal/apperr"
	"github.com/tweetbox/backend/internal/logging"
)

// Deleter removes one remote object.
type Deleter interface {
	Delete(ctx context.Context, path string) error
}

// WorkerConfig controls the pool size and per-call bound.
type WorkerConfig struct {
	Workers     int
	CallTimeout time.Duration
	// OnTransition, when set, observes every execution outcome.
	OnTransition func(Transition)
}

// Worker is a pool of goroutines consuming deletion jobs from a Queue.
type Worker struct {
	queue   Queue
	deleter Deleter
	policy  RetryPolicy
	cfg     WorkerConfig
	logger  *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
	started bool
	mu      sync.Mutex
}

var errWorkerStarted = errors.New("cleanup worker already started")

// NewWorker constructs a worker pool; nothing runs until Start.
func NewWorker(queue Queue, deleter Deleter, policy RetryPolicy, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		queue:   queue,
		deleter: deleter,
		policy:  policy,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "cleanup")),
	}
}

// Start hands orphaned in-flight jobs back to the queue and launches the pool.
// The pool keeps running after ctx is done; stop it with Shutdown.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return errWorkerStarted
	}
	if w.queue == nil || w.deleter == nil {
		return errors.New("cleanup worker missing dependencies")
	}

	recovered, err := w.queue.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover in-flight jobs: %w", err)
	}
	if recovered > 0 {
		w.logger.Info("requeued in-flight cleanup jobs", "count", recovered)
	}

	w.ctx, w.cancel = context.WithCancel(logging.WithLogger(context.Background(), w.logger))
	w.started = true

	w.wg.Add(w.cfg.Workers)
	for i := 0; i < w.cfg.Workers; i++ {
		go w.run()
	}
	return nil
}

// Shutdown stops consuming and waits for running executions to finish.
// Jobs still in flight are acknowledged or rescheduled before their goroutine exits.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if !started {
		return nil
	}

	w.once.Do(func() {
		w.cancel()
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (w *Worker) run() {
	defer w.wg.Done()

	for {
		job, err := w.queue.Pop(w.ctx)
		if err != nil {
			if w.ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return
			}
			w.logger.Error("pop cleanup job", "error", err)
			if sleepErr := pause(w.ctx, time.Second); sleepErr != nil {
				return
			}
			continue
		}
		w.execute(job)
	}
}

// execute runs one attempt and applies the policy's transition. Queue
// bookkeeping uses a fresh context so a shutdown mid-attempt still records
// the outcome.
func (w *Worker) execute(job Job) {
	ctx, span := logging.StartSpan(w.ctx, "cleanup.delete_remote_object")

	job.Attempt++
	job.State = StateRunning
	logger := logging.FromContext(ctx).With(
		slog.String("job_id", job.ID),
		slog.String("remote_path", job.RemotePath),
		slog.Int("attempt", job.Attempt),
	)

	callCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	err := w.deleter.Delete(callCtx, job.RemotePath)
	cancel()
	span.Finish(err)

	tr := w.policy.Next(job, err)

	bookkeeping, cancelBookkeeping := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelBookkeeping()

	switch tr.State {
	case StateSucceeded:
		logger.Info("remote object deleted", "state", tr.State)
	case StateRetrying:
		next := tr.Job
		next.raw = ""
		if err := w.queue.Schedule(bookkeeping, next, time.Now().Add(tr.Delay)); err != nil {
			logger.Error("reschedule cleanup job", "error", err)
			// Leave it in flight so Recover redelivers it.
			w.notify(tr)
			return
		}
		logger.Warn("remote delete failed, retry scheduled", "state", tr.State, "delay", tr.Delay, "final_retry", next.FinalRetry, "error", err)
	case StateFailed:
		logger.Error("remote delete failed permanently", "state", tr.State, "error", err)
	case StateAbandoned:
		logger.Error("remote delete abandoned, manual intervention required", "state", tr.State, "error", err)
	}

	if ackErr := w.queue.Ack(bookkeeping, job); ackErr != nil {
		logger.Error("ack cleanup job", "error", ackErr)
	}
	w.notify(tr)
}

func (w *Worker) notify(tr Transition) {
	if w.cfg.OnTransition != nil {
		w.cfg.OnTransition(tr)
	}
}

// Client is the enqueue side used by request handlers.
type Client struct {
	queue Queue
}

// NewClient returns a Client pushing onto queue.
func NewClient(queue Queue) *Client {
	return &Client{queue: queue}
}

// EnqueueDelete schedules removal of remotePath and returns without waiting for it.
func (c *Client) EnqueueDelete(ctx context.Context, remotePath string) error {
	if strings.TrimSpace(remotePath) == "" {
		return apperr.Validation("remote path is required")
	}
	job := NewJob(remotePath)
	if err := c.queue.Push(ctx, job); err != nil {
		return fmt.Errorf("enqueue delete %s: %w", remotePath, err)
	}
	logging.FromContext(ctx).Debug("cleanup job enqueued", "job_id", job.ID, "remote_path", remotePath)
	return nil
}

func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
