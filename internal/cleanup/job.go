// Package cleanup removes remote objects in the background after their
// database rows are gone.
package cleanup

import (
	"time"

	"github.com/google/uuid"

	"github.com/tweetbox/backend/internal/storage"
)

// State is a deletion job's position in its lifecycle.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateRetrying  State = "retrying"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateAbandoned State = "abandoned"
)

// Terminal reports whether no further execution will happen.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateAbandoned
}

// Job is one remote object deletion. Attempt counts executions so far.
type Job struct {
	ID         string    `json:"id"`
	RemotePath string    `json:"remote_path"`
	Attempt    int       `json:"attempt"`
	FinalRetry bool      `json:"final_retry"`
	State      State     `json:"state"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	LastError  string    `json:"last_error,omitempty"`

	// raw is the queue's encoded form, used to acknowledge delivery.
	raw string
}

// NewJob returns a pending job for remotePath.
func NewJob(remotePath string) Job {
	return Job{
		ID:         uuid.NewString(),
		RemotePath: remotePath,
		State:      StatePending,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Transition is the outcome of one execution: the job's next state and, for
// retries, how long to wait before running it again.
type Transition struct {
	Job   Job
	State State
	Delay time.Duration
}

// RetryPolicy decides what happens after each execution.
//
// Transient failures retry after BaseDelay*2^attempt while attempt is below
// MaxAttempts. Once that budget is spent the job gets a single final retry
// after FinalDelay and is abandoned if that fails too. Permanent failures
// such as a missing object fail immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	FinalDelay  time.Duration
	Transient   func(error) bool
}

// DefaultRetryPolicy matches the production defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		FinalDelay:  time.Minute,
		Transient:   storage.IsTransient,
	}
}

// Next computes the transition for job after an execution that returned err.
// job.Attempt must already include that execution.
func (p RetryPolicy) Next(job Job, err error) Transition {
	if err == nil {
		job.State = StateSucceeded
		job.LastError = ""
		return Transition{Job: job, State: StateSucceeded}
	}

	job.LastError = err.Error()

	transient := p.Transient
	if transient == nil {
		transient = storage.IsTransient
	}
	if !transient(err) {
		job.State = StateFailed
		return Transition{Job: job, State: StateFailed}
	}

	if job.FinalRetry {
		job.State = StateAbandoned
		return Transition{Job: job, State: StateAbandoned}
	}

	if job.Attempt < p.MaxAttempts {
		job.State = StateRetrying
		return Transition{Job: job, State: StateRetrying, Delay: p.backoff(job.Attempt)}
	}

	job.State = StateRetrying
	job.FinalRetry = true
	return Transition{Job: job, State: StateRetrying, Delay: p.FinalDelay}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	return p.BaseDelay * time.Duration(1<<attempt)
}
