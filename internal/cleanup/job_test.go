package cleanup

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tweetbox/backend/internal/storage"
)

var (
	errThrottled = &storage.StatusError{Op: "delete", StatusCode: http.StatusTooManyRequests}
	errMissing   = &storage.StatusError{Op: "delete", StatusCode: http.StatusNotFound}
)

func TestRetryPolicySuccess(t *testing.T) {
	p := DefaultRetryPolicy()
	job := NewJob("1/a.png")
	job.Attempt = 1

	tr := p.Next(job, nil)
	assert.Equal(t, StateSucceeded, tr.State)
	assert.True(t, tr.State.Terminal())
	assert.Zero(t, tr.Delay)
}

func TestRetryPolicyExponentialThenFinalThenAbandoned(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, FinalDelay: time.Minute}
	job := NewJob("1/a.png")

	var delays []time.Duration
	var states []State
	for {
		job.Attempt++
		tr := p.Next(job, errThrottled)
		states = append(states, tr.State)
		delays = append(delays, tr.Delay)
		if tr.State.Terminal() {
			break
		}
		job = tr.Job
		require.Less(t, job.Attempt, 10, "policy must terminate")
	}

	assert.Equal(t, []State{StateRetrying, StateRetrying, StateRetrying, StateAbandoned}, states)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, time.Minute, 0}, delays)
	assert.True(t, job.FinalRetry)
}

func TestRetryPolicyPermanentFailure(t *testing.T) {
	p := DefaultRetryPolicy()
	job := NewJob("1/a.png")
	job.Attempt = 1

	tr := p.Next(job, errMissing)
	assert.Equal(t, StateFailed, tr.State)
	assert.Contains(t, tr.Job.LastError, "404")

	tr = p.Next(job, errors.New("permanent api error"))
	assert.Equal(t, StateFailed, tr.State)
}

func TestRetryPolicyZeroBudgetGoesStraightToFinalRetry(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 0, BaseDelay: time.Second, FinalDelay: 5 * time.Second}
	job := NewJob("x")
	job.Attempt = 1

	tr := p.Next(job, context.DeadlineExceeded)
	assert.Equal(t, StateRetrying, tr.State)
	assert.Equal(t, 5*time.Second, tr.Delay)
	assert.True(t, tr.Job.FinalRetry)
}

func TestMemoryQueueDeliveryAndRecovery(t *testing.T) {
	q := NewMemoryQueue(4)
	defer q.Close()
	ctx := context.Background()

	job := NewJob("1/a.png")
	require.NoError(t, q.Push(ctx, job))

	popped, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, popped.ID)
	assert.Equal(t, 1, q.Pending())

	n, err := q.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, again.ID)
	require.NoError(t, q.Ack(ctx, again))
	assert.Zero(t, q.Pending())
}

func TestMemoryQueueSchedule(t *testing.T) {
	q := NewMemoryQueue(4)
	defer q.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	job := NewJob("later")
	start := time.Now()
	require.NoError(t, q.Schedule(ctx, job, start.Add(30*time.Millisecond)))

	popped, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, popped.ID)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemoryQueue(1)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	_, err := q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.ErrorIs(t, q.Schedule(context.Background(), NewJob("x"), time.Now()), ErrQueueClosed)
}
