package cleanup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisPopTimeout   = time.Second
	redisPromoteBatch = 100
)

// promoteDue moves due members of the delayed set onto the ready list.
// ZREM guards against two consumers promoting the same member.
var promoteDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
local moved = 0
for _, member in ipairs(due) do
  if redis.call('ZREM', KEYS[1], member) == 1 then
    redis.call('LPUSH', KEYS[2], member)
    moved = moved + 1
  end
end
return moved
`)

// RedisQueue stores jobs in Redis so they survive restarts and can be
// consumed by a separate worker process. Layout under name:
//
//	<name>:ready       list, LPUSH in, BLMOVE out
//	<name>:processing  list of in-flight payloads, LREM on ack
//	<name>:delayed     sorted set scored by due time in unix millis
type RedisQueue struct {
	client     redis.UniversalClient
	ready      string
	processing string
	delayed    string
	popTimeout time.Duration
}

// NewRedisQueue binds a queue to client under the key prefix name.
func NewRedisQueue(client redis.UniversalClient, name string) *RedisQueue {
	if name == "" {
		name = "tweetbox:cleanup"
	}
	return &RedisQueue{
		client:     client,
		ready:      name + ":ready",
		processing: name + ":processing",
		delayed:    name + ":delayed",
		popTimeout: redisPopTimeout,
	}
}

// NewRedisClient parses url and returns a connected client.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (q *RedisQueue) Push(ctx context.Context, job Job) error {
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.ready, payload).Err(); err != nil {
		return fmt.Errorf("push cleanup job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Schedule(ctx context.Context, job Job, at time.Time) error {
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}
	if err := q.client.ZAdd(ctx, q.delayed, redis.Z{Score: float64(at.UnixMilli()), Member: payload}).Err(); err != nil {
		return fmt.Errorf("schedule cleanup job: %w", err)
	}
	return nil
}

// Pop promotes due delayed jobs, then blocks for up to a second on the ready
// list, repeating until a job arrives or ctx is done.
func (q *RedisQueue) Pop(ctx context.Context) (Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}

		if err := q.promote(ctx); err != nil {
			return Job{}, err
		}

		payload, err := q.client.BLMove(ctx, q.ready, q.processing, "RIGHT", "LEFT", q.popTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Job{}, ctxErr
			}
			return Job{}, fmt.Errorf("pop cleanup job: %w", err)
		}

		job, err := decodeJob(payload)
		if err != nil {
			// Unreadable payloads would be redelivered forever.
			_ = q.client.LRem(ctx, q.processing, 1, payload).Err()
			return Job{}, err
		}
		return job, nil
	}
}

func (q *RedisQueue) promote(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	err := promoteDue.Run(ctx, q.client, []string{q.delayed, q.ready}, now, redisPromoteBatch).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("promote delayed cleanup jobs: %w", err)
	}
	return nil
}

func (q *RedisQueue) Ack(ctx context.Context, job Job) error {
	if job.raw == "" {
		return fmt.Errorf("ack cleanup job %s: not delivered by this queue", job.ID)
	}
	if err := q.client.LRem(ctx, q.processing, 1, job.raw).Err(); err != nil {
		return fmt.Errorf("ack cleanup job: %w", err)
	}
	return nil
}

// Recover moves every in-flight payload back onto the ready list. It should
// only run while no consumer is active, typically at worker start.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.ready, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("recover cleanup jobs: %w", err)
		}
		moved++
	}
}

// Len reports ready, in-flight and delayed job counts.
func (q *RedisQueue) Len(ctx context.Context) (ready, inflight, delayed int64, err error) {
	pipe := q.client.Pipeline()
	r := pipe.LLen(ctx, q.ready)
	p := pipe.LLen(ctx, q.processing)
	d := pipe.ZCard(ctx, q.delayed)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, 0, fmt.Errorf("cleanup queue length: %w", err)
	}
	return r.Val(), p.Val(), d.Val(), nil
}

// Close is a no-op; the client is owned by the caller.
func (q *RedisQueue) Close() error { return nil }

func encodeJob(job Job) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode cleanup job: %w", err)
	}
	return string(data), nil
}

func decodeJob(payload string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return Job{}, fmt.Errorf("decode cleanup job: %w", err)
	}
	job.raw = payload
	return job, nil
}

var _ Queue = (*RedisQueue)(nil)
