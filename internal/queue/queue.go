// Package queue carries remote attendance submissions: the alternate
// write path where a view hands its submission off and a worker lands it
// in the store later. Nothing synchronizes this path with the session
// collection; a submission can arrive after its session closed and is
// rejected at append time.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Submission is one queued attendance submission.
type Submission struct {
	CourseCode  string    `json:"courseCode"`
	PIN         string    `json:"pin"`
	StudentName string    `json:"studentName"`
	StudentID   string    `json:"studentId"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, sub Submission) error
	Consume(ctx context.Context) (<-chan Submission, error)
}

// InMemory is a minimal channel-backed queue for dev/testing.
type InMemory struct {
	ch chan Submission
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Submission, size)}
}

// Publish enqueues a submission.
func (q *InMemory) Publish(ctx context.Context, sub Submission) error {
	select {
	case q.ch <- sub:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for workers.
func (q *InMemory) Consume(ctx context.Context) (<-chan Submission, error) {
	out := make(chan Submission)
	go func() {
		defer close(out)
		for {
			select {
			case sub := <-q.ch:
				out <- sub
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a simple Redis list-backed queue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "edutend:submissions"
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues a submission as JSON.
func (q *RedisQueue) Publish(ctx context.Context, sub Submission) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, raw).Err()
}

// Consume streams submissions using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Submission, error) {
	out := make(chan Submission)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if len(res) == 2 {
				var sub Submission
				if err := json.Unmarshal([]byte(res[1]), &sub); err == nil {
					out <- sub
				}
			}
		}
	}()
	return out, nil
}
