// Package queue is the Redis-backed dispatch channel between the ingress
// API and the orchestration worker. Enqueue is a single non-blocking
// LPUSH, so the HTTP response never waits on the pipeline.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/imnotfancy/TuneForge-sub000/internal/config"
)

const (
	// WaitingQueue is the Redis list key holding dispatched job IDs.
	WaitingQueue = "tuneforge:waiting"
	// BlockTimeout is how long BRPOP will wait for a task.
	BlockTimeout = 5 * time.Second
)

// Task is one dispatch of a job to the orchestrator.
type Task struct {
	JobID      string    `json:"job_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue manages the Redis job queue.
type Queue struct {
	client *redis.Client
}

// NewQueue connects to Redis using the configured address.
func NewQueue(ctx context.Context) (*Queue, error) {
	addr := fmt.Sprintf("%s:%d", config.ValkeyHost, config.ValkeyPort)
	slog.Debug("Connecting to Redis queue", "addr", addr)

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Redis queue initialized", "addr", addr)
	return &Queue{client: client}, nil
}

// NewQueueWithClient creates a queue with an existing Redis client (for testing).
func NewQueueWithClient(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue dispatches a job to the worker.
func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	if q.client == nil {
		return fmt.Errorf("queue is not connected")
	}

	task := Task{JobID: jobID, EnqueuedAt: time.Now().UTC()}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if err := q.client.LPush(ctx, WaitingQueue, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	slog.Info("Job enqueued", "job_id", jobID)
	return nil
}

// Dequeue removes and returns a task from the queue, blocking for up to
// BlockTimeout. A nil task means the wait timed out.
func (q *Queue) Dequeue(ctx context.Context) (*Task, error) {
	if q.client == nil {
		return nil, fmt.Errorf("queue is not connected")
	}

	result, err := q.client.BRPop(ctx, BlockTimeout, WaitingQueue).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	// BRPOP returns [key, value]
	if len(result) < 2 {
		return nil, fmt.Errorf("invalid BRPOP result: %v", result)
	}

	var task Task
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}

	slog.Info("Job dequeued", "job_id", task.JobID)
	return &task, nil
}

// Length returns the number of waiting tasks.
func (q *Queue) Length(ctx context.Context) (int64, error) {
	if q.client == nil {
		return 0, fmt.Errorf("queue is not connected")
	}

	length, err := q.client.LLen(ctx, WaitingQueue).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return length, nil
}

// Close closes the queue connection.
func (q *Queue) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}
