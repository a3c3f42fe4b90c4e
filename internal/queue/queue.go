package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/snapreel/clipstitch/internal/models"
)

const QueueRenderClip = "queue:render_clip"

// Queue is a Redis-backed work queue delivering ClipJob payloads to the
// worker pool. Delivery is at-least-once: a popped job that the worker fails
// to finish is reported through the job record, never re-queued.
type Queue struct {
	client *redis.Client
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Enqueue pushes a clip job onto the render queue. Any error here means the
// broker is unreachable and the submission must be rejected.
func (q *Queue) Enqueue(ctx context.Context, job *models.ClipJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := q.client.RPush(ctx, QueueRenderClip, data).Err(); err != nil {
		return fmt.Errorf("queue unavailable: %w", err)
	}

	return nil
}

// Dequeue blocks up to timeout for the next job. Returns (nil, nil) when no
// job arrived within the window so callers can re-check their context.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*models.ClipJob, error) {
	result, err := q.client.BLPop(ctx, timeout, QueueRenderClip).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var job models.ClipJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, QueueRenderClip).Result()
}
