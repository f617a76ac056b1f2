package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"faceattend/internal/attendance"
	"faceattend/internal/logging"
)

// Queue carries detections from the recognition pipeline to workers.
type Queue interface {
	Publish(ctx context.Context, d attendance.Detection) error
	Consume(ctx context.Context) (<-chan attendance.Detection, error)
}

// InMemory is a channel-backed queue for dev/testing.
type InMemory struct {
	ch chan attendance.Detection
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan attendance.Detection, size)}
}

// Publish enqueues a detection, blocking while the buffer is full.
func (q *InMemory) Publish(ctx context.Context, d attendance.Detection) error {
	select {
	case q.ch <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel that is closed when ctx is done.
func (q *InMemory) Consume(ctx context.Context) (<-chan attendance.Detection, error) {
	out := make(chan attendance.Detection)
	go func() {
		defer close(out)
		for {
			select {
			case d := <-q.ch:
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// popRetryWait is the pause after a failed BRPOP before trying again.
const popRetryWait = time.Second

// RedisQueue is a Redis list queue with LPUSH/BRPOP semantics, so several
// workers on different hosts can share one stream of detections.
type RedisQueue struct {
	client *redis.Client
	key    string
	log    logrus.FieldLogger
}

// NewRedisQueue builds a queue on key. log may be nil.
func NewRedisQueue(client *redis.Client, key string, log logrus.FieldLogger) *RedisQueue {
	if key == "" {
		key = "attendance:detections"
	}
	return &RedisQueue{client: client, key: key, log: logging.OrDiscard(log)}
}

// Publish enqueues a detection as JSON.
func (q *RedisQueue) Publish(ctx context.Context, d attendance.Detection) error {
	body, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, body).Err()
}

// Consume streams detections using BRPOP. Malformed entries are logged and dropped.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan attendance.Detection, error) {
	out := make(chan attendance.Detection)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					q.log.WithError(err).Warn("queue pop failed")
					select {
					case <-ctx.Done():
						return
					case <-time.After(popRetryWait):
					}
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			var d attendance.Detection
			if err := json.Unmarshal([]byte(res[1]), &d); err != nil {
				q.log.WithError(err).WithField("payload", res[1]).Warn("dropping malformed detection")
				continue
			}
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
