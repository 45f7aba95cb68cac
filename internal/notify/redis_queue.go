package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/whitelist-backend/internal/config"
)

// RedisQueue pushes messages onto the notification list consumed by
// worker.NotifyWorker.
type RedisQueue struct {
	rdb   redis.Cmdable
	queue string
}

func NewRedisQueue(rdb redis.Cmdable) *RedisQueue {
	return &RedisQueue{rdb: rdb, queue: config.WorkerKey.PersistNotificationsQueue}
}

func (q *RedisQueue) Dispatch(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	if err := q.rdb.RPush(ctx, q.queue, data).Err(); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}
