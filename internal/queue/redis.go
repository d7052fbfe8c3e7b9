package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultRedisKey is the list used when no key is configured.
const DefaultRedisKey = "meshquote:models:queued"

// popTimeout bounds each BRPOP so Pop notices cancellation and Close.
const popTimeout = time.Second

// RedisQueue is a Queue on a Redis list (LPUSH / BRPOP), shared by every
// API and worker process pointed at the same Redis.
type RedisQueue struct {
	client *redis.Client
	key    string
	closed chan struct{}
}

// NewRedisQueue connects to the Redis URL (redis://[:password@]host:port/db)
// and verifies the connection.
func NewRedisQueue(ctx context.Context, url, key string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisQueueFromClient(client, key), nil
}

// NewRedisQueueFromClient wraps an existing client.
func NewRedisQueueFromClient(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisQueue{client: client, key: key, closed: make(chan struct{})}
}

func (q *RedisQueue) Push(ctx context.Context, modelID string) error {
	if err := q.client.LPush(ctx, q.key, modelID).Err(); err != nil {
		return fmt.Errorf("failed to push model %s: %w", modelID, err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (string, error) {
	for {
		select {
		case <-q.closed:
			return "", ErrClosed
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		res, err := q.client.BRPop(ctx, popTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			select {
			case <-q.closed:
				return "", ErrClosed
			default:
			}
			return "", fmt.Errorf("failed to pop from %s: %w", q.key, err)
		}
		// BRPOP replies with [key, value].
		if len(res) == 2 {
			return res[1], nil
		}
	}
}

// Depth returns the length of the list. Ids pushed by every API process
// sharing the key are counted.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Close stops Pop loops and closes the client.
func (q *RedisQueue) Close() error {
	close(q.closed)
	return q.client.Close()
}
