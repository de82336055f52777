package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/user/gig-sync-service/internal/entity"
)

const syncQueueKey = keyPrefix + "queue"

// QueueRepoImpl keeps deferred sync requests in a Redis list.
type QueueRepoImpl struct {
	client *redis.Client
}

// NewQueueRepo creates a new instance of QueueRepoImpl.
func NewQueueRepo(client *redis.Client) *QueueRepoImpl {
	return &QueueRepoImpl{client: client}
}

// Push adds a request to the left side of the list.
func (r *QueueRepoImpl) Push(ctx context.Context, opts entity.RunOptions) error {
	b, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("marshal sync request: %w", err)
	}
	return r.client.LPush(ctx, syncQueueKey, b).Err()
}

// Pop removes the oldest request from the right side of the list.
func (r *QueueRepoImpl) Pop(ctx context.Context) (entity.RunOptions, bool, error) {
	var opts entity.RunOptions
	b, err := r.client.RPop(ctx, syncQueueKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return opts, false, nil
	}
	if err != nil {
		return opts, false, err
	}
	if err := json.Unmarshal(b, &opts); err != nil {
		return opts, false, fmt.Errorf("decode sync request: %w", err)
	}
	return opts, true, nil
}

// Size returns the current number of queued requests.
func (r *QueueRepoImpl) Size(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, syncQueueKey).Result()
}
