package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const runLockKey = keyPrefix + "lock"

// releaseScript deletes the lock only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLockRepoImpl is a cross-process run lock on a single Redis key.
type RunLockRepoImpl struct {
	client *redis.Client
}

// NewRunLockRepo creates a new instance of RunLockRepoImpl.
func NewRunLockRepo(client *redis.Client) *RunLockRepoImpl {
	return &RunLockRepoImpl{client: client}
}

// Acquire sets the lock key to token if it is free. The TTL frees the lock of a crashed holder.
func (r *RunLockRepoImpl) Acquire(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, runLockKey, token, ttl).Result()
}

// Release removes the lock if token still owns it.
func (r *RunLockRepoImpl) Release(ctx context.Context, token string) error {
	return releaseScript.Run(ctx, r.client, []string{runLockKey}, token).Err()
}
