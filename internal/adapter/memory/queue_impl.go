// Package memory holds in-process repositories used when Redis is not configured.
package memory

import (
	"context"
	"sync"

	"github.com/user/gig-sync-service/internal/entity"
)

// QueueRepoImpl is a FIFO of sync requests.
type QueueRepoImpl struct {
	mu    sync.Mutex
	items []entity.RunOptions
}

func NewQueueRepo() *QueueRepoImpl {
	return &QueueRepoImpl{}
}

func (r *QueueRepoImpl) Push(_ context.Context, opts entity.RunOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, opts)
	return nil
}

func (r *QueueRepoImpl) Pop(_ context.Context) (entity.RunOptions, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return entity.RunOptions{}, false, nil
	}
	opts := r.items[0]
	r.items = r.items[1:]
	return opts, true, nil
}

func (r *QueueRepoImpl) Size(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.items)), nil
}
