package repository

import (
	"context"

	"github.com/user/gig-sync-service/internal/entity"
)

// SyncQueueRepository is a FIFO of sync requests deferred while a run was active.
type SyncQueueRepository interface {
	// Push adds a request to the end of the queue.
	Push(ctx context.Context, opts entity.RunOptions) error
	// Pop removes and returns the oldest request. ok is false when the queue is empty.
	Pop(ctx context.Context) (opts entity.RunOptions, ok bool, err error)
	// Size returns the current number of queued requests.
	Size(ctx context.Context) (int64, error)
}
