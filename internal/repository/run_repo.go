package repository

import (
	"context"
	"time"

	"github.com/user/gig-sync-service/internal/entity"
)

// RunLockRepository guards against two processes syncing at the same time.
type RunLockRepository interface {
	// Acquire takes the lock for token. It returns false when another holder owns it.
	Acquire(ctx context.Context, token string, ttl time.Duration) (bool, error)
	// Release drops the lock if token still owns it.
	Release(ctx context.Context, token string) error
}

// RunStatusRepository keeps the outcome of the most recent run.
type RunStatusRepository interface {
	SaveLastRun(ctx context.Context, rec *entity.RunRecord) error
	// LastRun returns ErrNotFound before the first run.
	LastRun(ctx context.Context) (*entity.RunRecord, error)
}
