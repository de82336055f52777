package memory

import (
	"context"
	"sync"

	"github.com/user/gig-sync-service/internal/entity"
	"github.com/user/gig-sync-service/internal/repository"
)

// RunStatusRepoImpl keeps the last run record in memory.
type RunStatusRepoImpl struct {
	mu   sync.RWMutex
	last *entity.RunRecord
}

func NewRunStatusRepo() *RunStatusRepoImpl {
	return &RunStatusRepoImpl{}
}

func (r *RunStatusRepoImpl) SaveLastRun(_ context.Context, rec *entity.RunRecord) error {
	cp := *rec
	r.mu.Lock()
	r.last = &cp
	r.mu.Unlock()
	return nil
}

func (r *RunStatusRepoImpl) LastRun(_ context.Context) (*entity.RunRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return nil, repository.ErrNotFound
	}
	cp := *r.last
	return &cp, nil
}
