package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/user/gig-sync-service/internal/entity"
	"github.com/user/gig-sync-service/internal/repository"
)

const (
	lastRunKey = keyPrefix + "last_run"
	lastRunTTL = 30 * 24 * time.Hour
)

// RunStatusRepoImpl stores the last run record as JSON.
type RunStatusRepoImpl struct {
	client *redis.Client
}

// NewRunStatusRepo creates a new instance of RunStatusRepoImpl.
func NewRunStatusRepo(client *redis.Client) *RunStatusRepoImpl {
	return &RunStatusRepoImpl{client: client}
}

func (r *RunStatusRepoImpl) SaveLastRun(ctx context.Context, rec *entity.RunRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	return r.client.Set(ctx, lastRunKey, b, lastRunTTL).Err()
}

func (r *RunStatusRepoImpl) LastRun(ctx context.Context) (*entity.RunRecord, error) {
	b, err := r.client.Get(ctx, lastRunKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec entity.RunRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode run record: %w", err)
	}
	return &rec, nil
}
