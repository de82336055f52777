package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/user/gig-sync-service/internal/entity"
	"github.com/user/gig-sync-service/internal/usecase"
	"github.com/user/gig-sync-service/pkg/logger"
	"go.uber.org/zap"
)

// Scheduler starts a sync on every tick of a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	sync   usecase.SyncManager
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler parses schedule in loc and registers the sync job.
func NewScheduler(schedule string, loc *time.Location, sync usecase.SyncManager, l *zap.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	log := logger.OrNop(l).With(zap.String("component", "cron"))
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cron.PrintfLogger(zap.NewStdLog(log))),
		),
		sync:   sync,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("parse cron schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.logger.Info("sync scheduled", zap.Time("next", e.Next))
	}
}

// Stop prevents further ticks and waits for a running tick to return. The sync
// it started keeps running in the sync service.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) tick() {
	runID, err := s.sync.Start(s.ctx, entity.RunOptions{}, false)
	switch {
	case errors.Is(err, usecase.ErrAlreadyRunning):
		s.logger.Info("sync already running, skipping scheduled run")
	case err != nil:
		s.logger.Error("failed to start scheduled sync", zap.Error(err))
	default:
		s.logger.Info("scheduled sync started", zap.String("run_id", runID))
	}
}
