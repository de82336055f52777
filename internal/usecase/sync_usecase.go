package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/user/gig-sync-service/internal/entity"
	"github.com/user/gig-sync-service/internal/repository"
	"github.com/user/gig-sync-service/pkg/logger"
	"go.uber.org/zap"
)

var (
	// ErrSyncQueued is returned when a request was deferred behind the active run.
	ErrSyncQueued = errors.New("sync queued behind the active run")
	// ErrShuttingDown is returned for requests made after Shutdown.
	ErrShuttingDown = errors.New("sync service is shutting down")
)

// SyncManager hosts pipeline runs for the HTTP API and the scheduler.
type SyncManager interface {
	// Start launches a run in the background and returns its id. When a run is
	// already active it returns ErrAlreadyRunning, or queues the request and
	// returns ErrSyncQueued when queueIfBusy is set.
	Start(ctx context.Context, opts entity.RunOptions, queueIfBusy bool) (string, error)
	// RunNow executes a run in the caller's goroutine and returns its record.
	RunNow(ctx context.Context, opts entity.RunOptions) (*entity.RunRecord, error)
	Status(ctx context.Context) (*entity.SyncStatus, error)
	// Shutdown cancels active runs and waits for them to return.
	Shutdown(ctx context.Context) error
}

// SyncOptions configures the sync service.
type SyncOptions struct {
	// LockTTL bounds how long a crashed process can hold the cross-process lock.
	LockTTL time.Duration
	// RunTimeout bounds a single run. Zero means no bound.
	RunTimeout time.Duration
}

type syncUseCase struct {
	pipeline *Pipeline
	queue    repository.SyncQueueRepository
	status   repository.RunStatusRepository
	lock     repository.RunLockRepository
	opts     SyncOptions
	logger   *zap.Logger

	root   context.Context
	cancel context.CancelFunc

	// mu orders wg.Add against Shutdown so no run starts untracked.
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// NewSyncManager creates the sync service. lock may be nil when only one
// process runs the pipeline.
func NewSyncManager(
	pipeline *Pipeline,
	queue repository.SyncQueueRepository,
	status repository.RunStatusRepository,
	lock repository.RunLockRepository,
	opts SyncOptions,
	l *zap.Logger,
) SyncManager {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 2 * time.Hour
	}
	root, cancel := context.WithCancel(context.Background())
	return &syncUseCase{
		pipeline: pipeline,
		queue:    queue,
		status:   status,
		lock:     lock,
		opts:     opts,
		logger:   logger.OrNop(l).With(zap.String("component", "sync")),
		root:     root,
		cancel:   cancel,
	}
}

func (uc *syncUseCase) Start(ctx context.Context, opts entity.RunOptions, queueIfBusy bool) (string, error) {
	if err := uc.track(); err != nil {
		return "", err
	}
	tok, err := uc.claim(ctx)
	if err != nil {
		uc.wg.Done()
	}
	if errors.Is(err, ErrAlreadyRunning) && queueIfBusy {
		if perr := uc.queue.Push(ctx, opts); perr != nil {
			return "", fmt.Errorf("queue sync request: %w", perr)
		}
		uc.logger.Info("sync already running, request queued", zap.Bool("clear_existing", opts.ClearExisting))
		return "", ErrSyncQueued
	}
	if err != nil {
		return "", err
	}

	go func() {
		defer uc.wg.Done()
		uc.execute(tok, opts)
		uc.drainQueue()
	}()
	return tok.ID, nil
}

func (uc *syncUseCase) RunNow(ctx context.Context, opts entity.RunOptions) (*entity.RunRecord, error) {
	if err := uc.track(); err != nil {
		return nil, err
	}
	defer uc.wg.Done()
	tok, err := uc.claim(ctx)
	if err != nil {
		return nil, err
	}

	// Stop the run on shutdown as well as when the caller goes away.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(uc.root, cancel)
	defer stop()

	rec := uc.executeWith(runCtx, tok, opts)
	if uc.track() == nil {
		go func() {
			defer uc.wg.Done()
			uc.drainQueue()
		}()
	}
	if rec.Error != "" {
		return rec, errors.New(rec.Error)
	}
	return rec, nil
}

func (uc *syncUseCase) Status(ctx context.Context) (*entity.SyncStatus, error) {
	progress := uc.pipeline.Progress()
	st := &entity.SyncStatus{
		Running: progress.Running,
		Stage:   progress.Stage,
		RunID:   progress.RunID,
	}
	if progress.Running {
		started := progress.StartedAt
		st.StartedAt = &started
	}

	size, err := uc.queue.Size(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue size: %w", err)
	}
	st.Queued = size

	last, err := uc.status.LastRun(ctx)
	switch {
	case err == nil:
		st.LastRun = last
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("last run: %w", err)
	}
	return st, nil
}

func (uc *syncUseCase) Shutdown(ctx context.Context) error {
	uc.mu.Lock()
	uc.closing = true
	uc.cancel()
	uc.mu.Unlock()
	done := make(chan struct{})
	go func() {
		uc.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sync runs: %w", ctx.Err())
	}
}

// track registers one unit of work with Shutdown, or refuses once it has begun.
func (uc *syncUseCase) track() error {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.closing {
		return ErrShuttingDown
	}
	uc.wg.Add(1)
	return nil
}

// claim takes the in-process run token and, when configured, the cross-process lock.
func (uc *syncUseCase) claim(ctx context.Context) (*RunToken, error) {
	tok, err := uc.pipeline.Begin()
	if err != nil {
		return nil, err
	}
	if uc.lock == nil {
		return tok, nil
	}
	ok, err := uc.lock.Acquire(ctx, tok.ID, uc.opts.LockTTL)
	if err != nil {
		tok.Release()
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		tok.Release()
		uc.logger.Info("another process holds the run lock")
		return nil, ErrAlreadyRunning
	}
	return tok, nil
}

func (uc *syncUseCase) execute(tok *RunToken, opts entity.RunOptions) {
	uc.executeWith(uc.root, tok, opts)
}

// executeWith runs the pipeline, releases the token and lock, and records the outcome.
func (uc *syncUseCase) executeWith(ctx context.Context, tok *RunToken, opts entity.RunOptions) *entity.RunRecord {
	if uc.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.opts.RunTimeout)
		defer cancel()
	}

	rec := &entity.RunRecord{RunID: tok.ID, Options: opts, StartedAt: tok.StartedAt}
	stats, err := uc.pipeline.Execute(ctx, tok, opts)
	rec.FinishedAt = time.Now()
	rec.Duration = rec.FinishedAt.Sub(rec.StartedAt)
	rec.Stats = stats
	if err != nil {
		rec.Error = err.Error()
	}

	// The run context may already be cancelled; bookkeeping gets its own.
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if uc.lock != nil {
		if err := uc.lock.Release(bg, tok.ID); err != nil {
			uc.logger.Warn("failed to release run lock", zap.String("run_id", tok.ID), zap.Error(err))
		}
	}
	tok.Release()

	if err := uc.status.SaveLastRun(bg, rec); err != nil {
		uc.logger.Error("failed to save run status", zap.String("run_id", tok.ID), zap.Error(err))
	}
	return rec
}

// drainQueue starts the oldest deferred request, if any. The started run drains
// the queue further when it finishes.
func (uc *syncUseCase) drainQueue() {
	if uc.root.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(uc.root, 10*time.Second)
	defer cancel()

	opts, ok, err := uc.queue.Pop(ctx)
	if err != nil {
		uc.logger.Error("failed to pop queued sync request", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	id, err := uc.Start(ctx, opts, true)
	switch {
	case err == nil:
		uc.logger.Info("started queued sync", zap.String("run_id", id))
	case errors.Is(err, ErrSyncQueued):
		uc.logger.Info("queued sync deferred again")
	default:
		uc.logger.Error("failed to start queued sync", zap.Error(err))
	}
}
