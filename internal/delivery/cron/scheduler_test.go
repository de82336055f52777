package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/user/gig-sync-service/internal/entity"
	"github.com/user/gig-sync-service/internal/usecase"
)

type countingSync struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingSync) Start(_ context.Context, opts entity.RunOptions, queueIfBusy bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if opts.ClearExisting || queueIfBusy {
		return "", errors.New("scheduled runs never clear or queue")
	}
	return "run", c.err
}
func (c *countingSync) RunNow(context.Context, entity.RunOptions) (*entity.RunRecord, error) {
	return nil, nil
}
func (c *countingSync) Status(context.Context) (*entity.SyncStatus, error) { return nil, nil }
func (c *countingSync) Shutdown(context.Context) error                     { return nil }

func TestNewSchedulerRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	if _, err := NewScheduler("not a schedule", time.UTC, &countingSync{}, nil); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestTickStartsSync(t *testing.T) {
	t.Parallel()
	fake := &countingSync{}
	s, err := NewScheduler("0 2 * * *", time.UTC, fake, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	s.tick()
	fake.err = usecase.ErrAlreadyRunning
	s.tick()
	if fake.calls != 2 {
		t.Fatalf("calls = %d, want 2", fake.calls)
	}
}

func TestScheduleUsesLocation(t *testing.T) {
	t.Parallel()
	athens, err := time.LoadLocation("Europe/Athens")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	s, err := NewScheduler("0 2 * * *", athens, &countingSync{}, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	s.Start()
	defer s.Stop(context.Background())

	entries := s.cron.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	next := entries[0].Next.In(athens)
	if next.Hour() != 2 || next.Minute() != 0 {
		t.Errorf("next run %v is not 02:00 Athens time", next)
	}
}
