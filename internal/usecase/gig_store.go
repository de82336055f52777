package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/user/gig-sync-service/internal/entity"
	"github.com/user/gig-sync-service/internal/repository"
	"github.com/user/gig-sync-service/pkg/backoff"
	"github.com/user/gig-sync-service/pkg/logger"
	"github.com/user/gig-sync-service/pkg/metrics"
	"go.uber.org/zap"
)

// DuplicatePolicy decides which stored gigs count as the same event.
type DuplicatePolicy string

const (
	// DuplicateSameDay matches the title within the same UTC calendar day.
	DuplicateSameDay DuplicatePolicy = "day"
	// DuplicateExact matches the title at the same minute.
	DuplicateExact DuplicatePolicy = "exact"
)

// ParseDuplicatePolicy maps a config value to a policy, defaulting to DuplicateSameDay.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DuplicateSameDay:
		return DuplicateSameDay, nil
	case DuplicateExact:
		return DuplicateExact, nil
	}
	return "", fmt.Errorf("unknown duplicate policy %q", s)
}

// window returns the [from, to) range a duplicate of date must fall in.
func (p DuplicatePolicy) window(date time.Time) (time.Time, time.Time) {
	if p == DuplicateExact {
		from := date.UTC().Truncate(time.Minute)
		return from, from.Add(time.Minute)
	}
	d := date.UTC()
	from := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, 1)
}

const deletePageSize = 100

// GigStore sits in front of the gig repository. It caches venue ids for the
// lifetime of one run and checks for duplicates before creating gigs.
// It is not safe for concurrent use; one store serves one run.
type GigStore struct {
	repo    repository.GigRepository
	policy  backoff.Policy
	dupes   DuplicatePolicy
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger

	venues map[string]int64
}

// NewGigStore creates a store with an empty venue cache. timeout bounds every
// backing call; zero means no extra bound.
func NewGigStore(repo repository.GigRepository, policy backoff.Policy, dupes DuplicatePolicy, timeout time.Duration, m *metrics.Metrics, l *zap.Logger) *GigStore {
	if dupes == "" {
		dupes = DuplicateSameDay
	}
	return &GigStore{
		repo:    repo,
		policy:  policy,
		dupes:   dupes,
		timeout: timeout,
		metrics: m,
		logger:  logger.OrNop(l).With(zap.String("component", "gig_store")),
		venues:  make(map[string]int64),
	}
}

// GetOrCreateVenue returns the id of the venue called venue.Name, creating it when
// neither the cache nor the backing store knows it.
func (s *GigStore) GetOrCreateVenue(ctx context.Context, venue entity.Venue) (int64, error) {
	if strings.TrimSpace(venue.Name) == "" {
		venue.Name = entity.UnknownVenue
	}
	key := entity.VenueKey(venue.Name)
	if id, ok := s.venues[key]; ok {
		return id, nil
	}

	existing, err := retryCall(ctx, s, "find_venue", func(ctx context.Context) (*entity.Venue, error) {
		return s.repo.FindVenueByName(ctx, venue.Name)
	})
	switch {
	case err == nil:
		s.venues[key] = existing.ID
		return existing.ID, nil
	case !errors.Is(err, repository.ErrNotFound):
		return 0, fmt.Errorf("find venue %q: %w", venue.Name, err)
	}

	id, err := retryCall(ctx, s, "create_venue", func(ctx context.Context) (int64, error) {
		return s.repo.CreateVenue(ctx, venue)
	})
	if err != nil {
		return 0, fmt.Errorf("create venue %q: %w", venue.Name, err)
	}
	s.logger.Info("created venue", zap.String("venue", venue.Name), zap.Int64("id", id))
	s.venues[key] = id
	return id, nil
}

// FindGig returns the id of a stored duplicate of title at date, and false when there is none.
func (s *GigStore) FindGig(ctx context.Context, title string, date time.Time) (int64, bool, error) {
	from, to := s.dupes.window(date)
	id, err := retryCall(ctx, s, "find_gig", func(ctx context.Context) (int64, error) {
		return s.repo.FindGig(ctx, strings.TrimSpace(title), from, to)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find gig %q: %w", title, err)
	}
	return id, true, nil
}

// CreateGig stores gig under venueID.
func (s *GigStore) CreateGig(ctx context.Context, gig entity.Gig, venueID int64) (int64, error) {
	id, err := retryCall(ctx, s, "create_gig", func(ctx context.Context) (int64, error) {
		return s.repo.CreateGig(ctx, gig, venueID)
	})
	if err != nil {
		return 0, fmt.Errorf("create gig %q: %w", gig.Title, err)
	}
	return id, nil
}

// DeleteAll removes every stored gig and returns how many were deleted. The
// bulk path is tried first; when the backend refuses it, pages of gigs are
// listed and deleted one by one until none remain.
func (s *GigStore) DeleteAll(ctx context.Context) (int, error) {
	n, err := retryCall(ctx, s, "delete_all", func(ctx context.Context) (int, error) {
		return s.repo.DeleteAllGigs(ctx)
	})
	if err == nil {
		s.logger.Info("deleted all gigs", zap.Int("count", n))
		return n, nil
	}
	if !errors.Is(err, repository.ErrBulkDeleteUnavailable) {
		return 0, fmt.Errorf("delete all gigs: %w", err)
	}

	s.logger.Warn("bulk delete unavailable, deleting one by one", zap.Error(err))
	deleted := 0
	for {
		page, err := retryCall(ctx, s, "list_gigs", func(ctx context.Context) (*entity.GigPage, error) {
			return s.repo.ListGigs(ctx, deletePageSize)
		})
		if err != nil {
			return deleted, fmt.Errorf("list gigs: %w", err)
		}
		if len(page.Items) == 0 {
			break
		}

		progress := 0
		for _, ref := range page.Items {
			err := backoff.Do(ctx, s.observed("delete_gig"), func(ctx context.Context) error {
				return s.withTimeout(ctx, func(ctx context.Context) error { return s.repo.DeleteGig(ctx, ref) })
			})
			if err != nil {
				s.logger.Error("failed to delete gig", zap.Int64("id", ref.ID), zap.String("document_id", ref.DocumentID), zap.Error(err))
				continue
			}
			progress++
		}
		deleted += progress
		s.logger.Info("deleted page of gigs", zap.Int("deleted", progress), zap.Int("remaining", page.Total-progress))
		if progress == 0 {
			return deleted, fmt.Errorf("delete all gigs: no progress with %d remaining", page.Total)
		}
	}
	s.logger.Info("deleted all gigs", zap.Int("count", deleted))
	return deleted, nil
}

// CachedVenues reports the size of the venue cache.
func (s *GigStore) CachedVenues() int { return len(s.venues) }

func (s *GigStore) observed(op string) backoff.Policy {
	return observed(s.policy, op, s.metrics, s.logger)
}

func (s *GigStore) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	if s.timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}

// retryCall runs fn under the store's retry policy with a per-attempt timeout.
// ErrNotFound and ErrBulkDeleteUnavailable are answers, not failures: they are
// neither retried nor reported as failed attempts.
func retryCall[T any](ctx context.Context, s *GigStore, op string, fn func(context.Context) (T, error)) (T, error) {
	policy := s.policy
	retryable := policy.IsRetryable
	if retryable == nil {
		retryable = backoff.IsRetryable
	}
	policy.IsRetryable = func(err error) bool {
		return !isStoreAnswer(err) && retryable(err)
	}
	policy = observed(policy, op, s.metrics, s.logger)
	report := policy.OnAttempt
	policy.OnAttempt = func(attempt int, err error) {
		if !isStoreAnswer(err) {
			report(attempt, err)
		}
	}
	return backoff.Retry(ctx, policy, func(ctx context.Context) (T, error) {
		var out T
		err := s.withTimeout(ctx, func(ctx context.Context) error {
			var err error
			out, err = fn(ctx)
			return err
		})
		return out, err
	})
}

func isStoreAnswer(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrBulkDeleteUnavailable)
}
