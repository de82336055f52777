package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/user/gig-sync-service/internal/entity"
)

func TestGetOrCreateVenueCaches(t *testing.T) {
	t.Parallel()
	repo := &fakeGigRepo{}
	store := NewGigStore(repo, quickRetry, DuplicateSameDay, 0, nil, nil)
	ctx := context.Background()

	first, err := store.GetOrCreateVenue(ctx, entity.Venue{Name: "Six Dogs", Address: "Avramiotou 6-8"})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := store.GetOrCreateVenue(ctx, entity.Venue{Name: "  six dogs "})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first != second {
		t.Errorf("ids differ: %d vs %d", first, second)
	}
	if repo.venueCreates != 1 || repo.venueLookups != 1 {
		t.Errorf("creates = %d lookups = %d, want 1 and 1", repo.venueCreates, repo.venueLookups)
	}
	if store.CachedVenues() != 1 {
		t.Errorf("cached = %d", store.CachedVenues())
	}
	if repo.venues[0].Address != "Avramiotou 6-8" {
		t.Errorf("venue details lost: %+v", repo.venues[0])
	}
}

func TestGetOrCreateVenueFindsExisting(t *testing.T) {
	t.Parallel()
	repo := &fakeGigRepo{venues: []entity.Venue{{ID: 7, Name: "Gagarin 205"}}}
	store := NewGigStore(repo, quickRetry, DuplicateSameDay, 0, nil, nil)

	id, err := store.GetOrCreateVenue(context.Background(), entity.Venue{Name: "GAGARIN 205"})
	if err != nil || id != 7 {
		t.Fatalf("id = %d, err = %v", id, err)
	}
	if repo.venueCreates != 0 {
		t.Errorf("created %d venues", repo.venueCreates)
	}
	// A not-found answer is not retried: one lookup per unknown venue.
	if _, err := store.GetOrCreateVenue(context.Background(), entity.Venue{}); err != nil {
		t.Fatalf("unknown venue: %v", err)
	}
	if repo.venueLookups != 2 {
		t.Errorf("lookups = %d, want 2", repo.venueLookups)
	}
	if repo.venues[1].Name != entity.UnknownVenue {
		t.Errorf("blank venue stored as %q", repo.venues[1].Name)
	}
}

func TestFindGigDuplicatePolicies(t *testing.T) {
	t.Parallel()
	stored := time.Date(2026, 11, 20, 21, 0, 0, 0, time.UTC)
	tests := []struct {
		policy DuplicatePolicy
		date   time.Time
		want   bool
	}{
		{DuplicateSameDay, stored, true},
		{DuplicateSameDay, time.Date(2026, 11, 20, 9, 30, 0, 0, time.UTC), true},
		{DuplicateSameDay, time.Date(2026, 11, 21, 0, 0, 0, 0, time.UTC), false},
		{DuplicateExact, stored.Add(30 * time.Second), true},
		{DuplicateExact, stored.Add(time.Hour), false},
	}
	for _, tt := range tests {
		repo := &fakeGigRepo{}
		repo.gigs = append(repo.gigs, storedGig{id: 1, gig: entity.Gig{Title: "Planet of Zeus", Date: stored}})
		store := NewGigStore(repo, noRetry, tt.policy, 0, nil, nil)

		_, found, err := store.FindGig(context.Background(), "planet of zeus", tt.date)
		if err != nil {
			t.Fatalf("FindGig: %v", err)
		}
		if found != tt.want {
			t.Errorf("policy %s at %v: found = %v, want %v", tt.policy, tt.date, found, tt.want)
		}
	}
}

func TestParseDuplicatePolicy(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]DuplicatePolicy{"": DuplicateSameDay, "DAY": DuplicateSameDay, " exact ": DuplicateExact} {
		got, err := ParseDuplicatePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseDuplicatePolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDuplicatePolicy("fuzzy"); err == nil {
		t.Error("expected an error for an unknown policy")
	}
}

func TestDeleteAllBulk(t *testing.T) {
	t.Parallel()
	repo := &fakeGigRepo{}
	repo.seedGigs(5, testNow)
	n, err := NewGigStore(repo, noRetry, DuplicateSameDay, 0, nil, nil).DeleteAll(context.Background())
	if err != nil || n != 5 {
		t.Fatalf("n = %d, err = %v", n, err)
	}
	if repo.count() != 0 {
		t.Errorf("%d gigs remain", repo.count())
	}
}

func TestDeleteAllFallsBackToPages(t *testing.T) {
	t.Parallel()
	repo := &fakeGigRepo{bulkUnavailable: true}
	repo.seedGigs(250, testNow)
	n, err := NewGigStore(repo, quickRetry, DuplicateSameDay, 0, nil, nil).DeleteAll(context.Background())
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if n != 250 || repo.count() != 0 {
		t.Fatalf("deleted = %d, remaining = %d", n, repo.count())
	}
}

func TestDeleteAllStopsWithoutProgress(t *testing.T) {
	t.Parallel()
	repo := &fakeGigRepo{bulkUnavailable: true, stuck: true}
	repo.seedGigs(3, testNow)
	n, err := NewGigStore(repo, noRetry, DuplicateSameDay, 0, nil, nil).DeleteAll(context.Background())
	if err == nil {
		t.Fatal("expected an error when nothing can be deleted")
	}
	if n != 0 || repo.count() != 3 {
		t.Errorf("deleted = %d, remaining = %d", n, repo.count())
	}
}

type slowGigRepo struct{ fakeGigRepo }

func (r *slowGigRepo) FindGig(ctx context.Context, _ string, _, _ time.Time) (int64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestStoreCallsAreBounded(t *testing.T) {
	t.Parallel()
	store := NewGigStore(&slowGigRepo{}, noRetry, DuplicateSameDay, 20*time.Millisecond, nil, nil)
	_, _, err := store.FindGig(context.Background(), "Anything", testNow)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}
