package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/user/gig-sync-service/internal/entity"
	"github.com/user/gig-sync-service/internal/repository"
	"github.com/user/gig-sync-service/pkg/backoff"
)

// noRetry runs every operation once.
var noRetry = backoff.Policy{MaxAttempts: 1}

// quickRetry retries without waiting.
var quickRetry = backoff.Policy{MaxAttempts: 3, Multiplier: 1}

type fakeLLM struct {
	mu sync.Mutex

	filterURLs  func(results []entity.SearchResult) (string, error)
	eventLinks  func(links []string, pageURL string) (string, error)
	extract     func(pages []entity.PageContent) (string, error)
	extractions [][]entity.PageContent
}

func (f *fakeLLM) FilterURLs(_ context.Context, results []entity.SearchResult) (string, error) {
	if f.filterURLs == nil {
		return `{"promising_urls":[]}`, nil
	}
	return f.filterURLs(results)
}

func (f *fakeLLM) FilterEventLinks(_ context.Context, links []string, pageURL string) (string, error) {
	if f.eventLinks == nil {
		return `{"event_detail_urls":[]}`, nil
	}
	return f.eventLinks(links, pageURL)
}

func (f *fakeLLM) ExtractRecords(_ context.Context, pages []entity.PageContent) (string, error) {
	f.mu.Lock()
	f.extractions = append(f.extractions, pages)
	f.mu.Unlock()
	if f.extract == nil {
		return `{"gigs":[]}`, nil
	}
	return f.extract(pages)
}

func (f *fakeLLM) extractCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.extractions)
}

type fakeSearch struct {
	results map[string][]entity.SearchResult
	errs    map[string]error
	// block, when set, holds every call until it is closed or ctx ends.
	block chan struct{}

	mu      sync.Mutex
	queries []string
}

func (f *fakeSearch) Search(ctx context.Context, query string, limit int, _ entity.SearchOptions) ([]entity.SearchResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	res := f.results[query]
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

type fakeFetcher struct {
	pages  map[string]string
	delays map[string]time.Duration
	status map[string]int
	errs   map[string][]error // consumed one per call

	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*entity.FetchResult, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[url]++
	var err error
	if queued := f.errs[url]; len(queued) > 0 {
		err, f.errs[url] = queued[0], queued[1:]
	}
	f.mu.Unlock()

	if d := f.delays[url]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if code, ok := f.status[url]; ok {
		return &entity.FetchResult{URL: url, StatusCode: code}, nil
	}
	html, ok := f.pages[url]
	if !ok {
		return &entity.FetchResult{URL: url, StatusCode: 404}, nil
	}
	return &entity.FetchResult{URL: url, HTML: html, StatusCode: 200}, nil
}

func (f *fakeFetcher) callsFor(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type storedGig struct {
	id      int64
	gig     entity.Gig
	venueID int64
}

// fakeGigRepo is an in-memory GigRepository.
type fakeGigRepo struct {
	mu sync.Mutex

	venues []entity.Venue
	gigs   []storedGig
	nextID int64

	bulkUnavailable bool
	// stuck makes DeleteGig fail for every gig.
	stuck bool
	// failCreateGig fails CreateGig for titles listed here.
	failCreateGig map[string]error

	venueLookups int
	venueCreates int
	gigLookups   int
}

func (r *fakeGigRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *fakeGigRepo) FindVenueByName(_ context.Context, name string) (*entity.Venue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.venueLookups++
	for _, v := range r.venues {
		if strings.EqualFold(v.Name, name) {
			v := v
			return &v, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeGigRepo) CreateVenue(_ context.Context, venue entity.Venue) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.venueCreates++
	venue.ID = r.id()
	r.venues = append(r.venues, venue)
	return venue.ID, nil
}

func (r *fakeGigRepo) FindGig(_ context.Context, title string, from, to time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gigLookups++
	for _, g := range r.gigs {
		if strings.EqualFold(g.gig.Title, title) && !g.gig.Date.Before(from) && g.gig.Date.Before(to) {
			return g.id, nil
		}
	}
	return 0, repository.ErrNotFound
}

func (r *fakeGigRepo) CreateGig(_ context.Context, gig entity.Gig, venueID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failCreateGig[gig.Title]; err != nil {
		return 0, err
	}
	id := r.id()
	r.gigs = append(r.gigs, storedGig{id: id, gig: gig, venueID: venueID})
	return id, nil
}

func (r *fakeGigRepo) DeleteAllGigs(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bulkUnavailable {
		return 0, fmt.Errorf("%w: 405", repository.ErrBulkDeleteUnavailable)
	}
	n := len(r.gigs)
	r.gigs = nil
	return n, nil
}

func (r *fakeGigRepo) ListGigs(_ context.Context, pageSize int) (*entity.GigPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	page := &entity.GigPage{Total: len(r.gigs)}
	for i, g := range r.gigs {
		if i == pageSize {
			break
		}
		page.Items = append(page.Items, entity.GigRef{ID: g.id})
	}
	return page, nil
}

func (r *fakeGigRepo) DeleteGig(_ context.Context, ref entity.GigRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stuck {
		return errors.New("permission denied")
	}
	for i, g := range r.gigs {
		if g.id == ref.ID {
			r.gigs = append(r.gigs[:i], r.gigs[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *fakeGigRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.gigs)
}

func (r *fakeGigRepo) seedGigs(n int, date time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < n; i++ {
		r.gigs = append(r.gigs, storedGig{id: r.id(), gig: entity.Gig{Title: fmt.Sprintf("Gig %d", i), Date: date}})
	}
}
