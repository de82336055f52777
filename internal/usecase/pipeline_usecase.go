package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/user/gig-sync-service/internal/entity"
	"github.com/user/gig-sync-service/internal/repository"
	"github.com/user/gig-sync-service/pkg/backoff"
	"github.com/user/gig-sync-service/pkg/logger"
	"github.com/user/gig-sync-service/pkg/metrics"
	"github.com/user/gig-sync-service/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrAlreadyRunning is returned when a run is requested while another one is active.
var ErrAlreadyRunning = errors.New("sync already running")

// PipelineConfig holds the per-run knobs of the sync pipeline.
type PipelineConfig struct {
	// Queries replaces the built-in query set when non-empty.
	Queries        []entity.SearchQuery
	Country        string
	Location       *time.Location
	SearchCount    int
	QuerySpacing   time.Duration
	SeedURLs       []string
	MaxDetailPages int
	Duplicates     DuplicatePolicy
	StoreTimeout   time.Duration
}

// DefaultQueries is the built-in discovery query set for Athens.
func DefaultQueries(now time.Time, country string) []entity.SearchQuery {
	year := now.Year()
	return []entity.SearchQuery{
		{
			Query:   fmt.Sprintf("συναυλίες Αθήνα %d", year),
			Options: entity.SearchOptions{Country: country, SearchLang: "el", ExtraSnippets: true},
		},
		{
			Query:   fmt.Sprintf("rock metal alternative concerts Athens Greece %d", year),
			Options: entity.SearchOptions{Country: country, ExtraSnippets: true},
		},
		{
			Query:   fmt.Sprintf("live music Athens venues upcoming shows %d", year),
			Options: entity.SearchOptions{Country: country, ExtraSnippets: true},
		},
		{
			Query:   "gigs Athens " + DateRangeQuery(now, 30),
			Options: entity.SearchOptions{Country: country, ExtraSnippets: true},
		},
	}
}

// DateRangeQuery names the months covered by the next days days, e.g.
// "October 2026", "October-November 2026" or "December 2026-January 2027".
func DateRangeQuery(now time.Time, days int) string {
	end := now.AddDate(0, 0, days)
	switch {
	case now.Year() == end.Year() && now.Month() == end.Month():
		return fmt.Sprintf("%s %d", now.Month(), now.Year())
	case now.Year() == end.Year():
		return fmt.Sprintf("%s-%s %d", now.Month(), end.Month(), now.Year())
	default:
		return fmt.Sprintf("%s %d-%s %d", now.Month(), now.Year(), end.Month(), end.Year())
	}
}

// Progress is a snapshot of the active run.
type Progress struct {
	Running   bool
	Stage     entity.RunStage
	RunID     string
	StartedAt time.Time
}

// RunToken is the permission to execute one run. Only one token per pipeline
// is outstanding at a time.
type RunToken struct {
	ID        string
	StartedAt time.Time

	pipeline *Pipeline
	released atomic.Bool
}

// Release ends the run and makes the pipeline idle. Calling it twice is harmless.
func (t *RunToken) Release() {
	if t == nil || !t.released.CompareAndSwap(false, true) {
		return
	}
	t.pipeline.release(t)
}

// Pipeline runs discovery, link extraction, detail scraping, extraction and
// storage in sequence and reports what each stage produced.
type Pipeline struct {
	search    repository.SearchRepository
	selector  *LinkSelector
	scraper   *Scraper
	extractor *BatchExtractor
	gigs      repository.GigRepository
	policy    backoff.Policy
	cfg       PipelineConfig
	metrics   *metrics.Metrics
	base      *zap.Logger
	logger    *zap.Logger

	shuffle func([]string)
	now     func() time.Time

	active  atomic.Bool
	mu      sync.Mutex
	current *RunToken
	stage   entity.RunStage
}

func NewPipeline(
	search repository.SearchRepository,
	selector *LinkSelector,
	scraper *Scraper,
	extractor *BatchExtractor,
	gigs repository.GigRepository,
	policy backoff.Policy,
	cfg PipelineConfig,
	m *metrics.Metrics,
	l *zap.Logger,
) *Pipeline {
	if cfg.SearchCount <= 0 {
		cfg.SearchCount = 20
	}
	if cfg.MaxDetailPages <= 0 {
		cfg.MaxDetailPages = 100
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	base := logger.OrNop(l)
	return &Pipeline{
		search:    search,
		selector:  selector,
		scraper:   scraper,
		extractor: extractor,
		gigs:      gigs,
		policy:    policy,
		cfg:       cfg,
		metrics:   m,
		base:      base,
		logger:    base.With(zap.String("component", "pipeline")),
		shuffle: func(urls []string) {
			rand.Shuffle(len(urls), func(i, j int) { urls[i], urls[j] = urls[j], urls[i] })
		},
		now:   time.Now,
		stage: entity.StageIdle,
	}
}

// IsIdle reports whether a run may start.
func (p *Pipeline) IsIdle() bool { return !p.active.Load() }

// Progress returns the stage of the active run, or an idle snapshot.
func (p *Pipeline) Progress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return Progress{Stage: entity.StageIdle}
	}
	return Progress{Running: true, Stage: p.stage, RunID: p.current.ID, StartedAt: p.current.StartedAt}
}

// Begin claims the pipeline for one run. It returns ErrAlreadyRunning while
// another token is outstanding.
func (p *Pipeline) Begin() (*RunToken, error) {
	if !p.active.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	tok := &RunToken{ID: uuid.NewString(), StartedAt: time.Now(), pipeline: p}
	p.mu.Lock()
	p.current = tok
	p.stage = entity.StageIdle
	p.mu.Unlock()
	return tok, nil
}

func (p *Pipeline) release(tok *RunToken) {
	p.mu.Lock()
	if p.current == tok {
		p.current = nil
		p.stage = entity.StageIdle
	}
	p.mu.Unlock()
	p.active.Store(false)
}

// Run claims the pipeline, executes one run and releases it.
func (p *Pipeline) Run(ctx context.Context, opts entity.RunOptions) (entity.RunStats, error) {
	tok, err := p.Begin()
	if err != nil {
		return entity.RunStats{}, err
	}
	defer tok.Release()
	return p.Execute(ctx, tok, opts)
}

// Execute performs the run tok was issued for. Stages that produce nothing end
// the run early without error. The returned stats reflect progress even when an
// error is returned.
func (p *Pipeline) Execute(ctx context.Context, tok *RunToken, opts entity.RunOptions) (stats entity.RunStats, err error) {
	p.mu.Lock()
	owned := tok != nil && p.current == tok
	p.mu.Unlock()
	if !owned {
		return stats, errors.New("run token is not active")
	}

	log := p.logger.With(zap.String("run_id", tok.ID))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync run panicked: %v", r)
		}
		outcome := "success"
		if err != nil {
			stats.Errors++
			outcome = "failed"
			log.Error("fatal error during sync", zap.Error(err), zap.Any("stats", stats))
		} else {
			log.Info("sync complete",
				zap.Any("stats", stats),
				zap.Int("gigs_dropped", stats.GigsDropped),
				zap.Duration("duration", time.Since(start)))
		}
		p.metrics.ObserveRun(outcome, time.Since(start))
		p.setStage(entity.StageDone)
	}()

	store := NewGigStore(p.gigs, p.policy, p.cfg.Duplicates, p.cfg.StoreTimeout, p.metrics, p.base.With(zap.String("run_id", tok.ID)))
	log.Info("starting gig sync", zap.Bool("clear_existing", opts.ClearExisting))

	if opts.ClearExisting {
		p.setStage(entity.StageClearing)
		n, err := store.DeleteAll(ctx)
		if err != nil {
			return stats, fmt.Errorf("clear existing gigs: %w", err)
		}
		log.Info("cleared existing gigs", zap.Int("deleted", n))
	}

	p.setStage(entity.StageDiscovering)
	results := p.discover(ctx, log, &stats)
	stats.SearchResults = len(results)
	p.metrics.SetStageItems(string(entity.StageDiscovering), len(results))
	if len(results) == 0 {
		log.Warn("no search results found, ending run")
		return stats, ctx.Err()
	}

	p.setStage(entity.StageFiltering)
	promising, ferr := p.selector.PromisingURLs(ctx, results)
	if ferr != nil {
		stats.Errors++
		log.Error("url filter failed, continuing with seed urls", zap.Error(ferr))
	}
	promising = appendMissing(promising, p.cfg.SeedURLs)
	stats.FilteredURLs = len(promising)
	p.metrics.SetStageItems(string(entity.StageFiltering), len(promising))
	log.Info("filtered to promising urls", zap.Int("count", len(promising)), zap.Strings("urls", promising))
	if len(promising) == 0 {
		log.Warn("no promising urls, ending run")
		return stats, ctx.Err()
	}

	p.setStage(entity.StageLinkExtracting)
	detailURLs := p.collectDetailURLs(ctx, log, promising, &stats)
	p.metrics.SetStageItems(string(entity.StageLinkExtracting), len(detailURLs))
	if len(detailURLs) == 0 {
		log.Warn("no event detail urls found, ending run")
		return stats, ctx.Err()
	}

	p.setStage(entity.StageDetailScraping)
	pages := p.scraper.ScrapeMany(ctx, detailURLs)
	var scraped []entity.ScrapedPage
	for _, page := range pages {
		if page.Success {
			scraped = append(scraped, page)
		}
	}
	stats.ScrapedURLs = len(scraped)
	p.metrics.SetStageItems(string(entity.StageDetailScraping), len(scraped))
	log.Info("scraped detail pages", zap.Int("successful", len(scraped)), zap.Int("requested", len(detailURLs)))
	if len(scraped) == 0 {
		log.Warn("no detail pages scraped, ending run")
		return stats, ctx.Err()
	}

	p.setStage(entity.StageExtracting)
	report := p.extractor.ExtractAll(ctx, scraped)
	stats.GigsExtracted = len(report.Gigs)
	stats.GigsDropped = report.Dropped
	stats.Errors += report.FailedChunks
	p.metrics.SetStageItems(string(entity.StageExtracting), len(report.Gigs))
	if len(report.Gigs) == 0 {
		log.Warn("no gigs extracted, ending run")
		return stats, ctx.Err()
	}

	p.setStage(entity.StageStoring)
	for _, gig := range report.Gigs {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		outcome := p.storeGig(ctx, log, store, gig)
		switch outcome {
		case "created":
			stats.GigsCreated++
		case "skipped":
			stats.GigsSkipped++
		default:
			stats.Errors++
		}
		p.metrics.IncGig(outcome)
	}
	p.metrics.SetStageItems(string(entity.StageStoring), stats.GigsCreated)
	return stats, nil
}

// discover runs every query in order, spaced to respect the search API rate limit.
func (p *Pipeline) discover(ctx context.Context, log *zap.Logger, stats *entity.RunStats) []entity.SearchResult {
	limit := rate.Inf
	if p.cfg.QuerySpacing > 0 {
		limit = rate.Every(p.cfg.QuerySpacing)
	}
	limiter := rate.NewLimiter(limit, 1)

	seen := make(map[string]struct{})
	var results []entity.SearchResult
	for _, q := range p.queries() {
		if err := limiter.Wait(ctx); err != nil {
			log.Warn("discovery interrupted", zap.Error(err))
			break
		}
		policy := observed(p.policy, "search", p.metrics, log, zap.String("query", q.Query))
		found, err := backoff.Retry(ctx, policy, func(ctx context.Context) ([]entity.SearchResult, error) {
			return p.search.Search(ctx, q.Query, p.cfg.SearchCount, q.Options)
		})
		if err != nil {
			stats.Errors++
			log.Error("search query failed", zap.String("query", q.Query), zap.Error(err))
			continue
		}
		for _, r := range found {
			if _, dup := seen[r.URL]; dup || r.URL == "" {
				continue
			}
			seen[r.URL] = struct{}{}
			results = append(results, r)
		}
		log.Info("search query done", zap.String("query", q.Query), zap.Int("results", len(found)))
	}
	log.Info("found search results", zap.Int("count", len(results)))
	return results
}

// queries returns the configured queries, or the built-in set dated for today.
func (p *Pipeline) queries() []entity.SearchQuery {
	if len(p.cfg.Queries) > 0 {
		return p.cfg.Queries
	}
	return DefaultQueries(p.now().In(p.cfg.Location), p.cfg.Country)
}

// collectDetailURLs scrapes listing pages and asks which of their links are event
// pages. A page without links is taken to be a detail page itself.
func (p *Pipeline) collectDetailURLs(ctx context.Context, log *zap.Logger, listings []string, stats *entity.RunStats) []string {
	pages := p.scraper.ScrapeMany(ctx, listings)
	var detail []string
	for _, page := range pages {
		if !page.Success {
			continue
		}
		if len(page.Links) == 0 {
			log.Info("no links found, treating as detail page", zap.String("url", page.URL))
			detail = append(detail, page.URL)
			continue
		}
		urls, err := p.selector.EventLinks(ctx, page.Links, page.URL)
		if err != nil {
			stats.Errors++
			log.Error("event link filter failed", zap.String("url", page.URL), zap.Error(err))
			continue
		}
		log.Info("extracted event detail urls",
			zap.String("url", page.URL), zap.Int("links", len(page.Links)), zap.Int("event_urls", len(urls)))
		detail = append(detail, urls...)
	}

	detail = utils.Dedupe(detail)
	p.shuffle(detail)
	if len(detail) > p.cfg.MaxDetailPages {
		log.Info("limiting detail pages", zap.Int("found", len(detail)), zap.Int("limit", p.cfg.MaxDetailPages))
		detail = detail[:p.cfg.MaxDetailPages]
	}
	return detail
}

// storeGig creates gig unless a duplicate exists. It returns created, skipped or failed.
func (p *Pipeline) storeGig(ctx context.Context, log *zap.Logger, store *GigStore, gig entity.Gig) string {
	fields := []zap.Field{zap.String("title", gig.Title), zap.Time("date", gig.Date)}
	if _, exists, err := store.FindGig(ctx, gig.Title, gig.Date); err != nil {
		log.Error("failed to check for duplicate gig", append(fields, zap.Error(err))...)
		return "failed"
	} else if exists {
		log.Info("skipping duplicate gig", fields...)
		return "skipped"
	}

	venue := entity.Venue{Name: gig.VenueName}
	if gig.VenueDetails != nil {
		venue = *gig.VenueDetails
	}
	venueID, err := store.GetOrCreateVenue(ctx, venue)
	if err != nil {
		log.Error("failed to resolve venue", append(fields, zap.String("venue", venue.Name), zap.Error(err))...)
		return "failed"
	}
	if _, err := store.CreateGig(ctx, gig, venueID); err != nil {
		log.Error("failed to store gig", append(fields, zap.Error(err))...)
		return "failed"
	}
	log.Info("created gig", append(fields, zap.String("venue", venue.Name))...)
	return "created"
}

func (p *Pipeline) setStage(stage entity.RunStage) {
	p.mu.Lock()
	p.stage = stage
	p.mu.Unlock()
	p.logger.Debug("stage changed", zap.String("stage", string(stage)))
}

// appendMissing appends the entries of extra not already in urls.
func appendMissing(urls, extra []string) []string {
	out := append([]string(nil), urls...)
	seen := make(map[string]struct{}, len(out))
	for _, u := range out {
		seen[u] = struct{}{}
	}
	for _, u := range extra {
		if _, ok := seen[u]; !ok {
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}
