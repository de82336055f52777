package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/gig-sync-service/internal/entity"
	"github.com/user/gig-sync-service/internal/repository"
	"github.com/user/gig-sync-service/pkg/backoff"
	"github.com/user/gig-sync-service/pkg/logger"
	"github.com/user/gig-sync-service/pkg/metrics"
	"github.com/user/gig-sync-service/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrEmptyDocument is reported for pages that loaded without any markup.
var ErrEmptyDocument = errors.New("empty document")

// Scraper turns URLs into page content with a bounded pool of workers.
type Scraper struct {
	fetcher     repository.Fetcher
	concurrency int
	limiter     *rate.Limiter
	policy      backoff.Policy
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewScraper creates a scraper running at most concurrency fetches at once.
// limiter may be nil for unthrottled fetching.
func NewScraper(fetcher repository.Fetcher, concurrency int, limiter *rate.Limiter, policy backoff.Policy, m *metrics.Metrics, l *zap.Logger) *Scraper {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scraper{
		fetcher:     fetcher,
		concurrency: concurrency,
		limiter:     limiter,
		policy:      policy,
		metrics:     m,
		logger:      logger.OrNop(l).With(zap.String("component", "scraper")),
	}
}

// ScrapeMany scrapes every URL and returns pages in input order.
// Workers claim the next index from a shared counter until none remain.
func (s *Scraper) ScrapeMany(ctx context.Context, urls []string) []entity.ScrapedPage {
	results := make([]entity.ScrapedPage, len(urls))
	if len(urls) == 0 {
		return results
	}

	workers := min(s.concurrency, len(urls))
	s.logger.Info("scraping urls", zap.Int("count", len(urls)), zap.Int("workers", workers))

	var next atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1) - 1)
				if i >= len(urls) {
					return
				}
				results[i] = s.Scrape(ctx, urls[i])
			}
		}()
	}
	wg.Wait()

	successful := 0
	for _, r := range results {
		if r.Success {
			successful++
		}
	}
	s.logger.Info("scraping finished", zap.Int("successful", successful), zap.Int("total", len(urls)))
	return results
}

// Scrape fetches one URL and extracts its text and links. It never panics or
// returns an error; failures come back as a page with Success=false.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (page entity.ScrapedPage) {
	start := time.Now()
	domain := utils.Hostname(rawURL)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scrape panicked", zap.String("url", rawURL), zap.Any("panic", r))
			page = entity.FailedPage(rawURL, fmt.Errorf("scrape panicked: %v", r))
		}
		s.metrics.ObserveScrape(domain, page.Success, time.Since(start))
	}()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return entity.FailedPage(rawURL, err)
		}
	}

	policy := observed(s.policy, "fetch", s.metrics, s.logger, zap.String("url", rawURL))
	res, err := backoff.Retry(ctx, policy, func(ctx context.Context) (*entity.FetchResult, error) {
		res, err := s.fetcher.Fetch(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if res.StatusCode >= http.StatusBadRequest {
			return nil, &repository.StatusError{Op: "fetch " + rawURL, StatusCode: res.StatusCode}
		}
		return res, nil
	})
	if err != nil {
		s.logger.Warn("failed to scrape", zap.String("url", rawURL), zap.Error(err))
		return entity.FailedPage(rawURL, err)
	}
	if res.HTML == "" {
		return entity.FailedPage(rawURL, ErrEmptyDocument)
	}

	text, links, err := ExtractPage(rawURL, res.HTML)
	if err != nil {
		// The markup is still usable by the raw fallback.
		s.logger.Warn("text extraction failed, keeping raw html", zap.String("url", rawURL), zap.Error(err))
	}
	s.logger.Debug("scraped url",
		zap.String("url", rawURL),
		zap.Int("text_length", len(text)),
		zap.Int("links", len(links)),
		zap.Duration("duration", time.Since(start)),
	)
	return entity.ScrapedPage{
		URL:     rawURL,
		Text:    text,
		RawHTML: res.HTML,
		Success: true,
		Links:   links,
	}
}
