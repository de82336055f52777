package usecase

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/user/gig-sync-service/internal/entity"
	"github.com/user/gig-sync-service/internal/repository"
	"github.com/user/gig-sync-service/pkg/backoff"
	"github.com/user/gig-sync-service/pkg/logger"
	"github.com/user/gig-sync-service/pkg/metrics"
	"github.com/user/gig-sync-service/pkg/salvage"
	"github.com/user/gig-sync-service/pkg/utils"
	"go.uber.org/zap"
)

// maxEventLinksPerPage caps how many detail links one listing page may contribute.
const maxEventLinksPerPage = 20

// LinkSelector asks the language model which URLs are worth scraping.
type LinkSelector struct {
	llm     repository.LLMRepository
	policy  backoff.Policy
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewLinkSelector(llm repository.LLMRepository, policy backoff.Policy, m *metrics.Metrics, l *zap.Logger) *LinkSelector {
	return &LinkSelector{
		llm:     llm,
		policy:  policy,
		metrics: m,
		logger:  logger.OrNop(l).With(zap.String("component", "link_selector")),
	}
}

// PromisingURLs returns the search result URLs likely to list upcoming gigs.
// An unparseable answer yields no URLs and no error.
func (s *LinkSelector) PromisingURLs(ctx context.Context, results []entity.SearchResult) ([]string, error) {
	if len(results) == 0 {
		return nil, nil
	}
	policy := observed(s.policy, "filter_urls", s.metrics, s.logger)
	raw, err := backoff.Retry(ctx, policy, func(ctx context.Context) (string, error) {
		return s.llm.FilterURLs(ctx, results)
	})
	s.metrics.IncLLMCall("filter_urls", err == nil)
	if err != nil {
		return nil, fmt.Errorf("filter urls: %w", err)
	}

	urls := salvage.Records[string](raw, "promising_urls")
	if urls == nil {
		s.logger.Warn("could not parse url filter response", zap.String("response", truncateRunes(raw, 500)))
	}
	return cleanURLs(urls, "", 0), nil
}

// EventLinks returns the links of a listing page that point at single-event pages.
func (s *LinkSelector) EventLinks(ctx context.Context, links []string, pageURL string) ([]string, error) {
	if len(links) == 0 {
		return nil, nil
	}
	policy := observed(s.policy, "filter_event_links", s.metrics, s.logger, zap.String("url", pageURL))
	raw, err := backoff.Retry(ctx, policy, func(ctx context.Context) (string, error) {
		return s.llm.FilterEventLinks(ctx, links, pageURL)
	})
	s.metrics.IncLLMCall("filter_event_links", err == nil)
	if err != nil {
		return nil, fmt.Errorf("filter event links for %s: %w", pageURL, err)
	}

	urls := salvage.Records[string](raw, "event_detail_urls")
	if urls == nil {
		s.logger.Warn("could not parse link filter response",
			zap.String("url", pageURL), zap.String("response", truncateRunes(raw, 500)))
	}
	return cleanURLs(urls, utils.Hostname(pageURL), maxEventLinksPerPage), nil
}

// cleanURLs keeps absolute http(s) URLs, optionally on host only, deduplicated and capped at limit (0 = no cap).
func cleanURLs(urls []string, host string, limit int) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if !utils.IsHTTPURL(u) {
			continue
		}
		if host != "" {
			parsed, err := url.Parse(u)
			if err != nil || !strings.EqualFold(parsed.Hostname(), host) {
				continue
			}
		}
		out = append(out, u)
	}
	out = utils.Dedupe(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
