package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/user/gig-sync-service/internal/entity"
	"github.com/user/gig-sync-service/pkg/useragent"
)

// maxBodyBytes caps how much of a page is read.
const maxBodyBytes = 5 << 20

// Fetcher loads pages with plain HTTP GET requests.
type Fetcher struct {
	client *http.Client
	agents *useragent.Rotator
}

// NewFetcher creates a fetcher with the given per-request timeout. A nil
// rotator identifies as the crawler.
func NewFetcher(timeout time.Duration, agents *useragent.Rotator) *Fetcher {
	if agents == nil {
		agents = useragent.NewRotator(useragent.Crawler)
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		agents: agents,
	}
}

// Fetch returns the body and status of url. Non-2xx statuses are not errors here.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*entity.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.agents.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "el-GR,el;q=0.9,en;q=0.8")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return &entity.FetchResult{
		URL:        url,
		HTML:       string(body),
		StatusCode: resp.StatusCode,
		Duration:   time.Since(start),
	}, nil
}
