package brave

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/user/gig-sync-service/internal/entity"
	"github.com/user/gig-sync-service/internal/repository"
)

// maxCount is the largest page size the web search API accepts.
const maxCount = 20

// SearchRepoImpl queries the Brave web search API.
type SearchRepoImpl struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewSearchRepo creates a search client with the given per-request timeout.
func NewSearchRepo(endpoint, apiKey string, timeout time.Duration) *SearchRepoImpl {
	return &SearchRepoImpl{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type searchResponse struct {
	Web struct {
		Results []struct {
			URL         string `json:"url"`
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search returns up to limit web results for query.
func (r *SearchRepoImpl) Search(ctx context.Context, query string, limit int, opts entity.SearchOptions) ([]entity.SearchResult, error) {
	if limit <= 0 || limit > maxCount {
		limit = maxCount
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(limit))
	if opts.Country != "" {
		params.Set("country", opts.Country)
	}
	if opts.SearchLang != "" {
		params.Set("search_lang", opts.SearchLang)
	}
	if opts.ExtraSnippets {
		params.Set("extra_snippets", "true")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &repository.StatusError{Op: "brave search", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var data searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	results := make([]entity.SearchResult, 0, len(data.Web.Results))
	for _, res := range data.Web.Results {
		results = append(results, entity.SearchResult{URL: res.URL, Title: res.Title, Description: res.Description})
	}
	return results, nil
}
