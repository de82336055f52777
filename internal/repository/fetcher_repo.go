package repository

import (
	"context"

	"github.com/user/gig-sync-service/internal/entity"
)

// Fetcher loads the markup behind a URL. Implementations apply their own timeout.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*entity.FetchResult, error)
}
