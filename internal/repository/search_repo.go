package repository

import (
	"context"

	"github.com/user/gig-sync-service/internal/entity"
)

// SearchRepository queries a web search engine.
type SearchRepository interface {
	Search(ctx context.Context, query string, limit int, opts entity.SearchOptions) ([]entity.SearchResult, error)
}
