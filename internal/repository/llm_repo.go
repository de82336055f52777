package repository

import (
	"context"

	"github.com/user/gig-sync-service/internal/entity"
)

// LLMRepository sends prompts to a language model and returns its raw, unparsed answer.
type LLMRepository interface {
	// FilterURLs asks which search results likely list upcoming gigs.
	FilterURLs(ctx context.Context, results []entity.SearchResult) (string, error)
	// FilterEventLinks asks which links on a listing page lead to single-event pages.
	FilterEventLinks(ctx context.Context, links []string, pageURL string) (string, error)
	// ExtractRecords asks for the gigs described by a batch of pages.
	ExtractRecords(ctx context.Context, pages []entity.PageContent) (string, error)
}
