package repository

import (
	"context"
	"time"

	"github.com/user/gig-sync-service/internal/entity"
)

// GigRepository is the backing store for venues and gigs.
type GigRepository interface {
	// FindVenueByName matches case-insensitively. It returns ErrNotFound when there is no match.
	FindVenueByName(ctx context.Context, name string) (*entity.Venue, error)
	CreateVenue(ctx context.Context, venue entity.Venue) (int64, error)

	// FindGig returns the id of a gig whose title matches case-insensitively and
	// whose date lies in [from, to). It returns ErrNotFound when there is none.
	FindGig(ctx context.Context, title string, from, to time.Time) (int64, error)
	CreateGig(ctx context.Context, gig entity.Gig, venueID int64) (int64, error)

	// DeleteAllGigs removes every gig in one operation, returning ErrBulkDeleteUnavailable
	// when the backend does not allow it.
	DeleteAllGigs(ctx context.Context) (int, error)
	// ListGigs returns the first page of remaining gigs.
	ListGigs(ctx context.Context, pageSize int) (*entity.GigPage, error)
	DeleteGig(ctx context.Context, ref entity.GigRef) error
}
