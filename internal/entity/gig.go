package entity

import (
	"strings"
	"time"
)

// UnknownVenue is used when extraction could not name a venue.
const UnknownVenue = "Unknown Venue"

// Gig is a candidate event record that passed normalization.
type Gig struct {
	Title        string
	Date         time.Time
	VenueName    string
	VenueDetails *Venue // address and website, when extraction supplied them
	Description  string
	Price        string // "Free", "Sold Out", "€<n>", or empty when unknown
	SourceURL    string
	ImageURL     string
}

// Valid reports whether the gig may be stored: it needs a title and a date not before notBefore.
func (g Gig) Valid(notBefore time.Time) bool {
	return strings.TrimSpace(g.Title) != "" && !g.Date.IsZero() && !g.Date.Before(notBefore)
}

// GigRef identifies a stored gig for deletion.
type GigRef struct {
	ID int64
	// DocumentID is the CMS document key, when the backend has one.
	DocumentID string
}

// GigPage is one page of stored gig references.
type GigPage struct {
	Items []GigRef
	Total int
}
