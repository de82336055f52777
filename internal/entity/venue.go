package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Venue is identified by its case-insensitive name.
type Venue struct {
	ID           int64  `json:"-"`
	Name         string `json:"name"`
	Address      string `json:"address,omitempty"`
	Website      string `json:"website,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
}

// VenueKey is the identity key of a venue name.
func VenueKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// VenueRef is a venue as the extraction step reports it: either a bare name
// or a structured object. Details is nil for the bare-name form.
type VenueRef struct {
	Name    string
	Details *Venue
}

// UnmarshalJSON accepts "Six Dogs" as well as {"name":"Six Dogs","address":"..."}.
// Any other JSON value decodes to an empty reference.
func (r *VenueRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*r = VenueRef{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	switch b[0] {
	case '"':
		return json.Unmarshal(b, &r.Name)
	case '{':
		var v Venue
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		r.Name = v.Name
		r.Details = &v
		return nil
	}
	if !json.Valid(b) {
		return fmt.Errorf("venue: invalid JSON %s", b)
	}
	return nil
}

// Resolve returns the venue this reference names, or fallback when it names none.
func (r VenueRef) Resolve(fallback string) Venue {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		name = strings.TrimSpace(fallback)
	}
	if name == "" {
		name = UnknownVenue
	}
	if r.Details == nil {
		return Venue{Name: name}
	}
	v := *r.Details
	v.Name = name
	return v
}
