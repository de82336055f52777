// Package normalize canonicalizes free-form fields pulled out of scraped pages.
// Every function returns the zero value when the input cannot be trusted, so
// callers can drop the field instead of storing a guess.
package normalize

import (
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	PriceFree    = "Free"
	PriceSoldOut = "Sold Out"
)

var (
	soldOutRe = regexp.MustCompile(`(?i)sold\s*out`)
	freeRe    = regexp.MustCompile(`(?i)free`)
	amountRe  = regexp.MustCompile(`(\d+)[.,](\d+)|\d+`)

	schemeRe      = regexp.MustCompile(`(?i)^https?://`)
	otherSchemeRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*:`)
	wwwRe         = regexp.MustCompile(`(?i)^www\.`)
	domainRe      = regexp.MustCompile(`^\S+\.\S+$`)
	// A host needs a label, a dot and a top-level label of two or more letters.
	hostRe = regexp.MustCompile(`(?i)^([a-z0-9-]+\.)+[a-z]{2,}$`)
)

// Price maps a free-text price to "Free", "Sold Out" or "€<n>" where n is the
// floored lowest amount mentioned. It returns "" for placeholders and zero prices.
func Price(raw string) string {
	s := strings.TrimSpace(raw)
	switch {
	case s == "", s == "N/A", s == "€", strings.EqualFold(s, "EUR"):
		return ""
	case soldOutRe.MatchString(s):
		return PriceSoldOut
	case freeRe.MatchString(s):
		return PriceFree
	}

	lowest := math.Inf(1)
	for _, m := range amountRe.FindAllStringSubmatch(s, -1) {
		var v float64
		var err error
		if m[1] != "" {
			v, err = strconv.ParseFloat(m[1]+"."+m[2], 64)
		} else {
			v, err = strconv.ParseFloat(m[0], 64)
		}
		if err != nil {
			continue
		}
		lowest = math.Min(lowest, v)
	}
	if math.IsInf(lowest, 1) {
		return ""
	}
	amount := int(math.Floor(lowest))
	if amount <= 0 {
		return ""
	}
	return "€" + strconv.Itoa(amount)
}

// URL turns a link-ish token into an absolute http(s) URL, or "" when it does not look like one.
func URL(raw string) string {
	s := strings.TrimSpace(raw)
	switch {
	case s == "":
		return ""
	case schemeRe.MatchString(s):
		return s
	case otherSchemeRe.MatchString(s):
		// mailto:, tel:, ftp:// and friends are not web pages.
		return ""
	case wwwRe.MatchString(s), domainRe.MatchString(s):
		return withHTTPS(s)
	}
	return ""
}

// withHTTPS prefixes s with https:// when the result has a plausible host.
func withHTTPS(s string) string {
	u, err := url.Parse("https://" + s)
	if err != nil || u.User != nil || u.Port() != "" {
		return ""
	}
	if !hostRe.MatchString(u.Hostname()) {
		return ""
	}
	return u.String()
}

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

var dayFirstLayouts = []string{
	"2/1/2006",
	"2-1-2006",
}

// Date parses ISO-8601 first, then DD/MM/YYYY and DD-MM-YYYY. Values without a
// zone are read in loc, or UTC when loc is nil.
func Date(raw string, loc *time.Location) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	for _, layout := range dayFirstLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
