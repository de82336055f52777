package normalize

import (
	"testing"
	"time"
)

func TestPrice(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"€20-€30":     "€20",
		"29,50":       "€29",
		"27.50 EUR":   "€27",
		"18€":         "€18",
		"Sold Out":    "Sold Out",
		"SOLD OUT!":   "Sold Out",
		"soldout":     "Sold Out",
		"Free entry":  "Free",
		"FREE":        "Free",
		"€":           "",
		"EUR":         "",
		"N/A":         "",
		"":            "",
		"   ":         "",
		"€0":          "",
		"0,50":        "",
		"tba":         "",
		"15 / 12 (r)": "€12",
	}
	for in, want := range cases {
		if got := Price(in); got != want {
			t.Errorf("Price(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestURL(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"example.gr/events":          "https://example.gr/events",
		"www.gagarin205.gr":          "https://www.gagarin205.gr",
		"https://more.com/event/1":   "https://more.com/event/1",
		"HTTP://old.example.com":     "HTTP://old.example.com",
		"  ticketservices.gr/x  ":    "https://ticketservices.gr/x",
		"not a url":                  "",
		"":                           "",
		"tickets at the door":        "",
		"see website. call us today": "",
		"mailto:info@gagarin.gr":     "",
		"ftp://files.venue.gr/x":     "",
		"tel:+30.210.123":            "",
		"e.g.":                       "",
		"info@gagarin.gr":            "",
		"venue.gr:8080/x":            "",
		"3.50":                       "",
		"gagarin205.gr?lang=el":      "https://gagarin205.gr?lang=el",
	}
	for in, want := range cases {
		if got := URL(in); got != want {
			t.Errorf("URL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDate(t *testing.T) {
	t.Parallel()
	athens, err := time.LoadLocation("Europe/Athens")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	cases := []struct {
		in   string
		loc  *time.Location
		want time.Time
	}{
		{"2026-11-05T21:00:00Z", nil, time.Date(2026, 11, 5, 21, 0, 0, 0, time.UTC)},
		{"2026-11-05T21:00:00+02:00", nil, time.Date(2026, 11, 5, 19, 0, 0, 0, time.UTC)},
		{"2026-11-05", nil, time.Date(2026, 11, 5, 0, 0, 0, 0, time.UTC)},
		{"2026-11-05T21:30", nil, time.Date(2026, 11, 5, 21, 30, 0, 0, time.UTC)},
		{"05/11/2026", nil, time.Date(2026, 11, 5, 0, 0, 0, 0, time.UTC)},
		{"5/11/2026", nil, time.Date(2026, 11, 5, 0, 0, 0, 0, time.UTC)},
		{"05-11-2026", nil, time.Date(2026, 11, 5, 0, 0, 0, 0, time.UTC)},
		{"05-11-2026", athens, time.Date(2026, 11, 5, 0, 0, 0, 0, athens)},
	}
	for _, tc := range cases {
		got, ok := Date(tc.in, tc.loc)
		if !ok {
			t.Errorf("Date(%q) failed", tc.in)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("Date(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "next friday", "31/02/2026", "2026/13/01", "TBA"} {
		if _, ok := Date(bad, nil); ok {
			t.Errorf("Date(%q) should fail", bad)
		}
	}
}
