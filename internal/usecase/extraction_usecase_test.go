package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/user/gig-sync-service/internal/entity"
	"github.com/user/gig-sync-service/internal/repository"
)

var testNow = time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)

func newTestExtractor(llm repository.LLMRepository, cfg ExtractorConfig) *BatchExtractor {
	e := NewBatchExtractor(llm, noRetry, cfg, nil, nil)
	e.now = func() time.Time { return testNow }
	e.pause = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return e
}

func scraped(n int) []entity.ScrapedPage {
	pages := make([]entity.ScrapedPage, n)
	for i := range pages {
		pages[i] = entity.ScrapedPage{
			URL:     fmt.Sprintf("https://venue.gr/e/%d", i),
			Text:    strings.Repeat("text ", 300),
			Success: true,
		}
	}
	return pages
}

func TestExtractAllChunks(t *testing.T) {
	t.Parallel()
	llm := &fakeLLM{extract: func(pages []entity.PageContent) (string, error) {
		return fmt.Sprintf(`{"gigs":[{"title":"Show at %s","date":"2026-11-0%d","venue":"Six Dogs"}]}`, pages[0].URL, len(pages)), nil
	}}
	cfg := DefaultExtractorConfig()
	report := newTestExtractor(llm, cfg).ExtractAll(context.Background(), scraped(5))

	if report.Chunks != 3 || report.Pages != 5 {
		t.Fatalf("chunks = %d pages = %d, want 3 and 5", report.Chunks, report.Pages)
	}
	if got := llm.extractCalls(); got != 3 {
		t.Fatalf("extract calls = %d, want 3", got)
	}
	sizes := []int{len(llm.extractions[0]), len(llm.extractions[1]), len(llm.extractions[2])}
	if sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("chunk sizes = %v, want [2 2 1]", sizes)
	}
	if len(report.Gigs) != 3 {
		t.Fatalf("gigs = %d, want 3", len(report.Gigs))
	}
	// Only the single-page chunk may inherit its page URL.
	if report.Gigs[0].SourceURL != "" || report.Gigs[2].SourceURL != "https://venue.gr/e/4" {
		t.Errorf("source urls = %q, %q", report.Gigs[0].SourceURL, report.Gigs[2].SourceURL)
	}
}

func TestExtractAllSkipsFailedChunk(t *testing.T) {
	t.Parallel()
	calls := 0
	llm := &fakeLLM{extract: func([]entity.PageContent) (string, error) {
		calls++
		if calls == 1 {
			return "", &repository.StatusError{Op: "generate", StatusCode: 400}
		}
		return `[{"title":"Rotting Christ","date":"2026-12-12T21:00:00","venue":{"name":"Fuzz Club","address":"Pireos 209"}}]`, nil
	}}
	report := newTestExtractor(llm, DefaultExtractorConfig()).ExtractAll(context.Background(), scraped(4))

	if report.FailedChunks != 1 {
		t.Errorf("failed chunks = %d, want 1", report.FailedChunks)
	}
	if len(report.Gigs) != 1 {
		t.Fatalf("gigs = %d, want 1", len(report.Gigs))
	}
	g := report.Gigs[0]
	if g.VenueName != "Fuzz Club" || g.VenueDetails == nil || g.VenueDetails.Address != "Pireos 209" {
		t.Errorf("venue = %q %+v", g.VenueName, g.VenueDetails)
	}
}

func TestExtractAllValidation(t *testing.T) {
	t.Parallel()
	llm := &fakeLLM{extract: func([]entity.PageContent) (string, error) {
		return "```json\n" + `{"gigs":[
			{"title":"Yesterday","date":"2026-10-18"},
			{"title":"Earlier Today","date":"2026-10-19T10:00:00Z"},
			{"title":"","date":"2026-11-01"},
			{"title":"No Date"},
			{"title":"Bad Date","date":"soon"},
			{"title":"Day First","date":"25/12/2026","price":"15","ticket_url":"tickets.gr/xmas"},
			{"title":42,"date":"2026-11-02","venue":null,"venue_name":"Gazarte"}
		]}` + "\n```", nil
	}}
	cfg := DefaultExtractorConfig()
	cfg.ChunkSize = 1
	report := newTestExtractor(llm, cfg).ExtractAll(context.Background(), scraped(1))

	if report.Dropped != 4 {
		t.Errorf("dropped = %d, want 4", report.Dropped)
	}
	titles := make([]string, 0, len(report.Gigs))
	for _, g := range report.Gigs {
		titles = append(titles, g.Title)
	}
	if strings.Join(titles, ",") != "Earlier Today,Day First,42" {
		t.Fatalf("titles = %v", titles)
	}

	xmas := report.Gigs[1]
	if !xmas.Date.Equal(time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v", xmas.Date)
	}
	if xmas.VenueName != entity.UnknownVenue {
		t.Errorf("venue = %q, want %q", xmas.VenueName, entity.UnknownVenue)
	}
	if xmas.Price != "€15" {
		t.Errorf("price = %q", xmas.Price)
	}
	if xmas.SourceURL != "https://tickets.gr/xmas" {
		t.Errorf("source url = %q", xmas.SourceURL)
	}
	if report.Gigs[2].VenueName != "Gazarte" {
		t.Errorf("venue_name fallback = %q", report.Gigs[2].VenueName)
	}
}

func TestExtractAllOddVenueShapes(t *testing.T) {
	t.Parallel()
	llm := &fakeLLM{extract: func([]entity.PageContent) (string, error) {
		return `{"gigs":[
			{"title":"A","date":"2026-11-01","venue":123},
			{"title":"B","date":"2026-11-02","venue":["X"],"venue_name":"Fuzz Club"},
			{"title":"C","date":"2026-11-03","venue":"Y"},
			"a stray string"
		]}`, nil
	}}
	cfg := DefaultExtractorConfig()
	cfg.ChunkSize = 1
	report := newTestExtractor(llm, cfg).ExtractAll(context.Background(), scraped(1))

	venues := make([]string, 0, len(report.Gigs))
	for _, g := range report.Gigs {
		venues = append(venues, g.Title+"@"+g.VenueName)
	}
	if got, want := strings.Join(venues, ","), "A@"+entity.UnknownVenue+",B@Fuzz Club,C@Y"; got != want {
		t.Fatalf("gigs = %s, want %s", got, want)
	}
	if report.Dropped != 1 {
		t.Errorf("dropped = %d, want 1", report.Dropped)
	}
}

func TestExtractAllIgnoresUnusablePages(t *testing.T) {
	t.Parallel()
	llm := &fakeLLM{}
	pages := []entity.ScrapedPage{
		{URL: "https://a.gr/1", Success: false, Error: "404"},
		{URL: "https://a.gr/2", Success: true, Text: "   "},
	}
	report := newTestExtractor(llm, DefaultExtractorConfig()).ExtractAll(context.Background(), pages)
	if report.Pages != 0 || llm.extractCalls() != 0 {
		t.Fatalf("report = %+v, calls = %d", report, llm.extractCalls())
	}
}

func TestExtractAllUnparseableResponse(t *testing.T) {
	t.Parallel()
	llm := &fakeLLM{extract: func([]entity.PageContent) (string, error) {
		return "I could not find any gigs, sorry.", nil
	}}
	report := newTestExtractor(llm, DefaultExtractorConfig()).ExtractAll(context.Background(), scraped(2))
	if len(report.Gigs) != 0 || report.FailedChunks != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestExtractAllInterruptedPause(t *testing.T) {
	t.Parallel()
	llm := &fakeLLM{}
	e := newTestExtractor(llm, DefaultExtractorConfig())
	e.pause = func(context.Context, time.Duration) error { return context.Canceled }

	report := e.ExtractAll(context.Background(), scraped(6))
	if llm.extractCalls() != 1 {
		t.Errorf("extract calls = %d, want 1", llm.extractCalls())
	}
	if report.FailedChunks != 2 {
		t.Errorf("failed chunks = %d, want 2", report.FailedChunks)
	}
}

func TestPageContentFallsBackToMarkup(t *testing.T) {
	t.Parallel()
	cfg := DefaultExtractorConfig()
	cfg.MaxPageChars = 60
	e := newTestExtractor(&fakeLLM{}, cfg)

	short := entity.ScrapedPage{
		URL:     "https://a.gr/spa",
		Text:    "Loading",
		RawHTML: `<html><head><title>Monsters of Rock Athens</title><meta name="description" content="Saturday at Technopolis"></head><body><div id="app"></div></body></html>`,
	}
	got := e.pageContent(short)
	if !strings.HasPrefix(got.Content, "Monsters of Rock Athens Saturday at Technopolis") {
		t.Errorf("content = %q", got.Content)
	}

	long := entity.ScrapedPage{URL: "https://a.gr/long", Text: strings.Repeat("α", 2000), RawHTML: "<p>x</p>"}
	got = e.pageContent(long)
	if n := len([]rune(got.Content)); n != 60 {
		t.Errorf("truncated length = %d, want 60", n)
	}
}

func TestLooseString(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		`"Six Dogs"`: "Six Dogs",
		`15`:         "15",
		`12.5`:       "12.5",
		`true`:       "true",
		`null`:       "",
		`{"a":1}`:    "",
		`["x"]`:      "",
	}
	for in, want := range tests {
		var s looseString
		if err := json.Unmarshal([]byte(in), &s); err != nil {
			t.Errorf("%s: %v", in, err)
			continue
		}
		if string(s) != want {
			t.Errorf("%s = %q, want %q", in, s, want)
		}
	}
}

func TestStartOfDayUsesLocation(t *testing.T) {
	t.Parallel()
	athens := time.FixedZone("EEST", 3*60*60)
	// 22:30 UTC on the 19th is already the 20th in Athens.
	got := startOfDay(time.Date(2026, 10, 19, 22, 30, 0, 0, time.UTC), athens)
	want := time.Date(2026, 10, 20, 0, 0, 0, 0, athens)
	if !got.Equal(want) {
		t.Errorf("startOfDay = %v, want %v", got, want)
	}
}

func TestSleepContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("err = %v", err)
	}
}
