package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/user/gig-sync-service/internal/entity"
	"github.com/user/gig-sync-service/internal/repository"
	"github.com/user/gig-sync-service/pkg/backoff"
	"github.com/user/gig-sync-service/pkg/logger"
	"github.com/user/gig-sync-service/pkg/metrics"
	"github.com/user/gig-sync-service/pkg/normalize"
	"github.com/user/gig-sync-service/pkg/salvage"
	"go.uber.org/zap"
)

// ExtractorConfig tunes the batch extraction scheduler.
type ExtractorConfig struct {
	// ChunkSize is how many pages go into one extraction call.
	ChunkSize int
	// ChunkDelay is the pause between two chunks.
	ChunkDelay time.Duration
	// MinTextLength below which the page's stripped raw markup is used instead of its text.
	MinTextLength int
	// MaxPageChars caps the content sent per page.
	MaxPageChars int
	// Location is used for dates without a zone and for "today".
	Location *time.Location
}

// DefaultExtractorConfig matches the limits the extraction prompt was tuned for.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		ChunkSize:     2,
		ChunkDelay:    3 * time.Second,
		MinTextLength: 1000,
		MaxPageChars:  5000,
		Location:      time.UTC,
	}
}

// ExtractionReport is the outcome of ExtractAll.
type ExtractionReport struct {
	Gigs         []entity.Gig
	Pages        int
	Chunks       int
	FailedChunks int
	// Dropped counts candidates that failed to decode or validate.
	Dropped int
}

// BatchExtractor feeds scraped pages to the language model in small chunks.
type BatchExtractor struct {
	llm     repository.LLMRepository
	policy  backoff.Policy
	cfg     ExtractorConfig
	metrics *metrics.Metrics
	logger  *zap.Logger

	now   func() time.Time
	pause func(ctx context.Context, d time.Duration) error
}

func NewBatchExtractor(llm repository.LLMRepository, policy backoff.Policy, cfg ExtractorConfig, m *metrics.Metrics, l *zap.Logger) *BatchExtractor {
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &BatchExtractor{
		llm:     llm,
		policy:  policy,
		cfg:     cfg,
		metrics: m,
		logger:  logger.OrNop(l).With(zap.String("component", "extractor")),
		now:     time.Now,
		pause:   sleepContext,
	}
}

// ExtractAll extracts gigs from every page with text. A failed chunk is logged
// and skipped; the report always carries whatever was extracted.
func (e *BatchExtractor) ExtractAll(ctx context.Context, pages []entity.ScrapedPage) ExtractionReport {
	var usable []entity.ScrapedPage
	for _, p := range pages {
		if p.Success && strings.TrimSpace(p.Text) != "" {
			usable = append(usable, p)
		}
	}
	report := ExtractionReport{Pages: len(usable)}
	if len(usable) == 0 {
		e.logger.Warn("no pages with text to extract from")
		return report
	}

	chunks := chunkPages(usable, e.cfg.ChunkSize)
	report.Chunks = len(chunks)
	e.logger.Info("starting batch extraction",
		zap.Int("pages", len(usable)), zap.Int("chunks", len(chunks)), zap.Int("chunk_size", e.cfg.ChunkSize))

	notBefore := startOfDay(e.now(), e.cfg.Location)
	for i, chunk := range chunks {
		gigs, dropped, err := e.extractChunk(ctx, chunk, notBefore)
		if err != nil {
			report.FailedChunks++
			e.logger.Error("chunk failed, continuing with next chunk",
				zap.Int("chunk", i+1), zap.Int("total_chunks", len(chunks)), zap.Error(err))
		} else {
			report.Gigs = append(report.Gigs, gigs...)
			report.Dropped += dropped
			e.logger.Info("chunk processed",
				zap.Int("chunk", i+1), zap.Int("gigs", len(gigs)), zap.Int("dropped", dropped),
				zap.Int("total_so_far", len(report.Gigs)))
		}

		if i < len(chunks)-1 {
			if err := e.pause(ctx, e.cfg.ChunkDelay); err != nil {
				e.logger.Warn("extraction interrupted", zap.Int("remaining_chunks", len(chunks)-i-1), zap.Error(err))
				report.FailedChunks += len(chunks) - i - 1
				break
			}
		}
	}

	if report.FailedChunks > 0 {
		e.logger.Warn("some chunks failed",
			zap.Int("failed_chunks", report.FailedChunks), zap.Int("total_chunks", report.Chunks))
	}
	e.logger.Info("batch extraction finished", zap.Int("gigs", len(report.Gigs)), zap.Int("dropped", report.Dropped))
	return report
}

func (e *BatchExtractor) extractChunk(ctx context.Context, chunk []entity.ScrapedPage, notBefore time.Time) ([]entity.Gig, int, error) {
	contents := make([]entity.PageContent, 0, len(chunk))
	for _, p := range chunk {
		contents = append(contents, e.pageContent(p))
	}

	policy := observed(e.policy, "extract", e.metrics, e.logger, zap.Int("pages", len(chunk)))
	raw, err := backoff.Retry(ctx, policy, func(ctx context.Context) (string, error) {
		return e.llm.ExtractRecords(ctx, contents)
	})
	e.metrics.IncLLMCall("extract", err == nil)
	if err != nil {
		return nil, 0, err
	}

	items, undecodable := salvage.Decode[gigItem](raw, "gigs")
	if items == nil {
		e.logger.Warn("could not parse extraction response", zap.String("response", truncateRunes(raw, 500)))
	}
	if undecodable > 0 {
		e.logger.Warn("skipping malformed candidates", zap.Int("count", undecodable))
	}

	fallbackURL := ""
	if len(chunk) == 1 {
		fallbackURL = chunk[0].URL
	}
	var gigs []entity.Gig
	dropped := undecodable
	for _, item := range items {
		gig, ok := item.toGig(fallbackURL, e.cfg.Location)
		if !ok || !gig.Valid(notBefore) {
			dropped++
			e.logger.Debug("dropping candidate", zap.String("title", string(item.Title)), zap.String("date", string(item.Date)))
			continue
		}
		gigs = append(gigs, gig)
	}
	return gigs, dropped, nil
}

// pageContent picks the text to send for one page, falling back to the
// stripped markup when the extracted text is implausibly short.
func (e *BatchExtractor) pageContent(p entity.ScrapedPage) entity.PageContent {
	content := p.Text
	if len([]rune(content)) < e.cfg.MinTextLength && p.RawHTML != "" {
		if stripped := StripMarkup(p.RawHTML); len(stripped) > len(content) {
			e.logger.Info("text too short, using stripped markup",
				zap.String("url", p.URL), zap.Int("text_length", len(content)))
			content = stripped
		}
	}
	return entity.PageContent{URL: p.URL, Content: truncateRunes(content, e.cfg.MaxPageChars)}
}

func chunkPages(pages []entity.ScrapedPage, size int) [][]entity.ScrapedPage {
	var chunks [][]entity.ScrapedPage
	for i := 0; i < len(pages); i += size {
		end := min(i+size, len(pages))
		chunks = append(chunks, pages[i:end:end])
	}
	return chunks
}

// gigItem is one gig as the language model reports it.
type gigItem struct {
	Title       looseString     `json:"title"`
	Date        looseString     `json:"date"`
	Venue       entity.VenueRef `json:"venue"`
	VenueName   looseString     `json:"venue_name"`
	Description looseString     `json:"description"`
	Price       looseString     `json:"price"`
	TicketURL   looseString     `json:"ticket_url"`
	URL         looseString     `json:"url"`
	ImageURL    looseString     `json:"image_url"`
}

func (it gigItem) toGig(fallbackURL string, loc *time.Location) (entity.Gig, bool) {
	title := strings.TrimSpace(string(it.Title))
	if title == "" {
		return entity.Gig{}, false
	}
	date, ok := normalize.Date(string(it.Date), loc)
	if !ok {
		return entity.Gig{}, false
	}

	venue := it.Venue.Resolve(string(it.VenueName))
	gig := entity.Gig{
		Title:       title,
		Date:        date,
		VenueName:   venue.Name,
		Description: strings.TrimSpace(string(it.Description)),
		Price:       normalize.Price(string(it.Price)),
		SourceURL:   firstNonEmpty(normalize.URL(string(it.TicketURL)), normalize.URL(string(it.URL)), fallbackURL),
		ImageURL:    normalize.URL(string(it.ImageURL)),
	}
	if it.Venue.Details != nil {
		gig.VenueDetails = &venue
	}
	return gig, true
}

// looseString decodes JSON strings, numbers and booleans as text, and null as "".
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*s = looseString(n.String())
		return nil
	}
	var flag bool
	if err := json.Unmarshal(b, &flag); err == nil {
		*s = looseString(strconv.FormatBool(flag))
		return nil
	}
	// Objects and arrays carry nothing usable for a scalar field.
	*s = ""
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
