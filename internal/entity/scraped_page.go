package entity

import "time"

// FetchResult is the raw outcome of loading a URL.
type FetchResult struct {
	URL        string
	HTML       string
	StatusCode int
	Duration   time.Duration
}

// ScrapedPage is the content extracted from one URL.
// Success=false means Text and RawHTML are empty and Error is set.
type ScrapedPage struct {
	URL     string
	Text    string
	RawHTML string
	Success bool
	Error   string
	// Links holds deduplicated same-host absolute URLs in document order.
	Links []string
}

// HasContent reports whether the page carries any text or markup.
func (p ScrapedPage) HasContent() bool {
	return p.Text != "" || p.RawHTML != ""
}

// FailedPage builds the result for a URL that could not be scraped.
func FailedPage(url string, err error) ScrapedPage {
	return ScrapedPage{URL: url, Success: false, Error: err.Error()}
}

// PageContent is what the extraction step sees for one page.
type PageContent struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}
