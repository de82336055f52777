package gemini

import (
	"strings"
	"text/template"

	"github.com/user/gig-sync-service/internal/entity"
)

var urlFilterPrompt = template.Must(template.New("url_filter").Parse(`You are helping build a calendar of upcoming live music in Athens, Greece.
Below are web search results. Pick the URLs that most likely list several upcoming concerts or gigs
(venue calendars, ticketing listings, event guides). Skip news articles, past-event reports, and generic pages.

{{range .}}URL: {{.URL}}
Title: {{.Title}}
Description: {{if .Description}}{{.Description}}{{else}}N/A{{end}}

{{end}}Respond with JSON only: {"promising_urls": ["https://..."]}`))

var eventLinkPrompt = template.Must(template.New("event_links").Parse(`The page {{.PageURL}} lists events. From the links found on it, pick the ones that lead to a page
for a single upcoming concert or gig. Ignore navigation, category, account, social, and legal links.
Return at most 20 URLs, copied exactly.

Links:
{{range .Links}}- {{.}}
{{end}}
Respond with JSON only: {"event_detail_urls": ["https://..."]}`))

var extractionPrompt = template.Must(template.New("extraction").Parse(`Extract every upcoming live music event (concert, gig, DJ set) in Athens from the pages below.
For each event return:
- title: artist or event name
- date: ISO 8601 date and time (YYYY-MM-DDTHH:MM:SS), local Athens time; use 21:00 when no time is given
- venue: {"name", "address", "website", "neighborhood"} or just the venue name
- description: one or two sentences, or empty
- price: the ticket price as written, "Free", or "Sold Out"
- ticket_url: link to buy tickets, if any
- url: link to the event page
- image_url: poster or artist image, if any
Skip events whose date has passed or is unknown. Do not invent data.

{{range .}}=== PAGE {{.URL}} ===
{{.Content}}

{{end}}Respond with JSON only: {"gigs": [...]}`))

type eventLinkInput struct {
	PageURL string
	Links   []string
}

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func urlFilter(results []entity.SearchResult) (string, error) {
	return render(urlFilterPrompt, results)
}

func eventLinks(links []string, pageURL string) (string, error) {
	return render(eventLinkPrompt, eventLinkInput{PageURL: pageURL, Links: links})
}

func extraction(pages []entity.PageContent) (string, error) {
	return render(extractionPrompt, pages)
}
