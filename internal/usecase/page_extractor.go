package usecase

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/user/gig-sync-service/pkg/utils"
)

const (
	noiseSelector = "script, style, noscript, template, svg, iframe"
	blockSelector = "p, div, li, tr, td, th, br, h1, h2, h3, h4, h5, h6, section, article, header, footer, dt, dd, time"
	// minMainText is how much text a <main> or <article> needs to be preferred over <body>.
	minMainText = 200
)

// ExtractPage returns the readable text of a document and its same-host links.
// Anchors are rendered as "text (url)" so link targets survive in the text.
func ExtractPage(pageURL, html string) (text string, links []string, err error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", nil, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", nil, fmt.Errorf("parse html: %w", err)
	}

	links = sameHostLinks(doc, base)

	doc.Find(noiseSelector).Remove()
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		label := collapseSpace(s.Text())
		href, _ := s.Attr("href")
		abs, ok := resolveLink(base, href)
		if label == "" || !ok {
			return
		}
		s.SetText(label + " (" + abs + ")")
	})
	doc.Find(blockSelector).AfterHtml(" ")

	root := doc.Find("body")
	for _, sel := range []string{"main", "article"} {
		if candidate := doc.Find(sel).First(); candidate.Length() > 0 {
			if len(collapseSpace(candidate.Text())) >= minMainText {
				root = candidate
				break
			}
		}
	}
	return collapseSpace(root.Text()), links, nil
}

// StripMarkup returns all text in a document including its title, meta
// descriptions and noscript fallbacks. It is the fallback when ExtractPage
// yields too little.
func StripMarkup(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	var parts []string
	if title := collapseSpace(doc.Find("title").First().Text()); title != "" {
		parts = append(parts, title)
	}
	doc.Find(`meta[name="description"], meta[property="og:title"], meta[property="og:description"]`).Each(func(_ int, s *goquery.Selection) {
		if content, ok := s.Attr("content"); ok && strings.TrimSpace(content) != "" {
			parts = append(parts, collapseSpace(content))
		}
	})

	doc.Find("script, style, template, svg").Remove()
	// noscript bodies are parsed as raw text; re-read them as markup.
	doc.Find("noscript").Each(func(_ int, s *goquery.Selection) {
		inner, err := goquery.NewDocumentFromReader(strings.NewReader(s.Text()))
		if err != nil {
			return
		}
		s.ReplaceWithHtml(" " + collapseSpace(inner.Text()) + " ")
	})
	doc.Find(blockSelector).AfterHtml(" ")
	parts = append(parts, collapseSpace(doc.Find("body").Text()))
	return strings.TrimSpace(strings.Join(parts, " "))
}

func sameHostLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs, ok := resolveLink(base, href)
		if !ok {
			return
		}
		if u, err := url.Parse(abs); err == nil && strings.EqualFold(u.Hostname(), base.Hostname()) {
			links = append(links, abs)
		}
	})
	return utils.Dedupe(links)
}

func resolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}
	abs, err := utils.ToAbsoluteURL(base, href)
	if err != nil || !utils.IsHTTPURL(abs) {
		return "", false
	}
	return abs, true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes cuts s to at most n characters without splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
