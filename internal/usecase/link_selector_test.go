package usecase

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/user/gig-sync-service/internal/entity"
	"github.com/user/gig-sync-service/internal/repository"
)

func TestPromisingURLs(t *testing.T) {
	t.Parallel()
	llm := &fakeLLM{filterURLs: func(results []entity.SearchResult) (string, error) {
		if len(results) != 2 {
			return "", fmt.Errorf("got %d results", len(results))
		}
		return `Here you go: {"promising_urls": ["https://www.gagarin205.gr/concerts", "/relative", "ftp://old.gr", "https://www.gagarin205.gr/concerts"]}`, nil
	}}
	s := NewLinkSelector(llm, noRetry, nil, nil)
	got, err := s.PromisingURLs(context.Background(), []entity.SearchResult{
		{URL: "https://www.gagarin205.gr/concerts", Title: "Gagarin"},
		{URL: "https://en.wikipedia.org/wiki/Athens", Title: "Athens"},
	})
	if err != nil {
		t.Fatalf("PromisingURLs: %v", err)
	}
	if !slices.Equal(got, []string{"https://www.gagarin205.gr/concerts"}) {
		t.Errorf("got %v", got)
	}
}

func TestPromisingURLsEmptyAndUnparseable(t *testing.T) {
	t.Parallel()
	calls := 0
	llm := &fakeLLM{filterURLs: func([]entity.SearchResult) (string, error) {
		calls++
		return "no idea", nil
	}}
	s := NewLinkSelector(llm, noRetry, nil, nil)

	got, err := s.PromisingURLs(context.Background(), nil)
	if err != nil || len(got) != 0 || calls != 0 {
		t.Fatalf("empty input: got %v, err %v, calls %d", got, err, calls)
	}
	got, err = s.PromisingURLs(context.Background(), []entity.SearchResult{{URL: "https://a.gr"}})
	if err != nil || len(got) != 0 {
		t.Fatalf("unparseable: got %v, err %v", got, err)
	}
}

func TestPromisingURLsPropagatesFailure(t *testing.T) {
	t.Parallel()
	llm := &fakeLLM{filterURLs: func([]entity.SearchResult) (string, error) {
		return "", &repository.StatusError{Op: "generate", StatusCode: 401}
	}}
	_, err := NewLinkSelector(llm, quickRetry, nil, nil).PromisingURLs(context.Background(), []entity.SearchResult{{URL: "https://a.gr"}})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestEventLinksKeepsSameHostAndCaps(t *testing.T) {
	t.Parallel()
	var returned []string
	for i := 0; i < 30; i++ {
		returned = append(returned, fmt.Sprintf(`"https://www.more.com/music/event-%d"`, i))
	}
	returned = append([]string{`"https://facebook.com/share"`}, returned...)
	llm := &fakeLLM{eventLinks: func(links []string, pageURL string) (string, error) {
		return `[` + strings.Join(returned, ",") + `]`, nil
	}}

	got, err := NewLinkSelector(llm, noRetry, nil, nil).EventLinks(context.Background(),
		[]string{"https://www.more.com/music/event-0"}, "https://www.more.com/music/concerts/")
	if err != nil {
		t.Fatalf("EventLinks: %v", err)
	}
	if len(got) != maxEventLinksPerPage {
		t.Fatalf("got %d links, want %d", len(got), maxEventLinksPerPage)
	}
	if got[0] != "https://www.more.com/music/event-0" {
		t.Errorf("first link = %s", got[0])
	}
}

func TestEventLinksNoLinks(t *testing.T) {
	t.Parallel()
	llm := &fakeLLM{eventLinks: func([]string, string) (string, error) {
		t.Error("language model called without links")
		return "", nil
	}}
	got, err := NewLinkSelector(llm, noRetry, nil, nil).EventLinks(context.Background(), nil, "https://a.gr")
	if err != nil || got != nil {
		t.Fatalf("got %v, %v", got, err)
	}
}
