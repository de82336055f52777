package brave

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/user/gig-sync-service/internal/entity"
	"github.com/user/gig-sync-service/internal/repository"
)

func TestSearchSendsParamsAndParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Subscription-Token"); got != "key" {
			t.Errorf("token = %q", got)
		}
		q := r.URL.Query()
		if q.Get("q") != "gigs athens" || q.Get("count") != "20" || q.Get("country") != "GR" ||
			q.Get("search_lang") != "el" || q.Get("extra_snippets") != "true" {
			t.Errorf("unexpected query %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"web":{"results":[
			{"url":"https://a.gr/events","title":"A","description":"listing"},
			{"url":"https://b.gr","title":"B"}]}}`))
	}))
	defer srv.Close()

	repo := NewSearchRepo(srv.URL, "key", 5*time.Second)
	got, err := repo.Search(context.Background(), "gigs athens", 50,
		entity.SearchOptions{Country: "GR", SearchLang: "el", ExtraSnippets: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 || got[0].URL != "https://a.gr/events" || got[0].Description != "listing" || got[1].Title != "B" {
		t.Errorf("got %+v", got)
	}
}

func TestSearchMissingWebSection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	got, err := NewSearchRepo(srv.URL, "key", time.Second).Search(context.Background(), "q", 5, entity.SearchOptions{})
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestSearchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewSearchRepo(srv.URL, "key", time.Second).Search(context.Background(), "q", 5, entity.SearchOptions{})
	var se *repository.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("err = %v, want StatusError 429", err)
	}
}
