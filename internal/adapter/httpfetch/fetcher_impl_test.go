package httpfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/user/gig-sync-service/pkg/useragent"
)

func TestFetchReturnsBodyAndStatus(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, nil)
	res, err := f.Fetch(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.StatusCode != http.StatusOK || res.HTML != "<html><body>hello</body></html>" {
		t.Errorf("got status %d body %q", res.StatusCode, res.HTML)
	}
	if gotUA != useragent.Crawler {
		t.Errorf("user agent = %q, want %q", gotUA, useragent.Crawler)
	}

	res, err = f.Fetch(context.Background(), srv.URL+"/missing")
	if err != nil {
		t.Fatalf("Fetch missing: %v", err)
	}
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", res.StatusCode)
	}
}

func TestFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	if _, err := NewFetcher(time.Second, nil).Fetch(context.Background(), url); err == nil {
		t.Fatal("expected an error from a closed server")
	}
}

func TestFetchRotatesBrowserAgents(t *testing.T) {
	var agents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents = append(agents, r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, useragent.NewRotator())
	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
			t.Fatalf("Fetch: %v", err)
		}
	}
	if len(agents) != 2 {
		t.Fatalf("server saw %d requests", len(agents))
	}
	if agents[0] == agents[1] {
		t.Errorf("user agent did not rotate: %q", agents[0])
	}
	for _, ua := range agents {
		if ua == "" || ua == useragent.Crawler {
			t.Errorf("user agent = %q, want a browser agent", ua)
		}
	}
}
