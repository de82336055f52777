// Package useragent hands out browser user agent strings.
package useragent

import (
	"math/rand/v2"
	"sync"
)

// Crawler identifies the service honestly to sites that block disguised clients.
const Crawler = "Mozilla/5.0 (compatible; GigCrawler/2.0; +https://athensears.gr)"

var browsers = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
}

// Rotator cycles through a list of user agents.
type Rotator struct {
	mu     sync.Mutex
	agents []string
	next   int
}

// NewRotator returns a rotator over agents, or over a built-in set of desktop
// browsers when agents is empty. The starting position is random.
func NewRotator(agents ...string) *Rotator {
	if len(agents) == 0 {
		agents = browsers
	}
	return &Rotator{agents: agents, next: rand.IntN(len(agents))}
}

// Next returns the next user agent in turn.
func (r *Rotator) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ua := r.agents[r.next]
	r.next = (r.next + 1) % len(r.agents)
	return ua
}

// Default is the first built-in browser user agent.
func Default() string { return browsers[0] }
