package request

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/user/gig-sync-service/internal/entity"
)

// SyncRequest is the query string of POST /api/sync.
type SyncRequest struct {
	Clear bool // delete stored gigs before discovery
	Queue bool // defer behind an active run instead of refusing
	Wait  bool // block until the run finishes
}

// ParseSyncRequest reads clear, queue and wait. Absent flags are false.
func ParseSyncRequest(q url.Values) (SyncRequest, error) {
	var req SyncRequest
	for name, dst := range map[string]*bool{"clear": &req.Clear, "queue": &req.Queue, "wait": &req.Wait} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return SyncRequest{}, fmt.Errorf("query parameter %s must be a boolean, got %q", name, raw)
		}
		*dst = v
	}
	return req, nil
}

func (r SyncRequest) Options() entity.RunOptions {
	return entity.RunOptions{ClearExisting: r.Clear}
}
