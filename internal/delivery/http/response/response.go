package response

import "github.com/user/gig-sync-service/internal/entity"

type SyncStartedResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	RunID   string `json:"run_id,omitempty"`
}

// SyncFinishedResponse is returned when the caller waited for the run.
type SyncFinishedResponse struct {
	Status string            `json:"status"`
	Run    *entity.RunRecord `json:"run"`
}

type HealthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
