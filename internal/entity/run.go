package entity

import "time"

// RunStage is a state of the sync pipeline.
type RunStage string

const (
	StageIdle           RunStage = "idle"
	StageClearing       RunStage = "clearing"
	StageDiscovering    RunStage = "discovering"
	StageFiltering      RunStage = "filtering"
	StageLinkExtracting RunStage = "link_extracting"
	StageDetailScraping RunStage = "detail_scraping"
	StageExtracting     RunStage = "extracting"
	StageStoring        RunStage = "storing"
	StageDone           RunStage = "done"
)

// RunOptions tune a single sync run.
type RunOptions struct {
	// ClearExisting deletes every stored gig before discovery.
	ClearExisting bool `json:"clear_existing"`
}

// RunStats are the counters of one run. They are reported, never persisted by the pipeline.
type RunStats struct {
	SearchResults int `json:"searchResults"`
	FilteredURLs  int `json:"filteredUrls"`
	ScrapedURLs   int `json:"scrapedUrls"`
	GigsExtracted int `json:"gigsExtracted"`
	GigsDropped   int `json:"gigsDropped"`
	GigsCreated   int `json:"gigsCreated"`
	GigsSkipped   int `json:"gigsSkipped"`
	Errors        int `json:"errors"`
}

// RunRecord describes a finished run.
type RunRecord struct {
	RunID      string        `json:"run_id"`
	Options    RunOptions    `json:"options"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Stats      RunStats      `json:"stats"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// SyncStatus is the externally visible state of the sync service.
type SyncStatus struct {
	Running   bool       `json:"running"`
	Stage     RunStage   `json:"stage"`
	RunID     string     `json:"run_id,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	Queued    int64      `json:"queued"`
	LastRun   *RunRecord `json:"last_run,omitempty"`
}
