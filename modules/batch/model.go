package batch

import (
	"time"

	"manga-promo-server/modules/common/model"
)

// ImageResult - final output unit, one expected per submitted (pattern,
// layout) pair. A shortfall against the submitted count means partial failure
// and is surfaced alongside the results, never silently dropped.
type ImageResult struct {
	PatternID    string            `json:"patternId"`
	PatternType  model.PatternType `json:"patternType"`
	PatternTitle string            `json:"patternTitle"`
	Layout       model.Layout      `json:"layout"`
	Prompt       string            `json:"prompt,omitempty"`
	ImageDataURL string            `json:"imageDataUrl"`
	StoragePath  string            `json:"storagePath,omitempty"`
}

// Snapshot - one poll observation of a batch job. Refetched on every poll,
// never persisted. The caller owns the poll loop, overall timeout and
// cancellation; PollAfter is only a scheduling suggestion.
type Snapshot struct {
	Done         bool          `json:"done"`
	State        string        `json:"state"`
	JobName      string        `json:"jobName"`
	Results      []ImageResult `json:"results,omitempty"`
	ErrorMessage string        `json:"error,omitempty"`
	PollAfter    time.Duration `json:"-"`
}

// RunRequest - everything needed to run all patterns through the batch API
type RunRequest struct {
	Summary               model.Summary   `json:"summary"`
	Patterns              []model.Pattern `json:"patterns"`
	OwnerReferenceDataURL string          `json:"ownerReferenceDataUrl,omitempty"`
	WifeReferenceDataURL  string          `json:"wifeReferenceDataUrl,omitempty"`
}

// RunJob - one batch job of a run, one per pattern
type RunJob struct {
	PatternID string `json:"patternId"`
	JobName   string `json:"jobName"`
	State     string `json:"state,omitempty"`
}

// Run - run state persisted in Redis for the duration of a run
type Run struct {
	RunID      string        `json:"runId"`
	Status     string        `json:"status"`
	Request    RunRequest    `json:"request"`
	Jobs       []RunJob      `json:"jobs,omitempty"`
	Results    []ImageResult `json:"results,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt *time.Time    `json:"finishedAt,omitempty"`
}
