package domain

import "time"

// TrackedStatus is the user-visible status of a tracking row. It is coarser
// than the queue envelope: "queued" covers both pending and retry-pending.
type TrackedStatus string

const (
	TrackedQueued     TrackedStatus = "queued"
	TrackedProcessing TrackedStatus = "processing"
	TrackedCompleted  TrackedStatus = "completed"
	TrackedFailed     TrackedStatus = "failed"
)

// TrackedJob is the relational tracking row inserted by the API layer when
// a request is accepted, and updated by the worker as the job progresses.
type TrackedJob struct {
	ID               string            `json:"id"`
	UserID           string            `json:"userId"`
	SiteID           string            `json:"siteId,omitempty"`
	Kind             JobKind           `json:"kind"`
	Status           TrackedStatus     `json:"status"`
	ProviderID       ProviderID        `json:"providerId"`
	Model            string            `json:"model"`
	Prompt           string            `json:"prompt,omitempty"`
	EstimatedCredits float64           `json:"estimatedCredits,omitempty"`
	CostCredits      float64           `json:"costCredits,omitempty"`
	Result           *JobResult        `json:"result,omitempty"`
	ErrorMessage     string            `json:"error,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// Site is the relational site row owned by the dashboard. The worker only
// flips its status from draft to ready.
type Site struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Title      string     `json:"title"`
	Status     string     `json:"status"` // draft, ready
	ProviderID ProviderID `json:"providerId"`
	Model      string     `json:"model"`
	Palette    string     `json:"palette,omitempty"`
	Sector     string     `json:"sector,omitempty"`
	LastPrompt string     `json:"lastPrompt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}
