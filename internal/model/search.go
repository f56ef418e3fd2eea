package model

import "time"

// Filters are the user-selected constraints that scoped the original
// collection. They are rendered into the synthesis prompt so the narrative
// references them explicitly.
type Filters struct {
	TimeRange string   `json:"time_range,omitempty"` // e.g. "7d", "30d"
	Language  string   `json:"language,omitempty"`   // BCP 47 tag, e.g. "en"
	Sources   []string `json:"sources,omitempty"`
}

// Search is the stored query plus the posts previously collected for it.
// It is read-only from the pipeline's perspective except for the single
// Search→Job link written in phase 3.
type Search struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	OwnerEmail string    `json:"owner_email,omitempty"`
	Query      string    `json:"query"`
	Filters    Filters   `json:"filters"`
	JobID      *string   `json:"job_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	Posts []Post `json:"posts,omitempty"`
}
