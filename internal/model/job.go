package model

import "time"

// JobStatus is the lifecycle state of a report job. Transitions are
// monotone: running → completed | failed, never back.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status admits no further transition.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is one execution of the report pipeline and its persisted outcome.
// NotifiedAt, once set, is never cleared — it is the at-most-once guard for
// the completion notification. ShareToken fields belong to the separate
// sharing feature; the pipeline persists but never sets them.
type Job struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Query          string     `json:"query"`
	Status         JobStatus  `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	TotalResults   int        `json:"total_results"`
	NotifiedAt     *time.Time `json:"notified_at,omitempty"`
	ShareToken     *string    `json:"share_token,omitempty"`
	ShareExpiresAt *time.Time `json:"share_expires_at,omitempty"`

	// CachedEnrichment is the comment-enrichment payload fetched during the
	// run, kept so report views don't refetch from the platforms.
	CachedEnrichment []CommentEnrichment `json:"cached_enrichment,omitempty"`
}
