// Package store persists searches, posts, jobs, and insights. Two
// implementations exist: Postgres via pgxpool for deployments, SQLite via
// modernc.org/sqlite for local single-binary use.
//
// Lookup methods return (nil, nil) when the row does not exist; callers
// translate that into their own not-found semantics.
package store

import (
	"context"
	"time"

	"github.com/signalscope/report-cli/internal/model"
)

// CompleteReportParams is everything the final report transaction writes.
// All of it commits atomically: the per-post sentiment labels, the insight
// (only present when the model synthesis succeeded), the search-to-job
// link, and the job's terminal state with its cached comment enrichment.
type CompleteReportParams struct {
	JobID    string
	SearchID string

	// Sentiments maps post ID to its classified label.
	Sentiments map[string]model.Sentiment

	// Insight is nil when synthesis fell back to the local analysis;
	// fallback results are returned to callers but never persisted.
	Insight *model.Insight

	TotalResults     int
	CachedEnrichment []model.CommentEnrichment
}

// JobFilter narrows a ListJobs call. Zero values mean no constraint.
type JobFilter struct {
	UserID string
	Status model.JobStatus
	Limit  int
}

// Store is the persistence boundary for the report pipeline.
type Store interface {
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error

	// CreateSearch inserts a search owned by a user.
	CreateSearch(ctx context.Context, search model.Search) (*model.Search, error)

	// GetSearch returns the search without its posts, or (nil, nil).
	GetSearch(ctx context.Context, id string) (*model.Search, error)

	// GetSearchForUser returns the search only if it belongs to the user,
	// or (nil, nil). Posts are not loaded.
	GetSearchForUser(ctx context.Context, id, userID string) (*model.Search, error)

	// GetPosts returns all posts linked to a search.
	GetPosts(ctx context.Context, searchID string) ([]model.Post, error)

	// ImportPosts bulk-upserts posts under a search, keyed by
	// (search_id, platform, external_id). Returns the affected row count.
	ImportPosts(ctx context.Context, searchID string, posts []model.Post) (int64, error)

	// CreateJob inserts a job in the running state.
	CreateJob(ctx context.Context, job model.Job) (*model.Job, error)

	// GetJob returns the job, or (nil, nil).
	GetJob(ctx context.Context, id string) (*model.Job, error)

	// ListJobs returns jobs matching the filter, most recent first.
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)

	// FindRunningJob returns the most recent running job for the same user
	// and query started after the given time, or (nil, nil).
	FindRunningJob(ctx context.Context, userID, query string, startedAfter time.Time) (*model.Job, error)

	// MarkJobFailed moves a job to the failed terminal state.
	MarkJobFailed(ctx context.Context, jobID string) error

	// GetInsightByJob returns the most recent insight for a job, or (nil, nil).
	GetInsightByJob(ctx context.Context, jobID string) (*model.Insight, error)

	// CompleteReport commits all report results in one transaction.
	CompleteReport(ctx context.Context, params CompleteReportParams) error

	// ClaimNotification atomically stamps the job's notified-at time and
	// reports whether this caller won the claim. Exactly one concurrent
	// caller per job sees true.
	ClaimNotification(ctx context.Context, jobID string) (bool, error)
}
