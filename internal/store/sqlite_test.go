package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalscope/report-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedSearch(t *testing.T, s *SQLiteStore) *model.Search {
	t.Helper()
	search, err := s.CreateSearch(context.Background(), model.Search{
		UserID:     "u1",
		OwnerEmail: "u@example.com",
		Query:      "climate policy",
		Filters:    model.Filters{TimeRange: "7d", Language: "en"},
	})
	require.NoError(t, err)
	return search
}

func TestSQLiteStore_SearchRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	created := seedSearch(t, s)

	got, err := s.GetSearch(context.Background(), created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "climate policy", got.Query)
	assert.Equal(t, "7d", got.Filters.TimeRange)
	assert.Nil(t, got.JobID)

	missing, err := s.GetSearch(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteStore_GetSearchForUser(t *testing.T) {
	s := newTestSQLiteStore(t)
	created := seedSearch(t, s)

	got, err := s.GetSearchForUser(context.Background(), created.ID, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)

	denied, err := s.GetSearchForUser(context.Background(), created.ID, "someone-else")
	require.NoError(t, err)
	assert.Nil(t, denied)
}

func TestSQLiteStore_ImportPostsUpserts(t *testing.T) {
	s := newTestSQLiteStore(t)
	search := seedSearch(t, s)

	posts := []model.Post{
		{ExternalID: "x1", Platform: model.PlatformX, Text: "first", Likes: 1},
		{ExternalID: "y1", Platform: model.PlatformYouTube, Text: "second", Likes: 2},
	}
	n, err := s.ImportPosts(context.Background(), search.ID, posts)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// Re-import with updated engagement: same rows, new counts.
	posts[0].Likes = 100
	_, err = s.ImportPosts(context.Background(), search.ID, posts)
	require.NoError(t, err)

	got, err := s.GetPosts(context.Background(), search.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Ordered by engagement descending.
	assert.Equal(t, "x1", got[0].ExternalID)
	assert.Equal(t, 100, got[0].Likes)
}

func TestSQLiteStore_JobLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, model.Job{UserID: "u1", Query: "climate policy"})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, job.Status)

	found, err := s.FindRunningJob(ctx, "u1", "climate policy", time.Now().UTC().Add(-10*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, job.ID, found.ID)

	// Different user or stale window find nothing.
	other, err := s.FindRunningJob(ctx, "u2", "climate policy", time.Now().UTC().Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, other)
	stale, err := s.FindRunningJob(ctx, "u1", "climate policy", time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, stale)

	require.NoError(t, s.MarkJobFailed(ctx, job.ID))
	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.NotNil(t, got.CompletedAt)

	// Failed jobs no longer match the running-job window.
	gone, err := s.FindRunningJob(ctx, "u1", "climate policy", time.Now().UTC().Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestSQLiteStore_ListJobs(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	j1, err := s.CreateJob(ctx, model.Job{UserID: "u1", Query: "climate policy"})
	require.NoError(t, err)
	j2, err := s.CreateJob(ctx, model.Job{UserID: "u1", Query: "elections"})
	require.NoError(t, err)
	_, err = s.CreateJob(ctx, model.Job{UserID: "u2", Query: "sports"})
	require.NoError(t, err)
	require.NoError(t, s.MarkJobFailed(ctx, j2.ID))

	all, err := s.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := s.ListJobs(ctx, JobFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	running, err := s.ListJobs(ctx, JobFilter{UserID: "u1", Status: model.JobStatusRunning})
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, j1.ID, running[0].ID)

	limited, err := s.ListJobs(ctx, JobFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteStore_CompleteReport(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	search := seedSearch(t, s)
	_, err := s.ImportPosts(ctx, search.ID, []model.Post{
		{ID: "p1", ExternalID: "x1", Platform: model.PlatformX, Text: "good"},
		{ID: "p2", ExternalID: "x2", Platform: model.PlatformX, Text: "bad"},
	})
	require.NoError(t, err)
	job, err := s.CreateJob(ctx, model.Job{UserID: "u1", Query: search.Query})
	require.NoError(t, err)

	err = s.CompleteReport(ctx, CompleteReportParams{
		JobID:    job.ID,
		SearchID: search.ID,
		Sentiments: map[string]model.Sentiment{
			"p1": model.SentimentPositive,
			"p2": model.SentimentNegative,
		},
		Insight: &model.Insight{
			Model:    "test-model",
			Analysis: model.AnalysisResult{Interpretation: "split opinions"},
		},
		TotalResults: 2,
		CachedEnrichment: []model.CommentEnrichment{
			{ParentPostID: "p1", Platform: model.PlatformX},
		},
	})
	require.NoError(t, err)

	gotJob, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, gotJob.Status)
	assert.Equal(t, 2, gotJob.TotalResults)
	require.Len(t, gotJob.CachedEnrichment, 1)

	gotSearch, err := s.GetSearch(ctx, search.ID)
	require.NoError(t, err)
	require.NotNil(t, gotSearch.JobID)
	assert.Equal(t, job.ID, *gotSearch.JobID)

	posts, err := s.GetPosts(ctx, search.ID)
	require.NoError(t, err)
	byID := map[string]model.Post{}
	for _, p := range posts {
		byID[p.ID] = p
	}
	require.NotNil(t, byID["p1"].Sentiment)
	assert.Equal(t, model.SentimentPositive, *byID["p1"].Sentiment)
	require.NotNil(t, byID["p2"].Sentiment)
	assert.Equal(t, model.SentimentNegative, *byID["p2"].Sentiment)

	ins, err := s.GetInsightByJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, ins)
	assert.Equal(t, "split opinions", ins.Analysis.Interpretation)
}

func TestSQLiteStore_CompleteReport_MissingJob(t *testing.T) {
	s := newTestSQLiteStore(t)
	search := seedSearch(t, s)

	err := s.CompleteReport(context.Background(), CompleteReportParams{
		JobID:    "missing",
		SearchID: search.ID,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job not found")
}

func TestSQLiteStore_ClaimNotification_SingleWinner(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, model.Job{UserID: "u1", Query: "q"})
	require.NoError(t, err)

	won, err := s.ClaimNotification(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, won)

	again, err := s.ClaimNotification(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, again)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.NotifiedAt)
}

func TestSQLiteStore_GetInsightByJob_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	ins, err := s.GetInsightByJob(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, ins)
}
