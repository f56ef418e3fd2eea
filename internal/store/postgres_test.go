package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalscope/report-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock, txTimeout: defaultTxTimeout}
	return s, mock
}

func searchColumnNames() []string {
	return []string{"id", "user_id", "owner_email", "query", "filters", "job_id", "created_at"}
}

func jobColumnNames() []string {
	return []string{"id", "user_id", "query", "status", "started_at", "completed_at",
		"total_results", "notified_at", "share_token", "share_expires_at", "cached_enrichment"}
}

func TestPostgresStore_GetSearch(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, user_id, owner_email, query, filters, job_id, created_at FROM searches WHERE id = \$1`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows(searchColumnNames()).
			AddRow("s1", "u1", "u@example.com", "climate policy", []byte(`{"time_range":"7d"}`), nil, now))

	search, err := s.GetSearch(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, search)
	assert.Equal(t, "climate policy", search.Query)
	assert.Equal(t, "7d", search.Filters.TimeRange)
	assert.Nil(t, search.JobID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSearch_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM searches WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	search, err := s.GetSearch(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, search)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSearchForUser_ScopesByUser(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM searches WHERE id = \$1 AND user_id = \$2`).
		WithArgs("s1", "intruder").
		WillReturnError(pgx.ErrNoRows)

	search, err := s.GetSearchForUser(context.Background(), "s1", "intruder")
	require.NoError(t, err)
	assert.Nil(t, search)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(pgxmock.AnyArg(), "u1", "climate policy", "running", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	job, err := s.CreateJob(context.Background(), model.Job{UserID: "u1", Query: "climate policy"})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobStatusRunning, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindRunningJob_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	since := time.Now().Add(-10 * time.Minute)
	mock.ExpectQuery(`SELECT .+ FROM jobs`).
		WithArgs("u1", "climate policy", "running", since).
		WillReturnError(pgx.ErrNoRows)

	job, err := s.FindRunningJob(context.Background(), "u1", "climate policy", since)
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetJob_WithCachedEnrichment(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	enrichment, err := json.Marshal([]model.CommentEnrichment{
		{ParentPostID: "p1", Platform: model.PlatformX},
	})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT .+ FROM jobs WHERE id = \$1`).
		WithArgs("j1").
		WillReturnRows(pgxmock.NewRows(jobColumnNames()).
			AddRow("j1", "u1", "q", "completed", now, &now, 42, nil, nil, nil, enrichment))

	job, err := s.GetJob(context.Background(), "j1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, 42, job.TotalResults)
	require.Len(t, job.CachedEnrichment, 1)
	assert.Equal(t, "p1", job.CachedEnrichment[0].ParentPostID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListJobs_FiltersByUserAndStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM jobs WHERE true AND user_id = \$1 AND status = \$2 ORDER BY started_at DESC LIMIT \$3`).
		WithArgs("u1", "running", 100).
		WillReturnRows(pgxmock.NewRows(jobColumnNames()).
			AddRow("j1", "u1", "climate policy", "running", now, nil, 0, nil, nil, nil, nil))

	jobs, err := s.ListJobs(context.Background(), JobFilter{UserID: "u1", Status: model.JobStatusRunning})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "j1", jobs[0].ID)
	assert.Equal(t, model.JobStatusRunning, jobs[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkJobFailed_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE jobs SET status`).
		WithArgs("failed", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.MarkJobFailed(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetInsightByJob_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM insights`).
		WithArgs("j1").
		WillReturnError(pgx.ErrNoRows)

	ins, err := s.GetInsightByJob(context.Background(), "j1")
	require.NoError(t, err)
	assert.Nil(t, ins)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClaimNotification(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE jobs SET notified_at = \$1 WHERE id = \$2 AND notified_at IS NULL`).
		WithArgs(pgxmock.AnyArg(), "j1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	won, err := s.ClaimNotification(context.Background(), "j1")
	require.NoError(t, err)
	assert.True(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClaimNotification_AlreadyClaimed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE jobs SET notified_at = \$1 WHERE id = \$2 AND notified_at IS NULL`).
		WithArgs(pgxmock.AnyArg(), "j1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	won, err := s.ClaimNotification(context.Background(), "j1")
	require.NoError(t, err)
	assert.False(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteReport(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	batch := mock.ExpectBatch()
	batch.ExpectExec(`UPDATE posts SET sentiment`).
		WithArgs("positive", "p1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO insights`).
		WithArgs(pgxmock.AnyArg(), "j1", pgxmock.AnyArg(), "test-model", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE searches SET job_id`).
		WithArgs("j1", "s1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE jobs SET status`).
		WithArgs("completed", pgxmock.AnyArg(), 3, pgxmock.AnyArg(), "j1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := s.CompleteReport(context.Background(), CompleteReportParams{
		JobID:    "j1",
		SearchID: "s1",
		Sentiments: map[string]model.Sentiment{
			"p1": model.SentimentPositive,
		},
		Insight: &model.Insight{
			Model:    "test-model",
			Analysis: model.AnalysisResult{Interpretation: "fine"},
		},
		TotalResults: 3,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteReport_NoInsightOnFallback(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE searches SET job_id`).
		WithArgs("j1", "s1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE jobs SET status`).
		WithArgs("completed", pgxmock.AnyArg(), 0, pgxmock.AnyArg(), "j1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := s.CompleteReport(context.Background(), CompleteReportParams{
		JobID:    "j1",
		SearchID: "s1",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteReport_MissingJobRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE searches SET job_id`).
		WithArgs("j1", "s1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE jobs SET status`).
		WithArgs("completed", pgxmock.AnyArg(), 0, pgxmock.AnyArg(), "j1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := s.CompleteReport(context.Background(), CompleteReportParams{
		JobID:    "j1",
		SearchID: "s1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
