//go:build !integration

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalscope/report-cli/internal/model"
	"github.com/signalscope/report-cli/internal/report"
	"github.com/signalscope/report-cli/internal/store"
)

// stubRunner returns a canned result or error for every request.
type stubRunner struct {
	result *report.Result
	err    error

	lastParams report.Params
}

func (s *stubRunner) Run(_ context.Context, params report.Params) (*report.Result, error) {
	s.lastParams = params
	return s.result, s.err
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestRouter_Health(t *testing.T) {
	router := newRouter(&stubRunner{}, newTestStore(t))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_Report_MissingUserHeader(t *testing.T) {
	router := newRouter(&stubRunner{}, newTestStore(t))

	req := httptest.NewRequest(http.MethodPost, "/searches/s1/report", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "X-User-ID header is required")
}

func TestRouter_Report_Success(t *testing.T) {
	runner := &stubRunner{
		result: &report.Result{
			Job:       &model.Job{ID: "j1", Status: model.JobStatusCompleted},
			Breakdown: model.SentimentBreakdown{Positive: 2, Total: 3},
		},
	}
	router := newRouter(runner, newTestStore(t))

	req := httptest.NewRequest(http.MethodPost, "/searches/s1/report", nil)
	req.Header.Set("X-User-ID", "u1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "s1", runner.lastParams.SearchID)
	assert.Equal(t, "u1", runner.lastParams.UserID)

	var resp report.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "j1", resp.Job.ID)
	assert.Equal(t, 2, resp.Breakdown.Positive)
}

func TestRouter_Report_NotFound(t *testing.T) {
	runner := &stubRunner{err: &report.NotFoundError{Resource: "search", ID: "s1"}}
	router := newRouter(runner, newTestStore(t))

	req := httptest.NewRequest(http.MethodPost, "/searches/s1/report", nil)
	req.Header.Set("X-User-ID", "u1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "search not found")
}

func TestRouter_Report_Conflict(t *testing.T) {
	runner := &stubRunner{err: &report.ConflictError{JobID: "j9"}}
	router := newRouter(runner, newTestStore(t))

	req := httptest.NewRequest(http.MethodPost, "/searches/s1/report", nil)
	req.Header.Set("X-User-ID", "u1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "already running")
}

func TestRouter_Report_PersistenceError(t *testing.T) {
	runner := &stubRunner{err: &report.PersistenceError{Err: assert.AnError}}
	router := newRouter(runner, newTestStore(t))

	req := httptest.NewRequest(http.MethodPost, "/searches/s1/report", nil)
	req.Header.Set("X-User-ID", "u1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "report generation failed")
}

func TestRouter_GetJob(t *testing.T) {
	st := newTestStore(t)
	job, err := st.CreateJob(context.Background(), model.Job{UserID: "u1", Query: "climate policy"})
	require.NoError(t, err)

	router := newRouter(&stubRunner{}, st)

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var got model.Job
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, model.JobStatusRunning, got.Status)
}

func TestRouter_ListJobs(t *testing.T) {
	st := newTestStore(t)
	_, err := st.CreateJob(context.Background(), model.Job{UserID: "u1", Query: "climate policy"})
	require.NoError(t, err)
	_, err = st.CreateJob(context.Background(), model.Job{UserID: "u2", Query: "elections"})
	require.NoError(t, err)

	router := newRouter(&stubRunner{}, st)

	req := httptest.NewRequest(http.MethodGet, "/jobs?user=u1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var jobs []model.Job
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "u1", jobs[0].UserID)
}

func TestRouter_ListJobs_Empty(t *testing.T) {
	router := newRouter(&stubRunner{}, newTestStore(t))

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]\n", rr.Body.String())
}

func TestRouter_GetJob_NotFound(t *testing.T) {
	router := newRouter(&stubRunner{}, newTestStore(t))

	req := httptest.NewRequest(http.MethodGet, "/jobs/missing", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "job not found")
}

func TestRouter_GetInsight_NotFound(t *testing.T) {
	router := newRouter(&stubRunner{}, newTestStore(t))

	req := httptest.NewRequest(http.MethodGet, "/jobs/j1/insight", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "insight not found")
}
