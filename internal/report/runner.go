// Package report orchestrates the full report pipeline: load the search,
// guard against duplicate jobs, classify sentiment, enrich comments,
// synthesize the analysis, and commit everything in one transaction.
//
// The run is split into three phases. Phase 1 does all reads and creates
// the job quickly. Phase 2 does the slow model and network work while
// holding no database connection. Phase 3 writes every result in a single
// bounded transaction.
package report

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/signalscope/report-cli/internal/comments"
	"github.com/signalscope/report-cli/internal/model"
	"github.com/signalscope/report-cli/internal/notify"
	"github.com/signalscope/report-cli/internal/sentiment"
	"github.com/signalscope/report-cli/internal/store"
	"github.com/signalscope/report-cli/internal/synthesis"
)

// Classifier labels posts with sentiment.
type Classifier interface {
	Classify(ctx context.Context, posts []model.Post) []model.Sentiment
}

// Enricher fetches comment threads for top posts.
type Enricher interface {
	Enrich(ctx context.Context, posts []model.Post) []model.CommentEnrichment
}

// Analyzer produces the AI analysis, falling back locally on failure.
type Analyzer interface {
	Analyze(ctx context.Context, search model.Search, posts []model.Post, breakdown model.SentimentBreakdown, stats map[model.Platform]model.PlatformStats, enrichments []model.CommentEnrichment) *model.AnalysisResult
}

// Config tunes the runner.
type Config struct {
	// DuplicateWindow is how far back a running job for the same user and
	// query blocks a new one. Default: 10m.
	DuplicateWindow time.Duration `yaml:"duplicate_window" mapstructure:"duplicate_window"`
}

func (c Config) withDefaults() Config {
	if c.DuplicateWindow <= 0 {
		c.DuplicateWindow = 10 * time.Minute
	}
	return c
}

// Params identifies one report request.
type Params struct {
	SearchID string
	UserID   string

	// Progress receives step events; nil disables them.
	Progress ProgressFunc
}

// Result is a finished report.
type Result struct {
	Job         *model.Job
	Search      *model.Search
	Posts       []model.Post
	Breakdown   model.SentimentBreakdown
	Stats       map[model.Platform]model.PlatformStats
	Enrichments []model.CommentEnrichment
	Analysis    *model.AnalysisResult

	// Cached marks a fast-path result served from a previously completed
	// job instead of a fresh run.
	Cached bool
}

// Runner executes report jobs.
type Runner struct {
	store      store.Store
	classifier Classifier
	enricher   Enricher
	analyzer   Analyzer
	notifier   notify.Notifier
	cfg        Config
}

func NewRunner(st store.Store, classifier Classifier, enricher Enricher, analyzer Analyzer, notifier notify.Notifier, cfg Config) *Runner {
	return &Runner{
		store:      st,
		classifier: classifier,
		enricher:   enricher,
		analyzer:   analyzer,
		notifier:   notifier,
		cfg:        cfg.withDefaults(),
	}
}

// Run generates the report for one search. Store failures, missing
// searches, and duplicate running jobs return typed errors; provider and
// parse failures never do — those degrade inside the pipeline.
func (r *Runner) Run(ctx context.Context, params Params) (*Result, error) {
	progress := params.Progress
	progress.emit(StepInitializing, "")

	// Phase 1: reads and job creation, all fast.
	search, err := r.store.GetSearchForUser(ctx, params.SearchID, params.UserID)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	if search == nil {
		return nil, &NotFoundError{Resource: "search", ID: params.SearchID}
	}

	if search.JobID != nil {
		cached, err := r.fastPath(ctx, search, progress)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			return cached, nil
		}
	}

	running, err := r.store.FindRunningJob(ctx, params.UserID, search.Query, time.Now().UTC().Add(-r.cfg.DuplicateWindow))
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	if running != nil {
		return nil, &ConflictError{JobID: running.ID}
	}

	posts, err := r.store.GetPosts(ctx, search.ID)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}

	job, err := r.store.CreateJob(ctx, model.Job{UserID: params.UserID, Query: search.Query})
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}

	result, err := r.process(ctx, job, search, posts, progress)
	if err != nil {
		progress.emit(StepError, err.Error())
		if markErr := r.store.MarkJobFailed(context.WithoutCancel(ctx), job.ID); markErr != nil {
			zap.L().Error("report: failed to mark job failed",
				zap.String("job_id", job.ID),
				zap.Error(markErr),
			)
		}
		return nil, err
	}

	r.maybeNotify(ctx, job, search, result)
	progress.emit(StepComplete, "")
	return result, nil
}

// fastPath serves a previously completed report. Returns (nil, nil) when
// the linked job is not in a completed state, letting the run proceed.
func (r *Runner) fastPath(ctx context.Context, search *model.Search, progress ProgressFunc) (*Result, error) {
	job, err := r.store.GetJob(ctx, *search.JobID)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	if job == nil || job.Status != model.JobStatusCompleted {
		return nil, nil
	}

	posts, err := r.store.GetPosts(ctx, search.ID)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}

	result := &Result{
		Job:         job,
		Search:      search,
		Posts:       posts,
		Breakdown:   sentiment.CalculateBreakdown(posts),
		Stats:       calculateStats(posts),
		Enrichments: job.CachedEnrichment,
		Cached:      true,
	}

	insight, err := r.store.GetInsightByJob(ctx, job.ID)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	if insight != nil {
		result.Analysis = &insight.Analysis
	}

	zap.L().Info("report: served cached report",
		zap.String("search_id", search.ID),
		zap.String("job_id", job.ID),
	)
	progress.emit(StepComplete, "cached")
	return result, nil
}

// process is phase 2 and 3: the slow pipeline work, then the single commit.
func (r *Runner) process(ctx context.Context, job *model.Job, search *model.Search, posts []model.Post, progress ProgressFunc) (*Result, error) {
	progress.emit(StepFetchingData, fmt.Sprintf("%d posts", len(posts)))

	progress.emit(StepSentimentAnalysis, "")
	labels := r.classifier.Classify(ctx, posts)
	sentiments := make(map[string]model.Sentiment, len(posts))
	for i := range posts {
		posts[i].Sentiment = &labels[i]
		sentiments[posts[i].ID] = labels[i]
	}

	progress.emit(StepFetchingComments, "")
	enrichments := r.enricher.Enrich(ctx, posts)

	progress.emit(StepCalculatingMetrics, "")
	breakdown := sentiment.CalculateBreakdown(posts)
	stats := calculateStats(posts)

	progress.emit(StepAIAnalysis, "")
	analysis := r.analyzer.Analyze(ctx, *search, posts, breakdown, stats, enrichments)

	// Phase 3: one transaction for everything.
	completion := store.CompleteReportParams{
		JobID:            job.ID,
		SearchID:         search.ID,
		Sentiments:       sentiments,
		TotalResults:     len(posts),
		CachedEnrichment: enrichments,
	}
	if !analysis.Fallback {
		completion.Insight = &model.Insight{
			JobID:    job.ID,
			Analysis: *analysis,
			Model:    analysis.Model,
		}
	}
	if err := r.store.CompleteReport(ctx, completion); err != nil {
		return nil, &PersistenceError{Err: err}
	}

	job.Status = model.JobStatusCompleted
	job.TotalResults = len(posts)
	job.CachedEnrichment = enrichments

	return &Result{
		Job:         job,
		Search:      search,
		Posts:       posts,
		Breakdown:   breakdown,
		Stats:       stats,
		Enrichments: enrichments,
		Analysis:    analysis,
	}, nil
}

// maybeNotify claims and sends the report-ready notification. The claim is
// conditional in the store, so of any number of concurrent callers exactly
// one sends. Notification failures are logged, never returned.
func (r *Runner) maybeNotify(ctx context.Context, job *model.Job, search *model.Search, result *Result) {
	if r.notifier == nil || !r.notifier.Enabled() {
		return
	}

	won, err := r.store.ClaimNotification(ctx, job.ID)
	if err != nil {
		zap.L().Error("report: notification claim failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		return
	}
	if !won {
		return
	}

	topInsight := ""
	if result.Analysis != nil {
		topInsight = result.Analysis.Interpretation
	}
	if err := r.notifier.NotifyReportReady(ctx, notify.ReportReady{
		Email:      search.OwnerEmail,
		JobID:      job.ID,
		Query:      search.Query,
		PostCount:  len(result.Posts),
		TopInsight: topInsight,
	}); err != nil {
		zap.L().Error("report: notification delivery failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
}

// calculateStats aggregates per-platform engagement locally. These numbers
// are always available, even when every model call degraded.
func calculateStats(posts []model.Post) map[model.Platform]model.PlatformStats {
	stats := make(map[model.Platform]model.PlatformStats)
	for _, p := range posts {
		s := stats[p.Platform]
		s.Posts++
		s.Likes += p.Likes
		s.Comments += p.Comments
		s.Shares += p.Shares
		s.Views += p.Views
		s.Engagement += p.EngagementScore()
		stats[p.Platform] = s
	}
	return stats
}

// Interface checks.
var (
	_ Classifier = (*sentiment.Classifier)(nil)
	_ Enricher   = (*comments.Enricher)(nil)
	_ Analyzer   = (*synthesis.Analyzer)(nil)
)
