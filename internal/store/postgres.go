package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/signalscope/report-cli/internal/db"
	"github.com/signalscope/report-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool      db.Pool
	txTimeout time.Duration
	closeFn   func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`

	// TxTimeout bounds the report completion transaction. Default: 30s.
	TxTimeout time.Duration `yaml:"tx_timeout" mapstructure:"tx_timeout"`
}

const defaultTxTimeout = 30 * time.Second

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	txTimeout := defaultTxTimeout
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
		if poolCfg.TxTimeout > 0 {
			txTimeout = poolCfg.TxTimeout
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, txTimeout: txTimeout, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (e.g., bulk post import).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS searches (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id     TEXT NOT NULL,
	owner_email TEXT NOT NULL DEFAULT '',
	query       TEXT NOT NULL,
	filters     JSONB NOT NULL DEFAULT '{}',
	job_id      TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS posts (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	search_id   TEXT NOT NULL REFERENCES searches(id),
	external_id TEXT NOT NULL,
	platform    TEXT NOT NULL,
	author      TEXT NOT NULL DEFAULT '',
	text        TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL DEFAULT '',
	likes       INTEGER NOT NULL DEFAULT 0,
	comments    INTEGER NOT NULL DEFAULT 0,
	shares      INTEGER NOT NULL DEFAULT 0,
	views       INTEGER NOT NULL DEFAULT 0,
	sentiment   TEXT,
	UNIQUE (search_id, platform, external_id)
);

CREATE TABLE IF NOT EXISTS jobs (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id           TEXT NOT NULL,
	query             TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'running',
	started_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at      TIMESTAMPTZ,
	total_results     INTEGER NOT NULL DEFAULT 0,
	notified_at       TIMESTAMPTZ,
	share_token       TEXT,
	share_expires_at  TIMESTAMPTZ,
	cached_enrichment JSONB
);

CREATE TABLE IF NOT EXISTS insights (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	job_id     TEXT NOT NULL REFERENCES jobs(id),
	analysis   JSONB NOT NULL,
	model      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_searches_user_id ON searches(user_id);
CREATE INDEX IF NOT EXISTS idx_searches_job_id ON searches(job_id);
CREATE INDEX IF NOT EXISTS idx_posts_search_id ON posts(search_id);
CREATE INDEX IF NOT EXISTS idx_jobs_user_query_status ON jobs(user_id, query, status);
CREATE INDEX IF NOT EXISTS idx_insights_job_id ON insights(job_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateSearch(ctx context.Context, search model.Search) (*model.Search, error) {
	if search.ID == "" {
		search.ID = uuid.New().String()
	}
	search.CreatedAt = time.Now().UTC()

	filtersJSON, err := json.Marshal(search.Filters)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal filters")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO searches (id, user_id, owner_email, query, filters, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		search.ID, search.UserID, search.OwnerEmail, search.Query, filtersJSON, search.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert search")
	}
	return &search, nil
}

func (s *PostgresStore) GetSearch(ctx context.Context, id string) (*model.Search, error) {
	return s.getSearch(ctx,
		`SELECT id, user_id, owner_email, query, filters, job_id, created_at FROM searches WHERE id = $1`,
		id,
	)
}

func (s *PostgresStore) GetSearchForUser(ctx context.Context, id, userID string) (*model.Search, error) {
	return s.getSearch(ctx,
		`SELECT id, user_id, owner_email, query, filters, job_id, created_at FROM searches WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
}

func (s *PostgresStore) getSearch(ctx context.Context, query string, args ...any) (*model.Search, error) {
	var search model.Search
	var filtersJSON []byte

	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&search.ID, &search.UserID, &search.OwnerEmail, &search.Query,
		&filtersJSON, &search.JobID, &search.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get search")
	}
	if err := json.Unmarshal(filtersJSON, &search.Filters); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal filters")
	}
	return &search, nil
}

func (s *PostgresStore) GetPosts(ctx context.Context, searchID string) ([]model.Post, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, search_id, external_id, platform, author, text, url, likes, comments, shares, views, sentiment
		 FROM posts WHERE search_id = $1 ORDER BY likes + 2 * comments DESC, id`,
		searchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get posts")
	}
	defer rows.Close()

	var posts []model.Post
	for rows.Next() {
		var p model.Post
		var sentiment *string
		if err := rows.Scan(&p.ID, &p.SearchID, &p.ExternalID, &p.Platform, &p.Author,
			&p.Text, &p.URL, &p.Likes, &p.Comments, &p.Shares, &p.Views, &sentiment); err != nil {
			return nil, eris.Wrap(err, "postgres: scan post")
		}
		if sentiment != nil {
			s := model.NormalizeSentiment(*sentiment)
			p.Sentiment = &s
		}
		posts = append(posts, p)
	}
	return posts, eris.Wrap(rows.Err(), "postgres: get posts iterate")
}

var postColumns = []string{
	"id", "search_id", "external_id", "platform", "author",
	"text", "url", "likes", "comments", "shares", "views",
}

func (s *PostgresStore) ImportPosts(ctx context.Context, searchID string, posts []model.Post) (int64, error) {
	rows := make([][]any, 0, len(posts))
	for _, p := range posts {
		id := p.ID
		if id == "" {
			id = uuid.New().String()
		}
		rows = append(rows, []any{
			id, searchID, p.ExternalID, string(p.Platform), p.Author,
			p.Text, p.URL, p.Likes, p.Comments, p.Shares, p.Views,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "posts",
		Columns:      postColumns,
		ConflictKeys: []string{"search_id", "platform", "external_id"},
		UpdateCols:   []string{"author", "text", "url", "likes", "comments", "shares", "views"},
	}, rows)
	return n, eris.Wrap(err, "postgres: import posts")
}

func (s *PostgresStore) CreateJob(ctx context.Context, job model.Job) (*model.Job, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.Status = model.JobStatusRunning
	job.StartedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, user_id, query, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.UserID, job.Query, string(job.Status), job.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}
	return &job, nil
}

const jobColumns = `id, user_id, query, status, started_at, completed_at, total_results, notified_at, share_token, share_expires_at, cached_enrichment`

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	return s.getJob(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`,
		id,
	)
}

func (s *PostgresStore) FindRunningJob(ctx context.Context, userID, query string, startedAfter time.Time) (*model.Job, error) {
	return s.getJob(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE user_id = $1 AND query = $2 AND status = $3 AND started_at > $4
		 ORDER BY started_at DESC LIMIT 1`,
		userID, query, string(model.JobStatusRunning), startedAfter,
	)
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(` AND user_id = $%d`, argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var j model.Job
		var status string
		var enrichmentJSON []byte

		if err := rows.Scan(
			&j.ID, &j.UserID, &j.Query, &status, &j.StartedAt, &j.CompletedAt,
			&j.TotalResults, &j.NotifiedAt, &j.ShareToken, &j.ShareExpiresAt, &enrichmentJSON,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		j.Status = model.JobStatus(status)
		if enrichmentJSON != nil {
			if err := json.Unmarshal(enrichmentJSON, &j.CachedEnrichment); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal cached enrichment")
			}
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs rows")
	}
	return jobs, nil
}

func (s *PostgresStore) getJob(ctx context.Context, query string, args ...any) (*model.Job, error) {
	var j model.Job
	var status string
	var enrichmentJSON []byte

	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&j.ID, &j.UserID, &j.Query, &status, &j.StartedAt, &j.CompletedAt,
		&j.TotalResults, &j.NotifiedAt, &j.ShareToken, &j.ShareExpiresAt, &enrichmentJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get job")
	}
	j.Status = model.JobStatus(status)
	if enrichmentJSON != nil {
		if err := json.Unmarshal(enrichmentJSON, &j.CachedEnrichment); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal cached enrichment")
		}
	}
	return &j, nil
}

func (s *PostgresStore) MarkJobFailed(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, completed_at = $2 WHERE id = $3`,
		string(model.JobStatusFailed), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark job failed %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) GetInsightByJob(ctx context.Context, jobID string) (*model.Insight, error) {
	var ins model.Insight
	var analysisJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, job_id, analysis, model, created_at FROM insights
		 WHERE job_id = $1 ORDER BY created_at DESC LIMIT 1`,
		jobID,
	).Scan(&ins.ID, &ins.JobID, &analysisJSON, &ins.Model, &ins.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get insight")
	}
	if err := json.Unmarshal(analysisJSON, &ins.Analysis); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal analysis")
	}
	return &ins, nil
}

// CompleteReport writes every report result in one bounded transaction:
// post sentiments, the insight (when present), the search-to-job link, and
// the job's terminal state with its cached enrichment.
func (s *PostgresStore) CompleteReport(ctx context.Context, params CompleteReportParams) error {
	txTimeout := s.txTimeout
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin complete report")
	}
	defer tx.Rollback(ctx)

	if len(params.Sentiments) > 0 {
		batch := &pgx.Batch{}
		for postID, sentiment := range params.Sentiments {
			batch.Queue(
				`UPDATE posts SET sentiment = $1 WHERE id = $2`,
				string(sentiment), postID,
			)
		}
		br := tx.SendBatch(ctx, batch)
		for range params.Sentiments {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return eris.Wrap(err, "postgres: batch update sentiment")
			}
		}
		if err := br.Close(); err != nil {
			return eris.Wrap(err, "postgres: close sentiment batch")
		}
	}

	if params.Insight != nil {
		ins := params.Insight
		if ins.ID == "" {
			ins.ID = uuid.New().String()
		}
		analysisJSON, err := json.Marshal(ins.Analysis)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal analysis")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO insights (id, job_id, analysis, model, created_at) VALUES ($1, $2, $3, $4, $5)`,
			ins.ID, params.JobID, analysisJSON, ins.Model, time.Now().UTC(),
		); err != nil {
			return eris.Wrap(err, "postgres: insert insight")
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE searches SET job_id = $1 WHERE id = $2`,
		params.JobID, params.SearchID,
	); err != nil {
		return eris.Wrap(err, "postgres: link search to job")
	}

	enrichmentJSON, err := json.Marshal(params.CachedEnrichment)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal cached enrichment")
	}
	tag, err := tx.Exec(ctx,
		`UPDATE jobs SET status = $1, completed_at = $2, total_results = $3, cached_enrichment = $4 WHERE id = $5`,
		string(model.JobStatusCompleted), time.Now().UTC(), params.TotalResults, enrichmentJSON, params.JobID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: mark job completed")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", params.JobID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit complete report")
}

// ClaimNotification stamps notified_at only if it is still unset; the
// conditional update is what makes exactly one concurrent caller win.
func (s *PostgresStore) ClaimNotification(ctx context.Context, jobID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET notified_at = $1 WHERE id = $2 AND notified_at IS NULL`,
		time.Now().UTC(), jobID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: claim notification %s", jobID)
	}
	return tag.RowsAffected() == 1, nil
}
