package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/signalscope/report-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db        *sql.DB
	txTimeout time.Duration
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, txTimeout: defaultTxTimeout}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS searches (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	owner_email TEXT NOT NULL DEFAULT '',
	query       TEXT NOT NULL,
	filters     TEXT NOT NULL DEFAULT '{}',
	job_id      TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS posts (
	id          TEXT PRIMARY KEY,
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
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	query             TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'running',
	started_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at      DATETIME,
	total_results     INTEGER NOT NULL DEFAULT 0,
	notified_at       DATETIME,
	share_token       TEXT,
	share_expires_at  DATETIME,
	cached_enrichment TEXT
);

CREATE TABLE IF NOT EXISTS insights (
	id         TEXT PRIMARY KEY,
	job_id     TEXT NOT NULL REFERENCES jobs(id),
	analysis   TEXT NOT NULL,
	model      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_searches_user_id ON searches(user_id);
CREATE INDEX IF NOT EXISTS idx_posts_search_id ON posts(search_id);
CREATE INDEX IF NOT EXISTS idx_jobs_user_query_status ON jobs(user_id, query, status);
CREATE INDEX IF NOT EXISTS idx_insights_job_id ON insights(job_id);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSearch(ctx context.Context, search model.Search) (*model.Search, error) {
	if search.ID == "" {
		search.ID = uuid.New().String()
	}
	search.CreatedAt = time.Now().UTC()

	filtersJSON, err := json.Marshal(search.Filters)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal filters")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO searches (id, user_id, owner_email, query, filters, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		search.ID, search.UserID, search.OwnerEmail, search.Query, string(filtersJSON), search.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert search")
	}
	return &search, nil
}

func (s *SQLiteStore) GetSearch(ctx context.Context, id string) (*model.Search, error) {
	return s.getSearch(ctx,
		`SELECT id, user_id, owner_email, query, filters, job_id, created_at FROM searches WHERE id = ?`,
		id,
	)
}

func (s *SQLiteStore) GetSearchForUser(ctx context.Context, id, userID string) (*model.Search, error) {
	return s.getSearch(ctx,
		`SELECT id, user_id, owner_email, query, filters, job_id, created_at FROM searches WHERE id = ? AND user_id = ?`,
		id, userID,
	)
}

func (s *SQLiteStore) getSearch(ctx context.Context, query string, args ...any) (*model.Search, error) {
	var search model.Search
	var filtersJSON string

	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&search.ID, &search.UserID, &search.OwnerEmail, &search.Query,
		&filtersJSON, &search.JobID, &search.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get search")
	}
	if err := json.Unmarshal([]byte(filtersJSON), &search.Filters); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal filters")
	}
	return &search, nil
}

func (s *SQLiteStore) GetPosts(ctx context.Context, searchID string) ([]model.Post, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, search_id, external_id, platform, author, text, url, likes, comments, shares, views, sentiment
		 FROM posts WHERE search_id = ? ORDER BY likes + 2 * comments DESC, id`,
		searchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get posts")
	}
	defer rows.Close()

	var posts []model.Post
	for rows.Next() {
		var p model.Post
		var sentiment sql.NullString
		if err := rows.Scan(&p.ID, &p.SearchID, &p.ExternalID, &p.Platform, &p.Author,
			&p.Text, &p.URL, &p.Likes, &p.Comments, &p.Shares, &p.Views, &sentiment); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan post")
		}
		if sentiment.Valid {
			s := model.NormalizeSentiment(sentiment.String)
			p.Sentiment = &s
		}
		posts = append(posts, p)
	}
	return posts, eris.Wrap(rows.Err(), "sqlite: get posts iterate")
}

func (s *SQLiteStore) ImportPosts(ctx context.Context, searchID string, posts []model.Post) (int64, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import posts")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO posts (id, search_id, external_id, platform, author, text, url, likes, comments, shares, views)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (search_id, platform, external_id) DO UPDATE SET
		   author = excluded.author, text = excluded.text, url = excluded.url,
		   likes = excluded.likes, comments = excluded.comments,
		   shares = excluded.shares, views = excluded.views`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare import posts")
	}
	defer stmt.Close()

	var n int64
	for _, p := range posts {
		id := p.ID
		if id == "" {
			id = uuid.New().String()
		}
		res, err := stmt.ExecContext(ctx,
			id, searchID, p.ExternalID, string(p.Platform), p.Author,
			p.Text, p.URL, p.Likes, p.Comments, p.Shares, p.Views,
		)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: upsert post")
		}
		affected, _ := res.RowsAffected()
		n += affected
	}

	return n, eris.Wrap(tx.Commit(), "sqlite: commit import posts")
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job model.Job) (*model.Job, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.Status = model.JobStatusRunning
	job.StartedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, user_id, query, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		job.ID, job.UserID, job.Query, string(job.Status), job.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}
	return &job, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	return s.getJob(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`,
		id,
	)
}

func (s *SQLiteStore) FindRunningJob(ctx context.Context, userID, query string, startedAfter time.Time) (*model.Job, error) {
	return s.getJob(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE user_id = ? AND query = ? AND status = ? AND started_at > ?
		 ORDER BY started_at DESC LIMIT 1`,
		userID, query, string(model.JobStatusRunning), startedAfter,
	)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE true`
	args := []any{}

	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var j model.Job
		var status string
		var enrichmentJSON sql.NullString

		if err := rows.Scan(
			&j.ID, &j.UserID, &j.Query, &status, &j.StartedAt, &j.CompletedAt,
			&j.TotalResults, &j.NotifiedAt, &j.ShareToken, &j.ShareExpiresAt, &enrichmentJSON,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		j.Status = model.JobStatus(status)
		if enrichmentJSON.Valid && enrichmentJSON.String != "" {
			if err := json.Unmarshal([]byte(enrichmentJSON.String), &j.CachedEnrichment); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal cached enrichment")
			}
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs rows")
	}
	return jobs, nil
}

func (s *SQLiteStore) getJob(ctx context.Context, query string, args ...any) (*model.Job, error) {
	var j model.Job
	var status string
	var enrichmentJSON sql.NullString

	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&j.ID, &j.UserID, &j.Query, &status, &j.StartedAt, &j.CompletedAt,
		&j.TotalResults, &j.NotifiedAt, &j.ShareToken, &j.ShareExpiresAt, &enrichmentJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get job")
	}
	j.Status = model.JobStatus(status)
	if enrichmentJSON.Valid && enrichmentJSON.String != "" {
		if err := json.Unmarshal([]byte(enrichmentJSON.String), &j.CachedEnrichment); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal cached enrichment")
		}
	}
	return &j, nil
}

func (s *SQLiteStore) MarkJobFailed(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, completed_at = ? WHERE id = ?`,
		string(model.JobStatusFailed), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark job failed %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) GetInsightByJob(ctx context.Context, jobID string) (*model.Insight, error) {
	var ins model.Insight
	var analysisJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, job_id, analysis, model, created_at FROM insights
		 WHERE job_id = ? ORDER BY created_at DESC LIMIT 1`,
		jobID,
	).Scan(&ins.ID, &ins.JobID, &analysisJSON, &ins.Model, &ins.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get insight")
	}
	if err := json.Unmarshal([]byte(analysisJSON), &ins.Analysis); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal analysis")
	}
	return &ins, nil
}

func (s *SQLiteStore) CompleteReport(ctx context.Context, params CompleteReportParams) error {
	txTimeout := s.txTimeout
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin complete report")
	}
	defer tx.Rollback()

	if len(params.Sentiments) > 0 {
		stmt, err := tx.PrepareContext(ctx, `UPDATE posts SET sentiment = ? WHERE id = ?`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare sentiment update")
		}
		defer stmt.Close()
		for postID, sentiment := range params.Sentiments {
			if _, err := stmt.ExecContext(ctx, string(sentiment), postID); err != nil {
				return eris.Wrap(err, "sqlite: update sentiment")
			}
		}
	}

	if params.Insight != nil {
		ins := params.Insight
		if ins.ID == "" {
			ins.ID = uuid.New().String()
		}
		analysisJSON, err := json.Marshal(ins.Analysis)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal analysis")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO insights (id, job_id, analysis, model, created_at) VALUES (?, ?, ?, ?, ?)`,
			ins.ID, params.JobID, string(analysisJSON), ins.Model, time.Now().UTC(),
		); err != nil {
			return eris.Wrap(err, "sqlite: insert insight")
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE searches SET job_id = ? WHERE id = ?`,
		params.JobID, params.SearchID,
	); err != nil {
		return eris.Wrap(err, "sqlite: link search to job")
	}

	enrichmentJSON, err := json.Marshal(params.CachedEnrichment)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal cached enrichment")
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, completed_at = ?, total_results = ?, cached_enrichment = ? WHERE id = ?`,
		string(model.JobStatusCompleted), time.Now().UTC(), params.TotalResults, string(enrichmentJSON), params.JobID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: mark job completed")
	}
	if err := checkRowsAffected(res, "job", params.JobID); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit complete report")
}

func (s *SQLiteStore) ClaimNotification(ctx context.Context, jobID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET notified_at = ? WHERE id = ? AND notified_at IS NULL`,
		time.Now().UTC(), jobID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: claim notification %s", jobID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: claim notification rows affected")
	}
	return n == 1, nil
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", kind, id)
	}
	return nil
}
