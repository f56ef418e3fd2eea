package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.Background(), nil, "posts", []string{"id"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_StreamsRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"id", "platform", "text"}
	mock.ExpectCopyFrom(pgx.Identifier{"posts"}, cols).WillReturnResult(2)

	n, err := CopyFrom(context.Background(), mock, "posts", cols, [][]any{
		{"p1", "x", "first"},
		{"p2", "reddit", "second"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "posts",
		Columns:      []string{"id", "text"},
		ConflictKeys: []string{"id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "posts",
		ConflictKeys: []string{"id"},
	}, [][]any{{"p1", "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "posts",
		Columns: []string{"id", "text"},
	}, [][]any{{"p1", "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_MergesThroughTempTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"id", "likes", "text"}
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_posts" \(LIKE "posts" INCLUDING DEFAULTS\) ON COMMIT DROP`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_posts"}, cols).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "posts" .+ ON CONFLICT \("id"\) DO UPDATE SET "likes" = EXCLUDED\."likes"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "posts",
		Columns:      cols,
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"likes"},
	}, [][]any{
		{"p1", 10, "first"},
		{"p2", 3, "second"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDefaultUpdateColumns(t *testing.T) {
	got := defaultUpdateColumns(
		[]string{"search_id", "platform", "external_id", "likes", "text"},
		[]string{"search_id", "platform", "external_id"},
	)
	assert.Equal(t, []string{"likes", "text"}, got)
}

func TestBuildUpsertSQL(t *testing.T) {
	sql := buildUpsertSQL("posts", "_tmp_upsert_posts",
		[]string{"id", "likes"}, []string{"id"}, []string{"likes"})
	assert.Equal(t,
		`INSERT INTO "posts" ("id", "likes") SELECT "id", "likes" FROM "_tmp_upsert_posts" `+
			`ON CONFLICT ("id") DO UPDATE SET "likes" = EXCLUDED."likes"`,
		sql)
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"posts"`, sanitizeTable("posts"))
	assert.Equal(t, `"analytics"."posts"`, sanitizeTable("analytics.posts"))
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "platform", "text"`, quoteAndJoin([]string{"id", "platform", "text"}))
}
