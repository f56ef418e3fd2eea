package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom streams rows into a table with the COPY protocol. Rows must
// match the column order exactly; there is no conflict handling, so it
// only suits freshly created tables or first-time loads.
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}

// UpsertConfig describes a bulk insert-or-update. ConflictKeys name the
// unique index that decides whether an incoming row is new; UpdateCols
// are the columns refreshed when it is not. Leaving UpdateCols empty
// updates every non-key column, which is right for full re-imports.
type UpsertConfig struct {
	Table        string
	Columns      []string
	ConflictKeys []string
	UpdateCols   []string
}

// BulkUpsert loads rows through a temp table and merges them into the
// target with INSERT ... ON CONFLICT. Re-importing a search's posts hits
// the same external IDs, so plain COPY would fail on the unique index;
// this keeps the COPY throughput while letting engagement counts refresh
// in place. Returns the number of rows merged.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: bulk upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: bulk upsert: no conflict keys specified")
	}
	updateCols := cfg.UpdateCols
	if len(updateCols) == 0 {
		updateCols = defaultUpdateColumns(cfg.Columns, cfg.ConflictKeys)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: bulk upsert: begin")
	}
	defer tx.Rollback(ctx)

	tmp := fmt.Sprintf("_tmp_upsert_%s", strings.ReplaceAll(cfg.Table, ".", "_"))
	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{tmp}.Sanitize(), sanitizeTable(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: bulk upsert: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tmp}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: bulk upsert: COPY INTO %s", tmp)
	}

	tag, err := tx.Exec(ctx, buildUpsertSQL(cfg.Table, tmp, cfg.Columns, cfg.ConflictKeys, updateCols))
	if err != nil {
		return 0, eris.Wrapf(err, "db: bulk upsert: merge into %s", cfg.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: bulk upsert: commit")
	}
	return tag.RowsAffected(), nil
}

// defaultUpdateColumns returns every column that is not part of the
// conflict key, preserving input order.
func defaultUpdateColumns(columns, conflictKeys []string) []string {
	keys := make(map[string]struct{}, len(conflictKeys))
	for _, k := range conflictKeys {
		keys[k] = struct{}{}
	}
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if _, isKey := keys[c]; !isKey {
			out = append(out, c)
		}
	}
	return out
}

func buildUpsertSQL(table, tmp string, columns, conflictKeys, updateCols []string) string {
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		q := pgx.Identifier{c}.Sanitize()
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", q, q)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s",
		sanitizeTable(table),
		quoteAndJoin(columns),
		quoteAndJoin(columns),
		pgx.Identifier{tmp}.Sanitize(),
		quoteAndJoin(conflictKeys),
		strings.Join(sets, ", "),
	)
}

// sanitizeTable quotes a possibly schema-qualified table name.
func sanitizeTable(table string) string {
	parts := strings.Split(table, ".")
	return pgx.Identifier(parts).Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
