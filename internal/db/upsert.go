package db

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig describes a keyed bulk write.
type UpsertConfig struct {
	Table        string   // schema-qualified target, e.g. "parcels.parcels"
	Columns      []string // columns copied from each row, in row order
	ConflictKeys []string // unique key columns
	UpdateCols   []string // nil updates every non-key column
	// TouchColumn, when set, is stamped with now() on insert and update.
	TouchColumn string
}

func (c UpsertConfig) validate() error {
	if len(c.Columns) == 0 {
		return eris.New("db: upsert: no columns specified")
	}
	if len(c.ConflictKeys) == 0 {
		return eris.New("db: upsert: no conflict keys specified")
	}
	return nil
}

func (c UpsertConfig) updateColumns() []string {
	if c.UpdateCols != nil {
		return c.UpdateCols
	}
	var out []string
	for _, col := range c.Columns {
		if !slices.Contains(c.ConflictKeys, col) {
			out = append(out, col)
		}
	}
	return out
}

// tempTableName is the per-transaction staging table for cfg.Table.
func tempTableName(table string) string {
	return "_tmp_upsert_" + strings.ReplaceAll(table, ".", "_")
}

// upsertStatement moves staged rows into the target, updating on key conflict.
func upsertStatement(c UpsertConfig, temp string) string {
	insertCols := slices.Clone(c.Columns)
	selectCols := quoteEach(c.Columns)
	if c.TouchColumn != "" {
		insertCols = append(insertCols, c.TouchColumn)
		selectCols = append(selectCols, "now()")
	}

	sets := make([]string, 0, len(c.Columns)+1)
	for _, col := range c.updateColumns() {
		id := pgx.Identifier{col}.Sanitize()
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", id, id))
	}
	if c.TouchColumn != "" {
		sets = append(sets, pgx.Identifier{c.TouchColumn}.Sanitize()+" = now()")
	}

	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		sanitizeTable(c.Table),
		strings.Join(quoteEach(insertCols), ", "),
		strings.Join(selectCols, ", "),
		pgx.Identifier{temp}.Sanitize(),
		strings.Join(quoteEach(c.ConflictKeys), ", "),
		action,
	)
}

// BulkUpsert stages rows in a temp table with COPY, then merges them into the
// target in the same transaction. It returns the rows inserted or updated.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	temp := tempTableName(cfg.Table)
	create := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{temp}.Sanitize(), sanitizeTable(cfg.Table))
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: stage %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{temp}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: copy into %s", temp)
	}

	tag, err := tx.Exec(ctx, upsertStatement(cfg, temp))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge into %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

// sanitizeTable quotes an optionally schema-qualified table name.
func sanitizeTable(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteEach(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgx.Identifier{c}.Sanitize()
	}
	return out
}
