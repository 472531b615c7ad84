package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"
)

// OpenDuckDB opens a DuckDB-backed store. DSN may be empty (in-memory) or a
// database file path. When seedGlob matches Parquet files and the table does
// not already exist, a view over read_parquet is created so the dataset is
// queryable without an ingest step.
func OpenDuckDB(ctx context.Context, dsn, table, seedGlob string, maxOpen, maxIdle int) (*SQLStore, error) {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}

	if seedGlob != "" {
		if err := bootstrapFromParquet(ctx, db, table, seedGlob); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return NewSQLStore(db, table, DialectDuckDB)
}

func bootstrapFromParquet(ctx context.Context, db *sql.DB, table, seedGlob string) error {
	if tableExists(ctx, db, table) {
		return nil
	}
	matches, err := filepath.Glob(seedGlob)
	if err != nil {
		return fmt.Errorf("resolve seed glob %q: %w", seedGlob, err)
	}
	if len(matches) == 0 {
		// Nothing to bootstrap from; introspection will fall back to the
		// static schema profile.
		return nil
	}
	viewSQL := fmt.Sprintf(
		`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`,
		quoteIdent(table), quoteStringArray(matches),
	)
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		return fmt.Errorf("create view for table %q: %w", table, err)
	}
	return nil
}

func tableExists(ctx context.Context, db *sql.DB, table string) bool {
	row := db.QueryRowContext(ctx,
		"SELECT count(*) FROM information_schema.tables WHERE table_name = ?", table)
	var count int
	if err := row.Scan(&count); err != nil {
		return false
	}
	return count > 0
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}
