package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/salescope/salescope/internal/observability"
)

// Dialect controls placeholder binding. Statements are compiled with `?`
// placeholders and rebound to `$n` for Postgres.
type Dialect string

const (
	DialectDuckDB   Dialect = "duckdb"
	DialectPostgres Dialect = "postgres"
)

// SQLStore executes statements against any database/sql connection. The
// same implementation backs DuckDB, Postgres (pgx stdlib), and sqlmock in
// tests.
type SQLStore struct {
	db      *sql.DB
	table   string
	dialect Dialect
}

func NewSQLStore(db *sql.DB, table string, dialect Dialect) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db handle is required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("table name is required")
	}
	return &SQLStore{db: db, table: strings.TrimSpace(table), dialect: dialect}, nil
}

func (s *SQLStore) Table() string {
	return s.table
}

func (s *SQLStore) Query(ctx context.Context, stmt Statement) (Result, error) {
	if !isReadOnlySQL(stmt.SQL) {
		return Result{}, fmt.Errorf("statement %q: %w", firstToken(stmt.SQL), ErrSecurityViolation)
	}

	sqlText := stmt.SQL
	if s.dialect == DialectPostgres {
		sqlText = rebindPositional(sqlText)
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, sqlText, stmt.Args...)
	if err != nil {
		return Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}

	result := Result{Columns: columns, Rows: make([]Row, 0)}
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		record := make(Row, len(columns))
		for i, column := range columns {
			record[column] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, record)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	observability.ObserveStoreQueryDuration(time.Since(start))
	return result, nil
}

func (s *SQLStore) Columns(ctx context.Context) ([]ColumnInfo, error) {
	stmtSQL := "SELECT column_name, data_type FROM information_schema.columns WHERE table_name = ? ORDER BY ordinal_position"
	if s.dialect == DialectPostgres {
		stmtSQL = rebindPositional(stmtSQL)
	}
	rows, err := s.db.QueryContext(ctx, stmtSQL, s.table)
	if err != nil {
		return nil, fmt.Errorf("introspect table %q: %w", s.table, err)
	}
	defer func() { _ = rows.Close() }()

	var columns []ColumnInfo
	for rows.Next() {
		var info ColumnInfo
		if err := rows.Scan(&info.Name, &info.Type); err != nil {
			return nil, fmt.Errorf("scan column info: %w", err)
		}
		info.Name = strings.ToLower(strings.TrimSpace(info.Name))
		info.Type = strings.ToUpper(strings.TrimSpace(info.Type))
		columns = append(columns, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column info: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %q has no columns", s.table)
	}
	return columns, nil
}

func (s *SQLStore) DistinctValues(ctx context.Context, column string) ([]string, error) {
	ident, err := safeIdent(column)
	if err != nil {
		return nil, err
	}
	sqlText := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL", ident, quoteIdent(s.table), ident)
	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("distinct values for %q: %w", column, err)
	}
	defer func() { _ = rows.Close() }()

	var values []string
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan distinct value: %w", err)
		}
		if text, ok := normalizeValue(raw).(string); ok && strings.TrimSpace(text) != "" {
			values = append(values, text)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distinct values: %w", err)
	}
	return values, nil
}

func isReadOnlySQL(sqlText string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sqlText))
	return strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with")
}

func firstToken(sqlText string) string {
	fields := strings.Fields(strings.TrimSpace(sqlText))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// rebindPositional converts `?` placeholders to `$1..$n`. Compiled
// statements never contain string literals, so a plain scan is safe.
func rebindPositional(sqlText string) string {
	var b strings.Builder
	b.Grow(len(sqlText) + 8)
	n := 0
	for _, r := range sqlText {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// safeIdent admits only plain snake_case identifiers. Column names come
// from schema introspection, never from user text, but the check keeps the
// invariant local.
func safeIdent(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("identifier is required")
	}
	for _, r := range trimmed {
		isLower := r >= 'a' && r <= 'z'
		isDigit := r >= '0' && r <= '9'
		if !isLower && !isDigit && r != '_' {
			return "", fmt.Errorf("invalid identifier %q", name)
		}
	}
	return quoteIdent(trimmed), nil
}
