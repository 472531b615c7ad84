// Package store defines the tabular sales store capability: execute a
// parameterized SELECT against a named table and return rows as ordered
// mappings, plus the introspection calls the schema profiler and the
// vocabulary loader need.
package store

import (
	"context"
	"errors"
)

// ErrSecurityViolation is returned when a statement that is not a read-only
// SELECT reaches the execution layer. This is fatal to the request.
var ErrSecurityViolation = errors.New("only SELECT statements are allowed")

// Row is a single result record keyed by column name.
type Row map[string]any

// Result carries rows together with the column order of the statement, so
// downstream formatting is deterministic. An empty Rows slice means "no
// matching data" and is not an error.
type Result struct {
	Columns []string
	Rows    []Row
}

type Statement struct {
	SQL  string
	Args []any
}

type ColumnInfo struct {
	Name string
	Type string
}

type Store interface {
	// Query executes a parameterized read-only statement. Implementations
	// must reject anything that is not a SELECT with ErrSecurityViolation.
	Query(ctx context.Context, stmt Statement) (Result, error)

	// Columns lists the declared columns of the configured table.
	Columns(ctx context.Context) ([]ColumnInfo, error)

	// DistinctValues lists the distinct non-empty values of a column.
	DistinctValues(ctx context.Context, column string) ([]string, error)

	// Table returns the configured table name.
	Table() string
}
