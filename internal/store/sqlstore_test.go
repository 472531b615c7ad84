package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T, dialect Dialect) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	st, err := NewSQLStore(db, "sales_data", dialect)
	if err != nil {
		t.Fatalf("NewSQLStore error: %v", err)
	}
	return st, mock
}

func TestQueryRejectsNonReadOnlySQL(t *testing.T) {
	st, _ := newMockStore(t, DialectDuckDB)

	tests := []string{
		"DELETE FROM sales_data",
		"DROP TABLE sales_data",
		"UPDATE sales_data SET sales = 0",
		"INSERT INTO sales_data VALUES (1)",
	}
	for _, sqlText := range tests {
		_, err := st.Query(context.Background(), Statement{SQL: sqlText})
		if !errors.Is(err, ErrSecurityViolation) {
			t.Fatalf("Query(%q) error = %v, want ErrSecurityViolation", sqlText, err)
		}
	}
}

func TestQueryScansRows(t *testing.T) {
	st, mock := newMockStore(t, DialectDuckDB)

	mock.ExpectQuery("SELECT region AS region, SUM(CAST(sales AS REAL)) AS sales FROM sales_data GROUP BY region ORDER BY sales DESC LIMIT 100").
		WillReturnRows(sqlmock.NewRows([]string{"region", "sales"}).
			AddRow("West", 100.5).
			AddRow([]byte("East"), 50.0))

	result, err := st.Query(context.Background(), Statement{
		SQL: "SELECT region AS region, SUM(CAST(sales AS REAL)) AS sales FROM sales_data GROUP BY region ORDER BY sales DESC LIMIT 100",
	})
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(result.Rows))
	}
	if result.Rows[0]["region"] != "West" {
		t.Fatalf("rows[0].region = %v, want West", result.Rows[0]["region"])
	}
	// []byte cells are normalized to string.
	if result.Rows[1]["region"] != "East" {
		t.Fatalf("rows[1].region = %v, want East", result.Rows[1]["region"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestQueryRebindsForPostgres(t *testing.T) {
	st, mock := newMockStore(t, DialectPostgres)

	mock.ExpectQuery("SELECT * FROM sales_data WHERE LOWER(region) = $1 AND sales > $2 LIMIT 10").
		WithArgs("west", 100).
		WillReturnRows(sqlmock.NewRows([]string{"region"}))

	_, err := st.Query(context.Background(), Statement{
		SQL:  "SELECT * FROM sales_data WHERE LOWER(region) = ? AND sales > ? LIMIT 10",
		Args: []any{"west", 100},
	})
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDistinctValuesRejectsUnsafeIdentifiers(t *testing.T) {
	st, _ := newMockStore(t, DialectDuckDB)

	for _, column := range []string{"region; DROP TABLE x", `a"b`, "Region Name", ""} {
		if _, err := st.DistinctValues(context.Background(), column); err == nil {
			t.Fatalf("DistinctValues(%q) accepted unsafe identifier", column)
		}
	}
}

func TestDistinctValuesFiltersEmptyStrings(t *testing.T) {
	st, mock := newMockStore(t, DialectDuckDB)

	mock.ExpectQuery(`SELECT DISTINCT "category" FROM "sales_data" WHERE "category" IS NOT NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"category"}).
			AddRow("Technology").
			AddRow("  ").
			AddRow("Furniture"))

	values, err := st.DistinctValues(context.Background(), "category")
	if err != nil {
		t.Fatalf("DistinctValues error: %v", err)
	}
	if len(values) != 2 || values[0] != "Technology" || values[1] != "Furniture" {
		t.Fatalf("values = %v, want [Technology Furniture]", values)
	}
}

func TestRebindPositional(t *testing.T) {
	got := rebindPositional("SELECT * FROM t WHERE a = ? AND b IN (?, ?, ?)")
	want := "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3, $4)"
	if got != want {
		t.Fatalf("rebindPositional = %q, want %q", got, want)
	}
}

func TestColumnsNormalizesNamesAndTypes(t *testing.T) {
	st, mock := newMockStore(t, DialectDuckDB)

	mock.ExpectQuery("SELECT column_name, data_type FROM information_schema.columns WHERE table_name = ? ORDER BY ordinal_position").
		WithArgs("sales_data").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).
			AddRow(" Region ", "varchar").
			AddRow("sales", "double"))

	columns, err := st.Columns(context.Background())
	if err != nil {
		t.Fatalf("Columns error: %v", err)
	}
	if columns[0].Name != "region" || columns[0].Type != "VARCHAR" {
		t.Fatalf("columns[0] = %+v, want region/VARCHAR", columns[0])
	}
	if columns[1].Type != "DOUBLE" {
		t.Fatalf("columns[1] = %+v, want DOUBLE", columns[1])
	}
}
