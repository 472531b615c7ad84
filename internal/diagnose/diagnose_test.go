package diagnose

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/salescope/salescope/internal/schema"
	"github.com/salescope/salescope/internal/store"
)

// fakeStore answers canned results keyed by a substring of the statement.
type fakeStore struct {
	monthly  store.Result
	byRegion store.Result
	bySubCat store.Result
}

func (f *fakeStore) Query(_ context.Context, stmt store.Statement) (store.Result, error) {
	switch {
	case strings.Contains(stmt.SQL, "SELECT region"):
		return f.byRegion, nil
	case strings.Contains(stmt.SQL, "SELECT sub_category"):
		return f.bySubCat, nil
	default:
		return f.monthly, nil
	}
}

func (f *fakeStore) Columns(_ context.Context) ([]store.ColumnInfo, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) DistinctValues(_ context.Context, _ string) ([]string, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) Table() string { return "sales_data" }

func monthRow(dim, dimValue, month string, sales float64) store.Row {
	row := store.Row{"month": month, "sales": sales}
	if dim != "" {
		row[dim] = dimValue
	}
	return row
}

func declineStore() *fakeStore {
	return &fakeStore{
		monthly: store.Result{
			Columns: []string{"month", "sales"},
			Rows: []store.Row{
				monthRow("", "", "2017-10", 900.0),
				monthRow("", "", "2017-11", 1000.0),
				monthRow("", "", "2017-12", 600.0),
			},
		},
		byRegion: store.Result{
			Columns: []string{"region", "month", "sales"},
			Rows: []store.Row{
				monthRow("region", "West", "2017-11", 500.0),
				monthRow("region", "West", "2017-12", 200.0),
				monthRow("region", "East", "2017-11", 500.0),
				monthRow("region", "East", "2017-12", 400.0),
			},
		},
		bySubCat: store.Result{
			Columns: []string{"sub_category", "month", "sales"},
			Rows: []store.Row{
				monthRow("sub_category", "Phones", "2017-11", 700.0),
				monthRow("sub_category", "Phones", "2017-12", 300.0),
				monthRow("sub_category", "Chairs", "2017-11", 300.0),
				monthRow("sub_category", "Chairs", "2017-12", 300.0),
			},
		},
	}
}

func TestRootCauseDecline(t *testing.T) {
	analyzer := NewAnalyzer(declineStore(), schema.DefaultProfile())

	report, err := analyzer.RootCause(context.Background(), "sales")
	if err != nil {
		t.Fatalf("RootCause error: %v", err)
	}
	if report.PreviousMonth != "2017-11" || report.CurrentMonth != "2017-12" {
		t.Fatalf("months = %s -> %s, want 2017-11 -> 2017-12", report.PreviousMonth, report.CurrentMonth)
	}
	if report.Delta != -400 {
		t.Fatalf("Delta = %v, want -400", report.Delta)
	}
	if report.ChangePct != -40 {
		t.Fatalf("ChangePct = %v, want -40", report.ChangePct)
	}

	// Only members moving in the overall direction qualify as drivers.
	for _, driver := range report.Drivers {
		if driver.Delta >= 0 {
			t.Fatalf("driver %+v moves against the decline", driver)
		}
	}
	if len(report.Drivers) == 0 || report.Drivers[0].Member != "Phones" && report.Drivers[0].Member != "West" {
		t.Fatalf("Drivers = %+v, want West and Phones ranked", report.Drivers)
	}

	narrative := report.Narrative()
	if !strings.Contains(narrative, "fell 40.0%") {
		t.Fatalf("Narrative = %q, want fell 40.0%%", narrative)
	}
	if !strings.Contains(narrative, "Phones") {
		t.Fatalf("Narrative = %q, want Phones driver", narrative)
	}
}

func TestRootCauseInsufficientHistory(t *testing.T) {
	st := &fakeStore{
		monthly: store.Result{
			Columns: []string{"month", "sales"},
			Rows:    []store.Row{monthRow("", "", "2017-12", 100.0)},
		},
	}
	analyzer := NewAnalyzer(st, schema.DefaultProfile())

	_, err := analyzer.RootCause(context.Background(), "sales")
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("RootCause error = %v, want ErrInsufficientHistory", err)
	}
}

func TestRootCauseRejectsUnknownMetric(t *testing.T) {
	analyzer := NewAnalyzer(declineStore(), schema.DefaultProfile())
	if _, err := analyzer.RootCause(context.Background(), "password"); err == nil {
		t.Fatal("RootCause accepted unknown metric")
	}
}

func TestDecliningCategories(t *testing.T) {
	monthly := store.Result{
		Columns: []string{"month", "sales"},
		Rows: []store.Row{
			monthRow("", "", "2017-11", 1000.0),
			monthRow("", "", "2017-12", 600.0),
		},
	}
	categoryResult := store.Result{
		Columns: []string{"category", "month", "sales"},
		Rows: []store.Row{
			{"category": "Technology", "month": "2017-11", "sales": 700.0},
			{"category": "Technology", "month": "2017-12", "sales": 300.0},
			{"category": "Furniture", "month": "2017-11", "sales": 300.0},
			{"category": "Furniture", "month": "2017-12", "sales": 350.0},
		},
	}
	categoryStore := &categorizedStore{monthly: monthly, categories: categoryResult}
	analyzer := NewAnalyzer(categoryStore, schema.DefaultProfile())

	changes, err := analyzer.DecliningCategories(context.Background(), "sales")
	if err != nil {
		t.Fatalf("DecliningCategories error: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("changes = %+v, want only Technology", changes)
	}
	if changes[0].Category != "Technology" || changes[0].Delta != -400 {
		t.Fatalf("changes[0] = %+v, want Technology -400", changes[0])
	}
}

type categorizedStore struct {
	monthly    store.Result
	categories store.Result
}

func (c *categorizedStore) Query(_ context.Context, stmt store.Statement) (store.Result, error) {
	if strings.Contains(stmt.SQL, "SELECT category") {
		return c.categories, nil
	}
	return c.monthly, nil
}

func (c *categorizedStore) Columns(_ context.Context) ([]store.ColumnInfo, error) {
	return nil, errors.New("not implemented")
}

func (c *categorizedStore) DistinctValues(_ context.Context, _ string) ([]string, error) {
	return nil, errors.New("not implemented")
}

func (c *categorizedStore) Table() string { return "sales_data" }
