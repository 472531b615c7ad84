package summarize

import (
	"strings"
	"testing"

	"github.com/salescope/salescope/internal/store"
)

func TestFormatValueCurrency(t *testing.T) {
	tests := []struct {
		column string
		value  any
		want   string
	}{
		{"sales", 1234.5, "$1,234.50"},
		{"profit", -987.654, "$-987.65"},
		{"total_revenue", 1000000.0, "$1,000,000.00"},
		{"quantity", 42.0, "42"},
		{"discount", 0.25, "0.25"},
		{"region", "West", "West"},
	}
	for _, tt := range tests {
		got := FormatValue(tt.column, tt.value)
		if got != tt.want {
			t.Fatalf("FormatValue(%q, %v) = %q, want %q", tt.column, tt.value, got, tt.want)
		}
	}
}

func TestSummarizeEmptyResult(t *testing.T) {
	got := New(0).Summarize(store.Result{Columns: []string{"sales"}})
	want := "No data found for your query."
	if got != want {
		t.Fatalf("Summarize = %q, want %q", got, want)
	}
}

func TestSummarizeSingleRow(t *testing.T) {
	result := store.Result{
		Columns: []string{"region", "sales"},
		Rows:    []store.Row{{"region": "West", "sales": 1234.5}},
	}
	got := New(0).Summarize(result)
	want := "Region: West, Sales: $1,234.50"
	if got != want {
		t.Fatalf("Summarize = %q, want %q", got, want)
	}
}

func TestSummarizeTable(t *testing.T) {
	result := store.Result{
		Columns: []string{"region", "sales"},
		Rows: []store.Row{
			{"region": "West", "sales": 100.0},
			{"region": "East", "sales": 50.0},
		},
	}
	got := New(0).Summarize(result)
	if !strings.HasPrefix(got, "| Region | Sales |") {
		t.Fatalf("Summarize missing header: %q", got)
	}
	if !strings.Contains(got, "| West | $100.00 |") {
		t.Fatalf("Summarize missing row: %q", got)
	}
}

func TestSummarizeTruncatesAtBudget(t *testing.T) {
	result := store.Result{Columns: []string{"region", "sales"}}
	for i := 0; i < 200; i++ {
		result.Rows = append(result.Rows, store.Row{"region": "Somewhere Far Away", "sales": 123456.78})
	}
	got := New(200).Summarize(result)
	if !strings.HasSuffix(got, "(truncated)") {
		t.Fatalf("Summarize = %q, want truncation marker suffix", got)
	}
	if len(got) > 200+len("\n... (truncated)") {
		t.Fatalf("Summarize length %d exceeds budget", len(got))
	}
}

func TestDescribeQuantiles(t *testing.T) {
	result := store.Result{Columns: []string{"profit"}}
	for _, v := range []float64{1, 2, 3, 4, 5} {
		result.Rows = append(result.Rows, store.Row{"profit": v})
	}
	stats, ok := Describe(result, "profit")
	if !ok {
		t.Fatal("Describe returned ok = false")
	}
	if stats.Count != 5 || stats.Min != 1 || stats.Max != 5 {
		t.Fatalf("stats = %+v, want count 5 min 1 max 5", stats)
	}
	if stats.Median != 3 {
		t.Fatalf("Median = %v, want 3", stats.Median)
	}
	if stats.Q1 != 2 || stats.Q3 != 4 {
		t.Fatalf("Q1/Q3 = %v/%v, want 2/4", stats.Q1, stats.Q3)
	}
	if stats.Mean != 3 {
		t.Fatalf("Mean = %v, want 3", stats.Mean)
	}
}

func TestDescribeGroupedSplitsByGroup(t *testing.T) {
	result := store.Result{Columns: []string{"category", "sales"}}
	for _, v := range []float64{10, 20, 30} {
		result.Rows = append(result.Rows, store.Row{"category": "Furniture", "sales": v})
	}
	for _, v := range []float64{100, 200} {
		result.Rows = append(result.Rows, store.Row{"category": "Technology", "sales": v})
	}

	groups := DescribeGrouped(result, "category", "sales")
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	if groups[0].Group != "Furniture" || groups[1].Group != "Technology" {
		t.Fatalf("group order = %q, %q, want Furniture, Technology", groups[0].Group, groups[1].Group)
	}
	furniture := groups[0].Stats
	if furniture.Count != 3 || furniture.Min != 10 || furniture.Median != 20 || furniture.Max != 30 {
		t.Fatalf("furniture stats = %+v, want count 3 min 10 median 20 max 30", furniture)
	}
	technology := groups[1].Stats
	if technology.Count != 2 || technology.Mean != 150 {
		t.Fatalf("technology stats = %+v, want count 2 mean 150", technology)
	}
}

func TestSummarizeGroupedDistribution(t *testing.T) {
	groups := []GroupDistribution{
		{Group: "Furniture", Stats: Distribution{Count: 3, Min: 10, Q1: 15, Median: 20, Q3: 25, Max: 30, Mean: 20}},
		{Group: "Technology", Stats: Distribution{Count: 2, Min: 100, Q1: 125, Median: 150, Q3: 175, Max: 200, Mean: 150}},
	}
	got := New(0).SummarizeGroupedDistribution("sales", "category", groups)
	if !strings.HasPrefix(got, "Sales distribution by Category:") {
		t.Fatalf("missing header: %q", got)
	}
	if !strings.Contains(got, "- Furniture (3 records): Min $10.00, Q1 $15.00, Median $20.00, Q3 $25.00, Max $30.00, Mean $20.00") {
		t.Fatalf("missing furniture line: %q", got)
	}
	if !strings.Contains(got, "- Technology (2 records)") {
		t.Fatalf("missing technology line: %q", got)
	}
}
