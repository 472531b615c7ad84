package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/salescope/salescope/internal/diagnose"
	"github.com/salescope/salescope/internal/plan"
	"github.com/salescope/salescope/internal/resolve"
	"github.com/salescope/salescope/internal/schema"
	"github.com/salescope/salescope/internal/sqlgen"
	"github.com/salescope/salescope/internal/store"
	"github.com/salescope/salescope/internal/summarize"
	"github.com/salescope/salescope/internal/vocab"
)

// scriptedStore answers canned results keyed by statement shape and
// records every executed statement.
type scriptedStore struct {
	executed []store.Statement
}

func (s *scriptedStore) Query(_ context.Context, stmt store.Statement) (store.Result, error) {
	s.executed = append(s.executed, stmt)
	switch {
	case strings.Contains(stmt.SQL, "GROUP BY region"):
		return store.Result{
			Columns: []string{"region", "sales"},
			Rows: []store.Row{
				{"region": "West", "sales": 300.0},
				{"region": "East", "sales": 200.0},
			},
		}, nil
	case strings.Contains(stmt.SQL, "category AS category, CAST(sales"):
		return store.Result{
			Columns: []string{"category", "sales"},
			Rows: []store.Row{
				{"category": "Furniture", "sales": 10.0},
				{"category": "Furniture", "sales": 30.0},
				{"category": "Technology", "sales": 100.0},
				{"category": "Technology", "sales": 200.0},
			},
		}, nil
	case strings.Contains(stmt.SQL, "SELECT category"):
		return store.Result{
			Columns: []string{"category", "month", "sales"},
			Rows: []store.Row{
				{"category": "Technology", "month": "2017-11", "sales": 700.0},
				{"category": "Technology", "month": "2017-12", "sales": 300.0},
			},
		}, nil
	case strings.Contains(stmt.SQL, "GROUP BY month"):
		return store.Result{
			Columns: []string{"month", "sales"},
			Rows: []store.Row{
				{"month": "2017-11", "sales": 1000.0},
				{"month": "2017-12", "sales": 600.0},
			},
		}, nil
	case strings.HasPrefix(stmt.SQL, "SELECT * "):
		return store.Result{
			Columns: []string{"order_id", "region", "sales"},
			Rows: []store.Row{
				{"order_id": "ORD-000001", "region": "West", "sales": 99.5},
			},
		}, nil
	default:
		return store.Result{Columns: []string{"sales"}, Rows: []store.Row{{"sales": 500.0}}}, nil
	}
}

func (s *scriptedStore) Columns(_ context.Context) ([]store.ColumnInfo, error) {
	return nil, errors.New("not implemented")
}

func (s *scriptedStore) DistinctValues(_ context.Context, _ string) ([]string, error) {
	return nil, errors.New("not implemented")
}

func (s *scriptedStore) Table() string { return "sales_data" }

func newTestPipeline(t *testing.T) (*Pipeline, *scriptedStore) {
	t.Helper()
	profile := schema.DefaultProfile()

	vocabService := vocab.NewService()
	vocabService.Replace(vocab.BuildSnapshot([]string{"Technology", "Furniture", "Office Supplies"}))
	resolver := resolve.New(vocabService, nil)
	extractor := plan.NewExtractor(profile, vocabService, resolver, nil, 5)

	st := &scriptedStore{}
	compiler := sqlgen.NewCompiler(st.Table(), profile, sqlgen.Limits{})
	summarizer := summarize.New(0)
	analyzer := diagnose.NewAnalyzer(st, profile)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(extractor, compiler, st, summarizer, analyzer, nil, logger), st
}

func TestHandleGreetingSkipsStore(t *testing.T) {
	p, st := newTestPipeline(t)

	response, err := p.Handle(context.Background(), "hello there", nil)
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if response.Intent != plan.IntentGreeting {
		t.Fatalf("Intent = %q, want GREETING", response.Intent)
	}
	if len(st.executed) != 0 {
		t.Fatalf("greeting executed %d statements, want 0", len(st.executed))
	}
}

func TestHandleUnknownAsksForClarification(t *testing.T) {
	p, st := newTestPipeline(t)

	response, err := p.Handle(context.Background(), "qwerty asdf", nil)
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if response.Intent != plan.IntentUnknown {
		t.Fatalf("Intent = %q, want UNKNOWN", response.Intent)
	}
	if !strings.Contains(response.Answer, "not sure") {
		t.Fatalf("Answer = %q, want clarification", response.Answer)
	}
	if len(st.executed) != 0 {
		t.Fatalf("clarification executed %d statements, want 0", len(st.executed))
	}
}

func TestHandleAggregateBuildsChartWithoutRawRows(t *testing.T) {
	p, _ := newTestPipeline(t)

	response, err := p.Handle(context.Background(), "total sales by region", nil)
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if !strings.Contains(response.Answer, "West") {
		t.Fatalf("Answer = %q, want table with West", response.Answer)
	}
	if response.Chart == nil || response.Chart.Type != "bar" {
		t.Fatalf("Chart = %+v, want bar chart", response.Chart)
	}
	if response.Rows != nil {
		t.Fatalf("Rows = %v, want nil outside explicit list requests", response.Rows)
	}
}

func TestHandleListReturnsRawRows(t *testing.T) {
	p, _ := newTestPipeline(t)

	response, err := p.Handle(context.Background(), "list orders in the west", nil)
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if response.Intent != plan.IntentList {
		t.Fatalf("Intent = %q, want LIST", response.Intent)
	}
	if len(response.Rows) != 1 {
		t.Fatalf("Rows = %v, want the raw record", response.Rows)
	}
}

func TestHandleTrendNarrative(t *testing.T) {
	p, _ := newTestPipeline(t)

	response, err := p.Handle(context.Background(), "monthly sales trend", nil)
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if !strings.Contains(response.Answer, "downward") {
		t.Fatalf("Answer = %q, want downward narrative", response.Answer)
	}
	if response.Chart == nil || response.Chart.Type != "line" {
		t.Fatalf("Chart = %+v, want line chart", response.Chart)
	}
}

func TestHandleBoxPlotSummarizesPerGroup(t *testing.T) {
	p, st := newTestPipeline(t)

	response, err := p.Handle(context.Background(), "sales by category as a box plot", nil)
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if len(st.executed) != 1 || !strings.Contains(st.executed[0].SQL, "category AS category") {
		t.Fatalf("executed = %v, want grouped distribution fetch", st.executed)
	}
	if !strings.Contains(response.Answer, "Sales distribution by Category:") {
		t.Fatalf("Answer = %q, want grouped distribution header", response.Answer)
	}
	if !strings.Contains(response.Answer, "- Furniture (2 records)") ||
		!strings.Contains(response.Answer, "- Technology (2 records)") {
		t.Fatalf("Answer = %q, want per-group statistics", response.Answer)
	}
	if !strings.Contains(response.Answer, "Median $150.00") {
		t.Fatalf("Answer = %q, want Technology median $150.00", response.Answer)
	}
	if response.Chart == nil || response.Chart.Type != "box_plot" {
		t.Fatalf("Chart = %+v, want box_plot chart", response.Chart)
	}
}

func TestHandleDeclineDiagnostic(t *testing.T) {
	p, _ := newTestPipeline(t)

	response, err := p.Handle(context.Background(), "identify declining categories", nil)
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if !strings.Contains(response.Answer, "Technology") {
		t.Fatalf("Answer = %q, want Technology decline", response.Answer)
	}
	if response.Chart == nil || response.Chart.Type != "decline" {
		t.Fatalf("Chart = %+v, want decline chart", response.Chart)
	}
}

func TestHandleRootCauseDiagnostic(t *testing.T) {
	p, _ := newTestPipeline(t)

	response, err := p.Handle(context.Background(), "why did sales drop", nil)
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if !strings.Contains(response.Answer, "fell 40.0%") {
		t.Fatalf("Answer = %q, want fell 40.0%%", response.Answer)
	}
}

func TestHandleDocumentsWithoutIndex(t *testing.T) {
	p, st := newTestPipeline(t)

	response, err := p.Handle(context.Background(), "what is the refund policy", nil)
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if response.Intent != plan.IntentDocument {
		t.Fatalf("Intent = %q, want DOCUMENT", response.Intent)
	}
	if !strings.Contains(response.Answer, "No reference documents") {
		t.Fatalf("Answer = %q, want no-documents message", response.Answer)
	}
	if len(st.executed) != 0 {
		t.Fatalf("documents executed %d statements, want 0", len(st.executed))
	}
}

func TestMonthlySalesReport(t *testing.T) {
	p, _ := newTestPipeline(t)

	result, err := p.MonthlySales(context.Background())
	if err != nil {
		t.Fatalf("MonthlySales error: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(result.Rows))
	}
}
