package pipeline

import (
	"context"
	"fmt"

	"github.com/salescope/salescope/internal/plan"
	"github.com/salescope/salescope/internal/schema"
	"github.com/salescope/salescope/internal/store"
)

// Canned reports behind fixed dashboard endpoints. Each builds the same
// plan the extractor would produce for the equivalent question and runs it
// through the normal compile path.

func (p *Pipeline) MonthlySales(ctx context.Context) (store.Result, error) {
	return p.runFixed(ctx, plan.QueryPlan{
		Intent:  plan.IntentTrend,
		Metrics: []string{"sales"},
		GroupBy: []plan.GroupDimension{{TimeUnit: string(schema.UnitMonth)}},
	})
}

func (p *Pipeline) RegionalPerformance(ctx context.Context) (store.Result, error) {
	return p.runFixed(ctx, plan.QueryPlan{
		Intent:  plan.IntentAggregate,
		Metrics: []string{"sales", "profit"},
		GroupBy: []plan.GroupDimension{{Column: "region"}},
	})
}

func (p *Pipeline) TopProducts(ctx context.Context, limit int) (store.Result, error) {
	if limit <= 0 {
		limit = 5
	}
	return p.runFixed(ctx, plan.QueryPlan{
		Intent:  plan.IntentAggregate,
		Metrics: []string{"sales"},
		GroupBy: []plan.GroupDimension{{Column: "product_name"}},
		Limit:   limit,
	})
}

// DecliningCategoryReport is the tabular form of the decline diagnostic.
func (p *Pipeline) DecliningCategoryReport(ctx context.Context) (store.Result, error) {
	changes, err := p.analyzer.DecliningCategories(ctx, "sales")
	if err != nil {
		return store.Result{}, err
	}
	return changesResult("sales", changes), nil
}

func (p *Pipeline) runFixed(ctx context.Context, qp plan.QueryPlan) (store.Result, error) {
	if err := qp.Normalize(); err != nil {
		return store.Result{}, err
	}
	stmt, _, err := p.compiler.Compile(qp)
	if err != nil {
		return store.Result{}, fmt.Errorf("compile report: %w", err)
	}
	result, err := p.store.Query(ctx, stmt)
	if err != nil {
		return store.Result{}, fmt.Errorf("run report: %w", err)
	}
	return result, nil
}
