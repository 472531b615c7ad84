// Package plan turns free-text analytics questions into structured query
// plans: a coarse intent plus the filters, metrics, grouping dimensions,
// row limit, and chart shape the query compiler needs.
package plan

import "fmt"

type Intent string

const (
	IntentAggregate  Intent = "AGGREGATE"
	IntentTrend      Intent = "TREND"
	IntentList       Intent = "LIST"
	IntentDiagnostic Intent = "DIAGNOSTIC"
	IntentGreeting   Intent = "GREETING"
	IntentDocument   Intent = "DOCUMENT"
	IntentUnknown    Intent = "UNKNOWN"
)

// RequiresAggregation reports whether the intent compiles to an aggregating
// statement and therefore must carry at least one metric.
func (i Intent) RequiresAggregation() bool {
	switch i {
	case IntentAggregate, IntentTrend, IntentList, IntentDiagnostic:
		return true
	default:
		return false
	}
}

type Visualization string

const (
	VizBar      Visualization = "bar"
	VizLine     Visualization = "line"
	VizPie      Visualization = "pie"
	VizDonut    Visualization = "donut"
	VizScatter  Visualization = "scatter"
	VizBubble   Visualization = "bubble"
	VizBoxPlot  Visualization = "box_plot"
	VizViolin   Visualization = "violin"
	VizHeatmap  Visualization = "heatmap"
	VizTreemap  Visualization = "treemap"
	VizStacked  Visualization = "stacked"
	VizLollipop Visualization = "lollipop"
	VizArea     Visualization = "area"
	VizLag      Visualization = "lag"
	VizTable    Visualization = "table"
	VizDecline  Visualization = "decline"
	VizRCA      Visualization = "rca"
	VizNone     Visualization = ""
)

// AnalysisMode distinguishes the two diagnostic flows.
type AnalysisMode string

const (
	ModeNone      AnalysisMode = ""
	ModeRootCause AnalysisMode = "root_cause"
	ModeDecline   AnalysisMode = "decline"
)

// Filters holds the recognized filter slots. Zero values mean "not set".
type Filters struct {
	Region        string
	Categories    []string
	Year          int
	QuarterMonths []int
	AnalysisMode  AnalysisMode
}

func (f Filters) Empty() bool {
	return f.Region == "" && len(f.Categories) == 0 && f.Year == 0 &&
		len(f.QuarterMonths) == 0 && f.AnalysisMode == ModeNone
}

// GroupDimension is either a raw groupable column or a derived time unit
// computed from a date column.
type GroupDimension struct {
	Column   string
	TimeUnit string
}

func (g GroupDimension) IsTime() bool {
	return g.TimeUnit != ""
}

func (g GroupDimension) Name() string {
	if g.IsTime() {
		return g.TimeUnit
	}
	return g.Column
}

// QueryPlan is the structured plan produced by extraction and consumed by
// the compiler. Created fresh for every turn; context recovery may merge
// slots from a prior turn's plan.
type QueryPlan struct {
	Intent         Intent
	Filters        Filters
	Metrics        []string
	GroupBy        []GroupDimension
	Limit          int
	Visualization  Visualization
	SanitizedQuery string
}

// Normalize enforces the plan invariants: aggregating intents carry at
// least one metric, and quarter filters are exactly three month numbers in
// range 1..12. Violations of the quarter invariant are construction bugs,
// not user errors.
func (p *QueryPlan) Normalize() error {
	if p.Intent == "" {
		p.Intent = IntentUnknown
	}
	if p.Intent.RequiresAggregation() && len(p.Metrics) == 0 {
		p.Metrics = []string{"sales"}
	}
	if months := p.Filters.QuarterMonths; len(months) > 0 {
		if len(months) != 3 {
			return fmt.Errorf("quarter filter must have exactly 3 months, got %d", len(months))
		}
		for _, month := range months {
			if month < 1 || month > 12 {
				return fmt.Errorf("quarter month %d out of range", month)
			}
		}
	}
	if p.Limit < 0 {
		p.Limit = 0
	}
	return nil
}
