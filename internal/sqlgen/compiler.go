// Package sqlgen compiles query plans into parameterized SQL statements.
// User-derived values travel exclusively through bind arguments; the only
// strings interpolated into SQL text are identifiers validated against the
// introspected schema profile.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/salescope/salescope/internal/observability"
	"github.com/salescope/salescope/internal/plan"
	"github.com/salescope/salescope/internal/schema"
	"github.com/salescope/salescope/internal/store"
)

// Branch names the compilation strategy a plan selected.
type Branch string

const (
	BranchAggregate    Branch = "aggregate"
	BranchTrend        Branch = "trend"
	BranchList         Branch = "list"
	BranchDistribution Branch = "distribution"
	BranchRelationship Branch = "relationship"
)

// Limits caps result sizes per branch.
type Limits struct {
	DefaultRowLimit    int
	MaxGroups          int
	DistributionRowCap int
}

type Compiler struct {
	table   string
	profile schema.Profile
	limits  Limits
}

func NewCompiler(table string, profile schema.Profile, limits Limits) *Compiler {
	if limits.DefaultRowLimit <= 0 {
		limits.DefaultRowLimit = 50
	}
	if limits.MaxGroups <= 0 {
		limits.MaxGroups = 100
	}
	if limits.DistributionRowCap <= 0 {
		limits.DistributionRowCap = 5000
	}
	return &Compiler{table: table, profile: profile, limits: limits}
}

// Compile turns a plan into one statement. Diagnostic plans are handled by
// the diagnose package and are rejected here.
func (c *Compiler) Compile(p plan.QueryPlan) (store.Statement, Branch, error) {
	branch := c.selectBranch(p)

	var stmt store.Statement
	var err error
	switch branch {
	case BranchDistribution:
		stmt, err = c.compileDistribution(p)
	case BranchRelationship:
		stmt, err = c.compileRelationship(p)
	case BranchTrend:
		stmt, err = c.compileTrend(p)
	case BranchList:
		stmt, err = c.compileList(p)
	default:
		stmt, err = c.compileAggregate(p)
	}
	if err != nil {
		return store.Statement{}, branch, err
	}
	observability.IncrementCompiledStatement(string(branch))
	return stmt, branch, nil
}

func (c *Compiler) selectBranch(p plan.QueryPlan) Branch {
	switch p.Visualization {
	case plan.VizBoxPlot, plan.VizViolin:
		if len(p.Metrics) > 0 {
			return BranchDistribution
		}
	case plan.VizScatter, plan.VizBubble:
		if len(p.Metrics) >= 2 || len(c.profile.Metrics) >= 2 {
			return BranchRelationship
		}
	}
	switch p.Intent {
	case plan.IntentTrend:
		return BranchTrend
	case plan.IntentList:
		return BranchList
	default:
		return BranchAggregate
	}
}

// compileAggregate builds the grouped-sum statement, or a single-row total
// when the plan has no grouping dimension.
func (c *Compiler) compileAggregate(p plan.QueryPlan) (store.Statement, error) {
	metrics, err := c.validMetrics(p.Metrics)
	if err != nil {
		return store.Statement{}, err
	}
	where, args, err := c.buildWhere(p.Filters)
	if err != nil {
		return store.Statement{}, err
	}

	var selects, groups []string
	for _, dimension := range p.GroupBy {
		expr, name, err := c.groupExpression(dimension)
		if err != nil {
			return store.Statement{}, err
		}
		selects = append(selects, fmt.Sprintf("%s AS %s", expr, name))
		groups = append(groups, name)
	}
	for _, metric := range metrics {
		selects = append(selects, sumExpression(metric))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(selects, ", "), c.table)
	sb.WriteString(where)
	if len(groups) > 0 {
		fmt.Fprintf(&sb, " GROUP BY %s", strings.Join(groups, ", "))
		fmt.Fprintf(&sb, " ORDER BY %s DESC", metrics[0])
		fmt.Fprintf(&sb, " LIMIT %d", c.rowLimit(p.Limit, c.limits.MaxGroups))
	}
	return store.Statement{SQL: sb.String(), Args: args}, nil
}

// compileTrend groups by calendar month and orders chronologically.
func (c *Compiler) compileTrend(p plan.QueryPlan) (store.Statement, error) {
	metrics, err := c.validMetrics(p.Metrics)
	if err != nil {
		return store.Statement{}, err
	}
	where, args, err := c.buildWhere(p.Filters)
	if err != nil {
		return store.Statement{}, err
	}

	unit := schema.UnitMonth
	for _, dimension := range p.GroupBy {
		if dimension.IsTime() {
			unit = schema.TimeUnit(dimension.TimeUnit)
			break
		}
	}
	expr, name := c.timeExpression(unit)

	selects := []string{fmt.Sprintf("%s AS %s", expr, name)}
	for _, metric := range metrics {
		selects = append(selects, sumExpression(metric))
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s GROUP BY %s ORDER BY %s ASC",
		strings.Join(selects, ", "), c.table, where, name, name)
	return store.Statement{SQL: sql, Args: args}, nil
}

func (c *Compiler) compileList(p plan.QueryPlan) (store.Statement, error) {
	where, args, err := c.buildWhere(p.Filters)
	if err != nil {
		return store.Statement{}, err
	}
	sql := fmt.Sprintf("SELECT * FROM %s%s LIMIT %d",
		c.table, where, c.rowLimit(p.Limit, c.limits.DefaultRowLimit))
	return store.Statement{SQL: sql, Args: args}, nil
}

// compileDistribution fetches raw metric values, capped, alongside the
// first grouping dimension when the plan has one; the five-number summary
// is computed in-process from the rows, per group.
func (c *Compiler) compileDistribution(p plan.QueryPlan) (store.Statement, error) {
	metrics, err := c.validMetrics(p.Metrics)
	if err != nil {
		return store.Statement{}, err
	}
	where, args, err := c.buildWhere(p.Filters)
	if err != nil {
		return store.Statement{}, err
	}
	metric := metrics[0]

	var selects []string
	if len(p.GroupBy) > 0 {
		expr, name, err := c.groupExpression(p.GroupBy[0])
		if err != nil {
			return store.Statement{}, err
		}
		selects = append(selects, fmt.Sprintf("%s AS %s", expr, name))
	}
	selects = append(selects, fmt.Sprintf("CAST(%s AS REAL) AS %s", metric, metric))

	sql := fmt.Sprintf("SELECT %s FROM %s%s LIMIT %d",
		strings.Join(selects, ", "), c.table, where, c.limits.DistributionRowCap)
	return store.Statement{SQL: sql, Args: args}, nil
}

// compileRelationship pairs two metrics per group for scatter and bubble
// charts. When the plan names fewer than two metrics the profile supplies
// the rest.
func (c *Compiler) compileRelationship(p plan.QueryPlan) (store.Statement, error) {
	metrics, err := c.validMetrics(p.Metrics)
	if err != nil {
		return store.Statement{}, err
	}
	for _, candidate := range c.profile.Metrics {
		if len(metrics) >= 2 {
			break
		}
		if !containsFold(metrics, candidate) {
			metrics = append(metrics, strings.ToLower(candidate))
		}
	}
	if len(metrics) < 2 {
		return store.Statement{}, fmt.Errorf("relationship plot needs two metrics, have %d", len(metrics))
	}

	where, args, err := c.buildWhere(p.Filters)
	if err != nil {
		return store.Statement{}, err
	}

	dimension := "sub_category"
	if len(p.GroupBy) > 0 && !p.GroupBy[0].IsTime() {
		dimension = p.GroupBy[0].Column
	}
	if !c.profile.IsGroupable(dimension) {
		return store.Statement{}, fmt.Errorf("unknown grouping column %q", dimension)
	}

	selects := []string{dimension}
	for _, metric := range metrics {
		selects = append(selects, sumExpression(metric))
	}
	sql := fmt.Sprintf("SELECT %s FROM %s%s GROUP BY %s LIMIT %d",
		strings.Join(selects, ", "), c.table, where, dimension, c.limits.MaxGroups)
	return store.Statement{SQL: sql, Args: args}, nil
}

// buildWhere renders the shared filter clause. String comparisons lowercase
// both sides so stored values match regardless of casing.
func (c *Compiler) buildWhere(f plan.Filters) (string, []any, error) {
	var conditions []string
	var args []any

	if f.Region != "" {
		if !c.profile.IsGroupable("region") {
			return "", nil, fmt.Errorf("region filter set but no region column")
		}
		conditions = append(conditions, "LOWER(region) = ?")
		args = append(args, strings.ToLower(f.Region))
	}
	if len(f.Categories) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(f.Categories)), ", ")
		lowered := make([]any, 0, len(f.Categories))
		for _, category := range f.Categories {
			lowered = append(lowered, strings.ToLower(category))
		}
		// Resolved entities can name either level of the product hierarchy,
		// so the clause matches category or sub_category.
		if c.profile.IsGroupable("sub_category") {
			conditions = append(conditions, fmt.Sprintf("(LOWER(category) IN (%s) OR LOWER(sub_category) IN (%s))", placeholders, placeholders))
			args = append(args, lowered...)
			args = append(args, lowered...)
		} else {
			conditions = append(conditions, fmt.Sprintf("LOWER(category) IN (%s)", placeholders))
			args = append(args, lowered...)
		}
	}
	dateColumn := c.profile.PrimaryDate()
	if f.Year != 0 {
		conditions = append(conditions, fmt.Sprintf("substr(CAST(%s AS VARCHAR), 1, 4) = ?", dateColumn))
		args = append(args, fmt.Sprintf("%04d", f.Year))
	}
	if len(f.QuarterMonths) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(f.QuarterMonths)), ", ")
		conditions = append(conditions, fmt.Sprintf("CAST(substr(CAST(%s AS VARCHAR), 6, 2) AS INTEGER) IN (%s)", dateColumn, placeholders))
		for _, month := range f.QuarterMonths {
			args = append(args, month)
		}
	}

	if len(conditions) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args, nil
}

// groupExpression renders one grouping dimension as (expression, alias).
func (c *Compiler) groupExpression(dimension plan.GroupDimension) (string, string, error) {
	if dimension.IsTime() {
		expr, name := c.timeExpression(schema.TimeUnit(dimension.TimeUnit))
		return expr, name, nil
	}
	column := strings.ToLower(dimension.Column)
	if !c.profile.IsGroupable(column) {
		return "", "", fmt.Errorf("unknown grouping column %q", dimension.Column)
	}
	return column, column, nil
}

// timeExpression derives the calendar bucket from the primary date column.
// The substr form works identically on DuckDB and Postgres for DATE and
// ISO-formatted text columns.
func (c *Compiler) timeExpression(unit schema.TimeUnit) (string, string) {
	date := c.profile.PrimaryDate()
	switch unit {
	case schema.UnitYear:
		return fmt.Sprintf("substr(CAST(%s AS VARCHAR), 1, 4)", date), "year"
	case schema.UnitQuarter:
		return fmt.Sprintf(
			"substr(CAST(%s AS VARCHAR), 1, 4) || '-Q' || CAST((CAST(substr(CAST(%s AS VARCHAR), 6, 2) AS INTEGER) + 2) / 3 AS VARCHAR)",
			date, date), "quarter"
	default:
		return fmt.Sprintf("substr(CAST(%s AS VARCHAR), 1, 7)", date), "month"
	}
}

func (c *Compiler) validMetrics(metrics []string) ([]string, error) {
	if len(metrics) == 0 {
		return nil, fmt.Errorf("plan has no metrics")
	}
	out := make([]string, 0, len(metrics))
	for _, metric := range metrics {
		lowered := strings.ToLower(metric)
		if !c.profile.IsMetric(lowered) {
			return nil, fmt.Errorf("unknown metric column %q", metric)
		}
		out = append(out, lowered)
	}
	return out, nil
}

func (c *Compiler) rowLimit(requested, cap int) int {
	if requested > 0 && requested < cap {
		return requested
	}
	return cap
}

// sumExpression casts through REAL so text-typed numeric columns from CSV
// imports still aggregate.
func sumExpression(metric string) string {
	return fmt.Sprintf("SUM(CAST(%s AS REAL)) AS %s", metric, metric)
}

func containsFold(values []string, target string) bool {
	for _, value := range values {
		if strings.EqualFold(value, target) {
			return true
		}
	}
	return false
}
