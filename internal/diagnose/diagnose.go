// Package diagnose answers "why did X drop" and "which categories are
// declining" by comparing the two most recent months of data and ranking
// the dimension members that moved the most in the same direction.
package diagnose

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/salescope/salescope/internal/schema"
	"github.com/salescope/salescope/internal/store"
	"github.com/salescope/salescope/internal/summarize"
)

// ErrInsufficientHistory is returned when fewer than two months of data
// exist, so no month-over-month comparison is possible.
var ErrInsufficientHistory = errors.New("diagnose: fewer than two months of data")

// driverDimensions are the dimensions drivers are ranked across, in report
// order. Dimensions absent from the schema profile are skipped.
var driverDimensions = []string{"region", "sub_category"}

const topDrivers = 3

// Driver is one dimension member whose movement aligns with the overall
// change.
type Driver struct {
	Dimension string
	Member    string
	Previous  float64
	Current   float64
	Delta     float64
}

// Report is the outcome of a root-cause comparison between the two latest
// months.
type Report struct {
	Metric        string
	PreviousMonth string
	CurrentMonth  string
	Previous      float64
	Current       float64
	Delta         float64
	ChangePct     float64
	Drivers       []Driver
}

// CategoryChange is one category's month-over-month movement.
type CategoryChange struct {
	Category string
	Previous float64
	Current  float64
	Delta    float64
}

type Analyzer struct {
	store   store.Store
	profile schema.Profile
}

func NewAnalyzer(st store.Store, profile schema.Profile) *Analyzer {
	return &Analyzer{store: st, profile: profile}
}

// RootCause compares the two most recent months of the metric and ranks
// the dimension members whose change points the same way as the total.
func (a *Analyzer) RootCause(ctx context.Context, metric string) (Report, error) {
	metric = strings.ToLower(metric)
	if !a.profile.IsMetric(metric) {
		return Report{}, fmt.Errorf("unknown metric column %q", metric)
	}

	previousMonth, currentMonth, previous, current, err := a.latestTwoMonths(ctx, metric)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Metric:        metric,
		PreviousMonth: previousMonth,
		CurrentMonth:  currentMonth,
		Previous:      previous,
		Current:       current,
		Delta:         current - previous,
		ChangePct:     percentChange(previous, current),
	}

	declining := report.Delta < 0
	for _, dimension := range driverDimensions {
		if !a.profile.IsGroupable(dimension) {
			continue
		}
		drivers, err := a.dimensionDrivers(ctx, metric, dimension, previousMonth, currentMonth, declining)
		if err != nil {
			return Report{}, err
		}
		report.Drivers = append(report.Drivers, drivers...)
	}
	return report, nil
}

// DecliningCategories lists the categories whose metric fell between the
// two most recent months, biggest drop first.
func (a *Analyzer) DecliningCategories(ctx context.Context, metric string) ([]CategoryChange, error) {
	metric = strings.ToLower(metric)
	if !a.profile.IsMetric(metric) {
		return nil, fmt.Errorf("unknown metric column %q", metric)
	}
	if !a.profile.IsGroupable("category") {
		return nil, fmt.Errorf("no category column to diagnose")
	}

	previousMonth, currentMonth, _, _, err := a.latestTwoMonths(ctx, metric)
	if err != nil {
		return nil, err
	}

	byMember, err := a.memberTotals(ctx, metric, "category", previousMonth, currentMonth)
	if err != nil {
		return nil, err
	}

	var changes []CategoryChange
	for member, totals := range byMember {
		delta := totals[1] - totals[0]
		if delta >= 0 {
			continue
		}
		changes = append(changes, CategoryChange{
			Category: member,
			Previous: totals[0],
			Current:  totals[1],
			Delta:    delta,
		})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Delta < changes[j].Delta })
	return changes, nil
}

func (a *Analyzer) latestTwoMonths(ctx context.Context, metric string) (string, string, float64, float64, error) {
	monthExpr := a.monthExpression()
	stmt := store.Statement{
		SQL: fmt.Sprintf("SELECT %s AS month, SUM(CAST(%s AS REAL)) AS %s FROM %s GROUP BY month ORDER BY month ASC",
			monthExpr, metric, metric, a.store.Table()),
	}
	result, err := a.store.Query(ctx, stmt)
	if err != nil {
		return "", "", 0, 0, fmt.Errorf("monthly totals: %w", err)
	}
	if len(result.Rows) < 2 {
		return "", "", 0, 0, ErrInsufficientHistory
	}

	previousRow := result.Rows[len(result.Rows)-2]
	currentRow := result.Rows[len(result.Rows)-1]
	previous, _ := store.Float(previousRow[metric])
	current, _ := store.Float(currentRow[metric])
	return store.Text(previousRow["month"]), store.Text(currentRow["month"]), previous, current, nil
}

func (a *Analyzer) dimensionDrivers(ctx context.Context, metric, dimension, previousMonth, currentMonth string, declining bool) ([]Driver, error) {
	byMember, err := a.memberTotals(ctx, metric, dimension, previousMonth, currentMonth)
	if err != nil {
		return nil, err
	}

	var drivers []Driver
	for member, totals := range byMember {
		delta := totals[1] - totals[0]
		if declining && delta >= 0 {
			continue
		}
		if !declining && delta <= 0 {
			continue
		}
		drivers = append(drivers, Driver{
			Dimension: dimension,
			Member:    member,
			Previous:  totals[0],
			Current:   totals[1],
			Delta:     delta,
		})
	}
	sort.Slice(drivers, func(i, j int) bool {
		if declining {
			return drivers[i].Delta < drivers[j].Delta
		}
		return drivers[i].Delta > drivers[j].Delta
	})
	if len(drivers) > topDrivers {
		drivers = drivers[:topDrivers]
	}
	return drivers, nil
}

// memberTotals returns, per dimension member, the metric totals for the
// two compared months as [previous, current].
func (a *Analyzer) memberTotals(ctx context.Context, metric, dimension, previousMonth, currentMonth string) (map[string][2]float64, error) {
	monthExpr := a.monthExpression()
	stmt := store.Statement{
		SQL: fmt.Sprintf("SELECT %s, %s AS month, SUM(CAST(%s AS REAL)) AS %s FROM %s WHERE %s IN (?, ?) GROUP BY %s, month",
			dimension, monthExpr, metric, metric, a.store.Table(), monthExpr, dimension),
		Args: []any{previousMonth, currentMonth},
	}
	result, err := a.store.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("%s totals: %w", dimension, err)
	}

	byMember := map[string][2]float64{}
	for _, row := range result.Rows {
		member := store.Text(row[dimension])
		value, _ := store.Float(row[metric])
		totals := byMember[member]
		if store.Text(row["month"]) == previousMonth {
			totals[0] = value
		} else {
			totals[1] = value
		}
		byMember[member] = totals
	}
	return byMember, nil
}

func (a *Analyzer) monthExpression() string {
	return fmt.Sprintf("substr(CAST(%s AS VARCHAR), 1, 7)", a.profile.PrimaryDate())
}

// Narrative renders the report for the chat response.
func (r Report) Narrative() string {
	var sb strings.Builder
	verb := "rose"
	if r.Delta < 0 {
		verb = "fell"
	}
	label := strings.ToUpper(r.Metric[:1]) + r.Metric[1:]
	fmt.Fprintf(&sb, "%s %s %.1f%% from %s to %s (%s to %s).\n",
		label, verb, absFloat(r.ChangePct), r.PreviousMonth, r.CurrentMonth,
		summarize.FormatValue(r.Metric, r.Previous), summarize.FormatValue(r.Metric, r.Current))

	if len(r.Drivers) == 0 {
		sb.WriteString("No single region or sub-category stands out as a driver.")
		return sb.String()
	}

	sb.WriteString("Main drivers:\n")
	for _, driver := range r.Drivers {
		fmt.Fprintf(&sb, "- %s %q: %s (%s to %s)\n",
			strings.ReplaceAll(driver.Dimension, "_", " "), driver.Member,
			summarize.FormatValue(r.Metric, driver.Delta),
			summarize.FormatValue(r.Metric, driver.Previous),
			summarize.FormatValue(r.Metric, driver.Current))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func percentChange(from, to float64) float64 {
	if from == 0 {
		if to == 0 {
			return 0
		}
		return 100
	}
	return (to - from) / absFloat(from) * 100
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
