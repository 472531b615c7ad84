package summarize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/salescope/salescope/internal/store"
)

// Distribution is the five-number summary plus the mean, computed
// in-process from the capped raw fetch the distribution branch runs.
type Distribution struct {
	Count  int
	Min    float64
	Q1     float64
	Median float64
	Q3     float64
	Max    float64
	Mean   float64
}

// Describe computes distribution statistics over one numeric column.
func Describe(result store.Result, column string) (Distribution, bool) {
	values := make([]float64, 0, len(result.Rows))
	sum := 0.0
	for _, row := range result.Rows {
		if value, ok := store.Float(row[column]); ok {
			values = append(values, value)
			sum += value
		}
	}
	if len(values) == 0 {
		return Distribution{}, false
	}
	return describeValues(values, sum), true
}

// GroupDistribution pairs one group member with its statistics.
type GroupDistribution struct {
	Group string
	Stats Distribution
}

// DescribeGrouped computes statistics per value of the grouping column,
// ordered by group name. Rows whose metric is not numeric are skipped.
func DescribeGrouped(result store.Result, groupColumn, metricColumn string) []GroupDistribution {
	values := map[string][]float64{}
	sums := map[string]float64{}
	for _, row := range result.Rows {
		value, ok := store.Float(row[metricColumn])
		if !ok {
			continue
		}
		group := store.Text(row[groupColumn])
		values[group] = append(values[group], value)
		sums[group] += value
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([]GroupDistribution, 0, len(names))
	for _, name := range names {
		groups = append(groups, GroupDistribution{Group: name, Stats: describeValues(values[name], sums[name])})
	}
	return groups
}

func describeValues(values []float64, sum float64) Distribution {
	sort.Float64s(values)
	return Distribution{
		Count:  len(values),
		Min:    values[0],
		Q1:     quantile(values, 0.25),
		Median: quantile(values, 0.5),
		Q3:     quantile(values, 0.75),
		Max:    values[len(values)-1],
		Mean:   sum / float64(len(values)),
	}
}

// SummarizeDistribution renders the statistics for the chat response.
func (s *Summarizer) SummarizeDistribution(column string, d Distribution) string {
	label := labelFor(column)
	return s.truncate(fmt.Sprintf(
		"%s distribution over %d records:\n- Min: %s\n- Q1: %s\n- Median: %s\n- Q3: %s\n- Max: %s\n- Mean: %s",
		label, d.Count,
		FormatValue(column, d.Min),
		FormatValue(column, d.Q1),
		FormatValue(column, d.Median),
		FormatValue(column, d.Q3),
		FormatValue(column, d.Max),
		FormatValue(column, d.Mean)))
}

// SummarizeGroupedDistribution renders one statistics line per group.
func (s *Summarizer) SummarizeGroupedDistribution(column, groupColumn string, groups []GroupDistribution) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s distribution by %s:\n", labelFor(column), labelFor(groupColumn))
	for _, group := range groups {
		d := group.Stats
		fmt.Fprintf(&sb, "- %s (%d records): Min %s, Q1 %s, Median %s, Q3 %s, Max %s, Mean %s\n",
			group.Group, d.Count,
			FormatValue(column, d.Min),
			FormatValue(column, d.Q1),
			FormatValue(column, d.Median),
			FormatValue(column, d.Q3),
			FormatValue(column, d.Max),
			FormatValue(column, d.Mean))
	}
	return s.truncate(strings.TrimRight(sb.String(), "\n"))
}

// quantile uses linear interpolation between closest ranks on a sorted
// slice.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	position := q * float64(len(sorted)-1)
	lower := int(position)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[lower]
	}
	fraction := position - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*fraction
}
