package summarize

import (
	"fmt"
	"strings"

	"github.com/salescope/salescope/internal/store"
)

// Direction classifies the overall movement between the first and last
// points of a series.
type Direction string

const (
	DirectionUp   Direction = "UPWARD"
	DirectionDown Direction = "DOWNWARD"
	DirectionFlat Direction = "STABLE"
)

const (
	// directionThresholdPct is the overall change below which a series
	// reads as stable.
	directionThresholdPct = 5.0
	// significantChangePct marks a point-to-point move worth calling out.
	significantChangePct = 10.0
)

// AnalyzeTrend narrates a time series: overall direction, total change,
// peak and trough, and point-to-point moves beyond the significance
// threshold. When the result does not look like a time series (fewer than
// two points, or no recognizable period and metric columns) it falls back
// to the plain summary.
func (s *Summarizer) AnalyzeTrend(result store.Result) string {
	periodColumn, metricColumn := trendColumns(result)
	if periodColumn == "" || metricColumn == "" || len(result.Rows) < 2 {
		return s.Summarize(result)
	}

	type point struct {
		period string
		value  float64
	}
	points := make([]point, 0, len(result.Rows))
	for _, row := range result.Rows {
		value, ok := store.Float(row[metricColumn])
		if !ok {
			continue
		}
		points = append(points, point{period: store.Text(row[periodColumn]), value: value})
	}
	if len(points) < 2 {
		return s.Summarize(result)
	}

	first, last := points[0], points[len(points)-1]
	changePct := percentChange(first.value, last.value)
	direction := DirectionFlat
	switch {
	case changePct > directionThresholdPct:
		direction = DirectionUp
	case changePct < -directionThresholdPct:
		direction = DirectionDown
	}

	peak, trough := points[0], points[0]
	for _, p := range points[1:] {
		if p.value > peak.value {
			peak = p
		}
		if p.value < trough.value {
			trough = p
		}
	}

	label := labelFor(metricColumn)
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s shows a %s trend from %s to %s (%+.1f%%, %s to %s).\n",
		label, strings.ToLower(string(direction)), first.period, last.period, changePct,
		FormatValue(metricColumn, first.value), FormatValue(metricColumn, last.value))
	fmt.Fprintf(&sb, "Peak: %s in %s. Trough: %s in %s.\n",
		FormatValue(metricColumn, peak.value), peak.period,
		FormatValue(metricColumn, trough.value), trough.period)

	var notable []string
	for i := 1; i < len(points); i++ {
		step := percentChange(points[i-1].value, points[i].value)
		if step >= significantChangePct || step <= -significantChangePct {
			notable = append(notable, fmt.Sprintf("%s: %+.1f%%", points[i].period, step))
		}
	}
	if len(notable) > 0 {
		fmt.Fprintf(&sb, "Significant changes: %s.", strings.Join(notable, ", "))
	}

	return s.truncate(strings.TrimRight(sb.String(), "\n"))
}

// trendColumns picks the period column (name contains month/date/year/
// quarter) and the first numeric column that is not the period.
func trendColumns(result store.Result) (string, string) {
	period := ""
	for _, column := range result.Columns {
		lowered := strings.ToLower(column)
		if strings.Contains(lowered, "month") || strings.Contains(lowered, "date") ||
			lowered == "year" || lowered == "quarter" {
			period = column
			break
		}
	}
	if period == "" {
		return "", ""
	}
	for _, column := range result.Columns {
		if column == period {
			continue
		}
		if len(result.Rows) > 0 {
			if _, ok := store.Float(result.Rows[0][column]); !ok {
				continue
			}
		}
		return period, column
	}
	return period, ""
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
