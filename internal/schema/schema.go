// Package schema classifies the sales table's columns into groupable,
// metric, and date sets, and derives synthetic time dimensions
// (month/year/quarter) from every date column. The profile is computed once
// at startup; when live introspection fails a static fallback keeps the
// extractor operable.
package schema

import (
	"context"
	"log/slog"
	"strings"

	"github.com/salescope/salescope/internal/store"
)

type TimeUnit string

const (
	UnitMonth   TimeUnit = "month"
	UnitYear    TimeUnit = "year"
	UnitQuarter TimeUnit = "quarter"
)

// DerivedDimension maps a time keyword to the unit and the date column it
// is computed from.
type DerivedDimension struct {
	Unit   TimeUnit
	Source string
}

type Profile struct {
	Groupable []string
	Metrics   []string
	Dates     []string

	// TimeDimensions maps keyword variants ("month", "monthly", "q1", ...)
	// to their derived dimension.
	TimeDimensions map[string]DerivedDimension
}

var numericTypes = []string{"INTEGER", "REAL", "FLOAT", "DOUBLE", "DECIMAL", "NUMERIC", "INT", "BIGINT", "SMALLINT", "HUGEINT"}

var dateNameIndicators = []string{"date", "time", "timestamp", "datetime", "created", "updated"}

var timeUnitKeywords = map[TimeUnit][]string{
	UnitMonth:   {"month", "months", "monthly"},
	UnitYear:    {"year", "years", "yearly", "annual", "annually"},
	UnitQuarter: {"quarter", "quarters", "quarterly", "q1", "q2", "q3", "q4"},
}

// Introspect builds a profile from the live store, falling back to the
// static default profile when introspection fails.
func Introspect(ctx context.Context, st store.Store, logger *slog.Logger) Profile {
	columns, err := st.Columns(ctx)
	if err != nil {
		if logger != nil {
			logger.Warn("schema introspection failed, using static profile", slog.Any("error", err))
		}
		return DefaultProfile()
	}
	return Classify(columns)
}

// Classify assigns every column to exactly one of the three sets. Columns
// whose name contains "id" belong to none of them.
func Classify(columns []store.ColumnInfo) Profile {
	profile := Profile{TimeDimensions: map[string]DerivedDimension{}}
	for _, column := range columns {
		name := strings.ToLower(column.Name)
		declared := strings.ToUpper(column.Type)

		if strings.Contains(name, "id") {
			continue
		}

		switch {
		case isDateColumn(name, declared):
			profile.Dates = append(profile.Dates, name)
			profile.registerTimeDimensions(name)
		case isNumericType(declared):
			profile.Metrics = append(profile.Metrics, name)
		default:
			profile.Groupable = append(profile.Groupable, name)
		}
	}
	return profile
}

// DefaultProfile is the superstore-shaped fallback used when the live store
// cannot be introspected at startup.
func DefaultProfile() Profile {
	profile := Profile{
		Groupable:      []string{"region", "category", "sub_category", "state", "city", "segment", "product_name"},
		Metrics:        []string{"sales", "profit", "quantity", "discount"},
		Dates:          []string{"order_date"},
		TimeDimensions: map[string]DerivedDimension{},
	}
	profile.registerTimeDimensions("order_date")
	return profile
}

func (p *Profile) registerTimeDimensions(dateColumn string) {
	for unit, keywords := range timeUnitKeywords {
		for _, keyword := range keywords {
			p.TimeDimensions[keyword] = DerivedDimension{Unit: unit, Source: dateColumn}
		}
	}
}

// PrimaryDate returns the date column derived time dimensions are computed
// from.
func (p Profile) PrimaryDate() string {
	if len(p.Dates) == 0 {
		return "order_date"
	}
	return p.Dates[0]
}

func (p Profile) IsGroupable(column string) bool {
	return containsFold(p.Groupable, column)
}

func (p Profile) IsMetric(column string) bool {
	return containsFold(p.Metrics, column)
}

// TimeDimensionIn scans text for the first derived-time-dimension keyword
// and returns its dimension. Longer keywords are matched first so that
// "quarterly" is not consumed as "quarter" plus a remainder.
func (p Profile) TimeDimensionIn(text string) (DerivedDimension, bool) {
	lowered := strings.ToLower(text)
	best := ""
	var found DerivedDimension
	for keyword, dimension := range p.TimeDimensions {
		if strings.Contains(lowered, keyword) && len(keyword) > len(best) {
			best = keyword
			found = dimension
		}
	}
	return found, best != ""
}

func isDateColumn(name, declared string) bool {
	if strings.Contains(declared, "DATE") || strings.Contains(declared, "TIME") {
		return true
	}
	for _, indicator := range dateNameIndicators {
		if strings.Contains(name, indicator) {
			return true
		}
	}
	return false
}

func isNumericType(declared string) bool {
	for _, numeric := range numericTypes {
		if strings.Contains(declared, numeric) {
			return true
		}
	}
	return false
}

func containsFold(values []string, target string) bool {
	for _, value := range values {
		if strings.EqualFold(value, target) {
			return true
		}
	}
	return false
}
