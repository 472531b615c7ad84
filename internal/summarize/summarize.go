// Package summarize renders query results as compact markdown for the chat
// response, and derives trend narratives and distribution statistics from
// raw rows.
package summarize

import (
	"fmt"
	"strings"

	"github.com/salescope/salescope/internal/observability"
	"github.com/salescope/salescope/internal/store"
)

// currencyFields are formatted as dollar amounts when their value is
// numeric.
var currencyFields = []string{"sales", "profit", "revenue", "amount", "price", "cost"}

// Summarizer renders results within a character budget.
type Summarizer struct {
	charBudget int
}

func New(charBudget int) *Summarizer {
	if charBudget <= 0 {
		charBudget = 4000
	}
	return &Summarizer{charBudget: charBudget}
}

// Summarize renders a result: a fixed sentence for empty results, a
// label-value line for single-row results with at most three fields, and a
// markdown table otherwise. Output beyond the character budget is cut at
// the last complete line and marked truncated.
func (s *Summarizer) Summarize(result store.Result) string {
	if len(result.Rows) == 0 {
		return "No data found for your query."
	}
	if len(result.Rows) == 1 && len(result.Columns) <= 3 {
		return s.truncate(singleRowSummary(result))
	}
	return s.truncate(markdownTable(result))
}

func singleRowSummary(result store.Result) string {
	row := result.Rows[0]
	parts := make([]string, 0, len(result.Columns))
	for _, column := range result.Columns {
		parts = append(parts, fmt.Sprintf("%s: %s", labelFor(column), FormatValue(column, row[column])))
	}
	return strings.Join(parts, ", ")
}

func markdownTable(result store.Result) string {
	var sb strings.Builder

	headers := make([]string, len(result.Columns))
	for i, column := range result.Columns {
		headers[i] = labelFor(column)
	}
	sb.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	sb.WriteString("|" + strings.Repeat(" --- |", len(result.Columns)) + "\n")

	for _, row := range result.Rows {
		cells := make([]string, len(result.Columns))
		for i, column := range result.Columns {
			cells[i] = FormatValue(column, row[column])
		}
		sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// truncate cuts at the last newline inside the budget so a markdown table
// never ends mid-row.
func (s *Summarizer) truncate(text string) string {
	if len(text) <= s.charBudget {
		return text
	}
	cut := text[:s.charBudget]
	if idx := strings.LastIndexByte(cut, '\n'); idx > 0 {
		cut = cut[:idx]
	}
	observability.IncrementContextTruncation()
	return cut + "\n... (truncated)"
}

// FormatValue renders one cell: currency fields as $1,234.50, other
// numerics with thousands separators, everything else as text.
func FormatValue(column string, value any) string {
	number, isNumber := store.Float(value)
	if !isNumber {
		return store.Text(value)
	}
	if isCurrencyField(column) {
		return "$" + groupThousands(fmt.Sprintf("%.2f", number))
	}
	if number == float64(int64(number)) {
		return groupThousands(fmt.Sprintf("%d", int64(number)))
	}
	return groupThousands(fmt.Sprintf("%.2f", number))
}

func isCurrencyField(column string) bool {
	lowered := strings.ToLower(column)
	for _, field := range currencyFields {
		if strings.Contains(lowered, field) {
			return true
		}
	}
	return false
}

// labelFor turns snake_case column names into title-cased labels.
func labelFor(column string) string {
	words := strings.Split(strings.ToLower(column), "_")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// groupThousands inserts commas into the integer part of a formatted
// number.
func groupThousands(formatted string) string {
	sign := ""
	if strings.HasPrefix(formatted, "-") {
		sign = "-"
		formatted = formatted[1:]
	}
	integer := formatted
	fraction := ""
	if idx := strings.IndexByte(formatted, '.'); idx >= 0 {
		integer = formatted[:idx]
		fraction = formatted[idx:]
	}
	if len(integer) <= 3 {
		return sign + integer + fraction
	}
	var sb strings.Builder
	lead := len(integer) % 3
	if lead > 0 {
		sb.WriteString(integer[:lead])
	}
	for i := lead; i < len(integer); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(integer[i : i+3])
	}
	return sign + sb.String() + fraction
}
