package plan

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/salescope/salescope/internal/embedding"
	"github.com/salescope/salescope/internal/resolve"
	"github.com/salescope/salescope/internal/schema"
	"github.com/salescope/salescope/internal/vocab"
)

// intentKeywords is evaluated in order; on an exact score tie the earlier
// category wins. The ordering is the documented tie-break contract.
var intentKeywords = []struct {
	intent Intent
	words  []string
}{
	{IntentAggregate, []string{"total", "sum", "average", "mean", "count", "how many", "sales", "profit", "quantity", "volume", "top", "rank", "best", "worst", "visualize", "chart", "graph", "plot"}},
	{IntentTrend, []string{"trend", "growth", "over time", "monthly", "year over year", "yoy", "history", "progress", "change", "month"}},
	{IntentList, []string{"list", "show", "what are", "names", "bottom", "table", "raw data"}},
	{IntentDocument, []string{"how to", "policy", "strategy", "reason", "cause", "document", "report", "details", "explain"}},
	{IntentGreeting, []string{"hi", "hello", "hey", "greetings", "good morning", "good afternoon", "good evening"}},
}

var knownRegions = []string{"north", "south", "east", "west", "central", "canada"}

// quarterKeywords is ordered; the first match wins.
var quarterKeywords = []struct {
	keyword string
	months  []int
}{
	{"q1", []int{1, 2, 3}},
	{"first quarter", []int{1, 2, 3}},
	{"q2", []int{4, 5, 6}},
	{"second quarter", []int{4, 5, 6}},
	{"q3", []int{7, 8, 9}},
	{"third quarter", []int{7, 8, 9}},
	{"q4", []int{10, 11, 12}},
	{"fourth quarter", []int{10, 11, 12}},
}

// visualizationKeywords is ordered; the first textual match wins when
// several chart names co-occur.
var visualizationKeywords = []struct {
	viz      Visualization
	keywords []string
}{
	{VizBoxPlot, []string{"box plot", "boxplot"}},
	{VizViolin, []string{"violin"}},
	{VizHeatmap, []string{"heatmap", "heat map"}},
	{VizTreemap, []string{"treemap", "tree map"}},
	{VizBubble, []string{"bubble"}},
	{VizDonut, []string{"donut", "doughnut"}},
	{VizLollipop, []string{"lollipop"}},
	{VizStacked, []string{"stacked"}},
	{VizScatter, []string{"scatter"}},
	{VizPie, []string{"pie"}},
	{VizBar, []string{"bar"}},
	{VizLine, []string{"line"}},
}

var (
	yearPattern  = regexp.MustCompile(`\b(20\d{2})\b`)
	limitPattern = regexp.MustCompile(`\b(top|bottom|first|last)\s+(\d+)\b`)
)

var declineIndicators = []string{"drop", "dropped", "decline", "declining", "decrease", "fall", "fell"}

// columnDescriptions gives semantic matching a richer target than the bare
// column name.
var columnDescriptions = map[string]string{
	"region":       "geographic region area location",
	"state":        "state province territory",
	"city":         "city town municipality",
	"category":     "category type class",
	"sub_category": "product item subcategory goods merchandise",
	"segment":      "customer segment market audience",
	"product_name": "product item goods merchandise",
}

const semanticColumnThreshold = 0.35

// Extractor is the single-shot intent classifier and slot filler. It is
// stateless per call; cross-turn context recovery reads only the supplied
// history.
type Extractor struct {
	profile     schema.Profile
	vocab       *vocab.Service
	resolver    *resolve.Resolver
	embedder    embedding.Embedder
	defaultTopN int
}

func NewExtractor(profile schema.Profile, vocabService *vocab.Service, resolver *resolve.Resolver, embedder embedding.Embedder, defaultTopN int) *Extractor {
	if defaultTopN <= 0 {
		defaultTopN = 5
	}
	return &Extractor{
		profile:     profile,
		vocab:       vocabService,
		resolver:    resolver,
		embedder:    embedder,
		defaultTopN: defaultTopN,
	}
}

// Extract produces the structured plan for one query turn.
func (e *Extractor) Extract(ctx context.Context, query string, history []Turn) (QueryPlan, error) {
	queryLower := strings.ToLower(query)

	sanitized := query
	if e.resolver != nil {
		sanitized = e.resolver.SanitizeQuery(ctx, query)
	}
	sanitizedLower := strings.ToLower(sanitized)

	// Diagnostic patterns short-circuit every other slot-filling rule.
	if e.isRootCauseQuery(queryLower) {
		p := QueryPlan{
			Intent:         IntentDiagnostic,
			Filters:        Filters{AnalysisMode: ModeRootCause},
			Metrics:        []string{"sales"},
			Visualization:  VizRCA,
			SanitizedQuery: sanitized,
		}
		return p, p.Normalize()
	}
	if isDeclineQuery(queryLower) {
		p := QueryPlan{
			Intent:         IntentDiagnostic,
			Filters:        Filters{AnalysisMode: ModeDecline},
			Metrics:        []string{"sales"},
			GroupBy:        []GroupDimension{{Column: "category"}},
			Visualization:  VizDecline,
			SanitizedQuery: sanitized,
		}
		return p, p.Normalize()
	}

	intent := classifyIntent(queryLower)

	p := QueryPlan{
		Intent:         intent,
		Filters:        e.extractFilters(sanitizedLower),
		SanitizedQuery: sanitized,
	}
	p.Limit = extractLimit(sanitizedLower, e.defaultTopN)

	explicitViz := false
	p.Visualization, explicitViz = extractVisualization(queryLower)

	if intent == IntentAggregate || intent == IntentTrend || intent == IntentList {
		p.Metrics = e.extractMetrics(queryLower)
		p.GroupBy = e.extractGrouping(ctx, intent, queryLower)
	}

	if p.Visualization == VizNone {
		p.Visualization = defaultVisualization(intent, queryLower)
	}

	if recovered, ok := e.recoverContext(ctx, p, explicitViz, query, history); ok {
		p = recovered
	}

	return p, p.Normalize()
}

func (e *Extractor) isRootCauseQuery(queryLower string) bool {
	if !strings.Contains(queryLower, "why") {
		return false
	}
	for _, metric := range e.profile.Metrics {
		if strings.Contains(queryLower, metric) {
			return true
		}
	}
	for _, indicator := range declineIndicators {
		if strings.Contains(queryLower, indicator) {
			return true
		}
	}
	return false
}

func isDeclineQuery(queryLower string) bool {
	if !strings.Contains(queryLower, "identify") && !strings.Contains(queryLower, "which") {
		return false
	}
	return strings.Contains(queryLower, "decline") || strings.Contains(queryLower, "declining")
}

func classifyIntent(queryLower string) Intent {
	intent := IntentUnknown
	maxScore := 0
	for _, candidate := range intentKeywords {
		score := 0
		for _, keyword := range candidate.words {
			if strings.Contains(queryLower, keyword) {
				score++
			}
		}
		if score > maxScore {
			maxScore = score
			intent = candidate.intent
		}
	}

	// "compare" is an aggregation in disguise; explicit trend words beat
	// any keyword score.
	if strings.Contains(queryLower, "compare") {
		intent = IntentAggregate
	}
	if strings.Contains(queryLower, "trend") || strings.Contains(queryLower, "growth") || strings.Contains(queryLower, "over time") {
		intent = IntentTrend
	}
	return intent
}

func (e *Extractor) extractFilters(sanitizedLower string) Filters {
	var filters Filters

	if match := yearPattern.FindString(sanitizedLower); match != "" {
		year, err := strconv.Atoi(match)
		if err == nil {
			filters.Year = year
		}
	}

	for _, quarter := range quarterKeywords {
		if strings.Contains(sanitizedLower, quarter.keyword) {
			filters.QuarterMonths = quarter.months
			break
		}
	}

	// At most one region filter; the first mention wins.
	for _, region := range knownRegions {
		if containsWord(sanitizedLower, region) {
			filters.Region = titleCase(region)
			break
		}
	}

	// Scan the vocabulary longest-first so specific entities beat generic
	// ones; region terms are consumed by the region filter above.
	for _, entity := range e.vocab.Current().LongestFirst() {
		entityLower := strings.ToLower(entity)
		if isRegionTerm(entityLower) {
			continue
		}
		if strings.Contains(sanitizedLower, entityLower) {
			filters.Categories = []string{entity}
			break
		}
	}

	return filters
}

func (e *Extractor) extractMetrics(queryLower string) []string {
	var metrics []string
	for _, metric := range e.profile.Metrics {
		if strings.Contains(queryLower, metric) {
			metrics = append(metrics, metric)
		}
	}
	if len(metrics) == 0 {
		metrics = []string{"sales"}
	}
	return metrics
}

func (e *Extractor) extractGrouping(ctx context.Context, intent Intent, queryLower string) []GroupDimension {
	if intent == IntentTrend {
		// Trends always read left-to-right in time, whatever other
		// dimension words appear.
		return []GroupDimension{{TimeUnit: string(schema.UnitMonth)}}
	}
	if dimension, ok := e.profile.TimeDimensionIn(queryLower); ok {
		return []GroupDimension{{TimeUnit: string(dimension.Unit)}}
	}
	if column, ok := e.findGroupingColumn(ctx, queryLower); ok {
		return []GroupDimension{{Column: column}}
	}
	return nil
}

// findGroupingColumn matches dimension words against groupable columns:
// direct name variations first, then semantic similarity over descriptive
// column text.
func (e *Extractor) findGroupingColumn(ctx context.Context, queryLower string) (string, bool) {
	sorted := make([]string, len(e.profile.Groupable))
	copy(sorted, e.profile.Groupable)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if len(sorted[j]) > len(sorted[i]) {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}

	for _, column := range sorted {
		for _, variant := range nameVariants(column) {
			if strings.Contains(queryLower, variant) {
				return column, true
			}
		}
	}

	if e.embedder == nil || len(e.profile.Groupable) == 0 {
		return "", false
	}

	queryWords := candidateNouns(queryLower)
	if len(queryWords) == 0 {
		return "", false
	}

	descriptions := make([]string, len(e.profile.Groupable))
	for i, column := range e.profile.Groupable {
		if description, ok := columnDescriptions[column]; ok {
			descriptions[i] = description
		} else {
			descriptions[i] = column
		}
	}

	columnVectors, err := e.embedder.EmbedBatch(ctx, descriptions)
	if err != nil {
		return "", false
	}
	wordVectors, err := e.embedder.EmbedBatch(ctx, queryWords)
	if err != nil {
		return "", false
	}

	bestScore := 0.0
	bestColumn := ""
	for _, wordVector := range wordVectors {
		if idx, score := embedding.BestMatch(wordVector, columnVectors); idx >= 0 && score > bestScore {
			bestScore = score
			bestColumn = e.profile.Groupable[idx]
		}
	}
	if bestScore > semanticColumnThreshold {
		return bestColumn, true
	}
	return "", false
}

func extractLimit(sanitizedLower string, defaultTopN int) int {
	if match := limitPattern.FindStringSubmatch(sanitizedLower); match != nil {
		limit, err := strconv.Atoi(match[2])
		if err == nil && limit > 0 {
			return limit
		}
	}
	if strings.Contains(sanitizedLower, "top") || strings.Contains(sanitizedLower, "best") {
		return defaultTopN
	}
	return 0
}

func extractVisualization(queryLower string) (Visualization, bool) {
	for _, candidate := range visualizationKeywords {
		for _, keyword := range candidate.keywords {
			if strings.Contains(queryLower, keyword) {
				return candidate.viz, true
			}
		}
	}
	// Two-word chart names that need both tokens present.
	if strings.Contains(queryLower, "area") && strings.Contains(queryLower, "chart") {
		return VizArea, true
	}
	if strings.Contains(queryLower, "lag") && strings.Contains(queryLower, "plot") {
		return VizLag, true
	}
	return VizNone, false
}

func defaultVisualization(intent Intent, queryLower string) Visualization {
	switch intent {
	case IntentTrend:
		return VizLine
	case IntentAggregate:
		if strings.Contains(queryLower, "region") || strings.Contains(queryLower, "state") || strings.Contains(queryLower, "category") {
			return VizBar
		}
		if strings.Contains(queryLower, "top") || strings.Contains(queryLower, "rank") {
			return VizBar
		}
		return VizNone
	case IntentList:
		return VizTable
	default:
		return VizNone
	}
}

func nameVariants(column string) []string {
	base := []string{
		column,
		strings.ReplaceAll(column, "_", "-"),
		strings.ReplaceAll(column, "_", " "),
		strings.ReplaceAll(column, "_", ""),
	}
	// "products" should find product_name; short leading tokens like the
	// "sub" of sub_category stay excluded.
	if head, _, ok := strings.Cut(column, "_"); ok && len(head) > 3 {
		base = append(base, head)
	}
	variants := make([]string, 0, len(base)*2)
	variants = append(variants, base...)
	for _, form := range base {
		variants = append(variants, pluralize(form))
	}
	return variants
}

func pluralize(word string) string {
	if strings.HasSuffix(word, "y") && len(word) > 1 && !strings.ContainsRune("aeiou", rune(word[len(word)-2])) {
		return word[:len(word)-1] + "ies"
	}
	return word + "s"
}

var semanticStopWords = map[string]struct{}{
	"what": {}, "which": {}, "show": {}, "give": {}, "list": {}, "find": {},
	"tell": {}, "the": {}, "are": {}, "best": {}, "highest": {}, "lowest": {},
}

func candidateNouns(queryLower string) []string {
	var words []string
	for _, word := range strings.Fields(queryLower) {
		if len(word) <= 3 {
			continue
		}
		if _, stop := semanticStopWords[word]; stop {
			continue
		}
		words = append(words, word)
	}
	return words
}

func containsWord(text, word string) bool {
	idx := strings.Index(text, word)
	for idx >= 0 {
		before := idx == 0 || !isLetter(text[idx-1])
		afterIdx := idx + len(word)
		after := afterIdx >= len(text) || !isLetter(text[afterIdx])
		if before && after {
			return true
		}
		next := strings.Index(text[idx+1:], word)
		if next < 0 {
			return false
		}
		idx = idx + 1 + next
	}
	return false
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func titleCase(word string) string {
	if word == "" {
		return word
	}
	return strings.ToUpper(word[:1]) + word[1:]
}

func isRegionTerm(value string) bool {
	for _, region := range knownRegions {
		if value == region {
			return true
		}
	}
	return false
}
