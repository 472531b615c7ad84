// Package pipeline orchestrates one chat turn: extract a plan, dispatch on
// the task it implies, run SQL or diagnostics or document retrieval, and
// assemble the answer plus chart metadata.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/salescope/salescope/internal/diagnose"
	"github.com/salescope/salescope/internal/observability"
	"github.com/salescope/salescope/internal/plan"
	"github.com/salescope/salescope/internal/retrieval"
	"github.com/salescope/salescope/internal/sqlgen"
	"github.com/salescope/salescope/internal/store"
	"github.com/salescope/salescope/internal/summarize"
)

// taskKind tags the execution strategy a plan maps to. Every plan maps to
// exactly one kind; dispatch is a closed switch, not reflection.
type taskKind string

const (
	taskKPI        taskKind = "kpi"
	taskTopN       taskKind = "top_n"
	taskComparison taskKind = "comparison"
	taskTrend      taskKind = "trend"
	taskList       taskKind = "list"
	taskRootCause  taskKind = "root_cause"
	taskDecline    taskKind = "decline"
	taskDocuments  taskKind = "documents"
	taskGreeting   taskKind = "greeting"
	taskClarify    taskKind = "clarify"
)

// Chart is the visualization payload returned alongside the answer.
type Chart struct {
	Type string       `json:"type"`
	Data store.Result `json:"data"`
}

// Response is the assembled outcome of one turn. Rows carries raw records
// only for explicit list requests.
type Response struct {
	Answer        string
	Intent        plan.Intent
	Visualization plan.Visualization
	Chart         *Chart
	Rows          []store.Row
}

type Pipeline struct {
	extractor  *plan.Extractor
	compiler   *sqlgen.Compiler
	store      store.Store
	summarizer *summarize.Summarizer
	analyzer   *diagnose.Analyzer
	docs       *retrieval.Index
	logger     *slog.Logger
}

// New wires the pipeline. docs may be nil when no document corpus is
// configured.
func New(extractor *plan.Extractor, compiler *sqlgen.Compiler, st store.Store, summarizer *summarize.Summarizer, analyzer *diagnose.Analyzer, docs *retrieval.Index, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		extractor:  extractor,
		compiler:   compiler,
		store:      st,
		summarizer: summarizer,
		analyzer:   analyzer,
		docs:       docs,
		logger:     logger,
	}
}

// Handle runs one chat turn.
func (p *Pipeline) Handle(ctx context.Context, query string, history []plan.Turn) (Response, error) {
	qp, err := p.extractor.Extract(ctx, query, history)
	if err != nil {
		return Response{}, fmt.Errorf("extract plan: %w", err)
	}
	observability.IncrementQueryIntent(string(qp.Intent))

	kind := classifyTask(qp)
	p.logger.Info("handling query",
		slog.String("intent", string(qp.Intent)),
		slog.String("task", string(kind)),
		slog.String("visualization", string(qp.Visualization)))

	switch kind {
	case taskGreeting:
		return Response{
			Answer: "Hello! Ask me about sales, profit, trends, or top performers in the sales data.",
			Intent: qp.Intent,
		}, nil
	case taskClarify:
		return Response{
			Answer: "I'm not sure what you're asking. Try something like \"total sales by region in 2017\" or \"monthly sales trend\".",
			Intent: qp.Intent,
		}, nil
	case taskDocuments:
		return p.runDocuments(ctx, qp)
	case taskRootCause:
		return p.runRootCause(ctx, qp)
	case taskDecline:
		return p.runDecline(ctx, qp)
	default:
		return p.runQuery(ctx, qp)
	}
}

func classifyTask(qp plan.QueryPlan) taskKind {
	switch qp.Intent {
	case plan.IntentGreeting:
		return taskGreeting
	case plan.IntentUnknown:
		return taskClarify
	case plan.IntentDocument:
		return taskDocuments
	case plan.IntentDiagnostic:
		if qp.Filters.AnalysisMode == plan.ModeDecline {
			return taskDecline
		}
		return taskRootCause
	case plan.IntentTrend:
		return taskTrend
	case plan.IntentList:
		return taskList
	default:
		if len(qp.GroupBy) == 0 {
			return taskKPI
		}
		if qp.Limit > 0 {
			return taskTopN
		}
		return taskComparison
	}
}

// runQuery covers every task kind that compiles to SQL.
func (p *Pipeline) runQuery(ctx context.Context, qp plan.QueryPlan) (Response, error) {
	stmt, branch, err := p.compiler.Compile(qp)
	if err != nil {
		return Response{}, fmt.Errorf("compile plan: %w", err)
	}
	result, err := p.store.Query(ctx, stmt)
	if err != nil {
		return Response{}, fmt.Errorf("run query: %w", err)
	}

	response := Response{Intent: qp.Intent, Visualization: qp.Visualization}

	switch branch {
	case sqlgen.BranchDistribution:
		response.Answer = p.distributionAnswer(qp, result)
	case sqlgen.BranchTrend:
		response.Answer = p.summarizer.AnalyzeTrend(result)
	default:
		response.Answer = p.summarizer.Summarize(result)
	}

	// Raw rows leave the server only on an explicit list request.
	if qp.Intent == plan.IntentList {
		response.Rows = result.Rows
	}
	if chartType := chartTypeFor(qp.Visualization); chartType != "" && len(result.Rows) > 0 {
		response.Chart = &Chart{Type: chartType, Data: result}
	}
	return response, nil
}

// distributionAnswer summarizes the raw metric fetch per group when the
// statement carried a grouping column, or globally when it did not.
func (p *Pipeline) distributionAnswer(qp plan.QueryPlan, result store.Result) string {
	metric := qp.Metrics[0]

	groupColumn := ""
	for _, column := range result.Columns {
		if column != metric {
			groupColumn = column
			break
		}
	}
	if groupColumn != "" {
		if groups := summarize.DescribeGrouped(result, groupColumn, metric); len(groups) > 0 {
			return p.summarizer.SummarizeGroupedDistribution(metric, groupColumn, groups)
		}
	}

	stats, ok := summarize.Describe(result, metric)
	if !ok {
		return p.summarizer.Summarize(result)
	}
	return p.summarizer.SummarizeDistribution(metric, stats)
}

func (p *Pipeline) runDocuments(ctx context.Context, qp plan.QueryPlan) (Response, error) {
	if p.docs == nil || p.docs.Len() == 0 {
		return Response{
			Answer: "No reference documents are loaded, so I can only answer questions about the sales data.",
			Intent: qp.Intent,
		}, nil
	}
	matches, err := p.docs.Search(ctx, qp.SanitizedQuery)
	if err != nil {
		return Response{}, fmt.Errorf("search documents: %w", err)
	}
	return Response{Answer: retrieval.Render(matches), Intent: qp.Intent}, nil
}

func (p *Pipeline) runRootCause(ctx context.Context, qp plan.QueryPlan) (Response, error) {
	metric := "sales"
	if len(qp.Metrics) > 0 {
		metric = qp.Metrics[0]
	}
	report, err := p.analyzer.RootCause(ctx, metric)
	if errors.Is(err, diagnose.ErrInsufficientHistory) {
		return Response{
			Answer: "There isn't enough monthly history to explain a change yet.",
			Intent: qp.Intent,
		}, nil
	}
	if err != nil {
		return Response{}, fmt.Errorf("root cause analysis: %w", err)
	}

	response := Response{
		Answer:        report.Narrative(),
		Intent:        qp.Intent,
		Visualization: qp.Visualization,
	}
	if len(report.Drivers) > 0 {
		response.Chart = &Chart{Type: string(plan.VizRCA), Data: driversResult(report)}
	}
	return response, nil
}

func (p *Pipeline) runDecline(ctx context.Context, qp plan.QueryPlan) (Response, error) {
	metric := "sales"
	if len(qp.Metrics) > 0 {
		metric = qp.Metrics[0]
	}
	changes, err := p.analyzer.DecliningCategories(ctx, metric)
	if errors.Is(err, diagnose.ErrInsufficientHistory) {
		return Response{
			Answer: "There isn't enough monthly history to spot declining categories yet.",
			Intent: qp.Intent,
		}, nil
	}
	if err != nil {
		return Response{}, fmt.Errorf("decline analysis: %w", err)
	}
	if len(changes) == 0 {
		return Response{Answer: "No categories declined month over month.", Intent: qp.Intent}, nil
	}

	result := changesResult(metric, changes)
	return Response{
		Answer:        p.summarizer.Summarize(result),
		Intent:        qp.Intent,
		Visualization: qp.Visualization,
		Chart:         &Chart{Type: string(plan.VizDecline), Data: result},
	}, nil
}

func chartTypeFor(viz plan.Visualization) string {
	switch viz {
	case plan.VizNone, plan.VizTable:
		return ""
	default:
		return string(viz)
	}
}

func driversResult(report diagnose.Report) store.Result {
	result := store.Result{Columns: []string{"dimension", "member", "previous", "current", "delta"}}
	for _, driver := range report.Drivers {
		result.Rows = append(result.Rows, store.Row{
			"dimension": driver.Dimension,
			"member":    driver.Member,
			"previous":  driver.Previous,
			"current":   driver.Current,
			"delta":     driver.Delta,
		})
	}
	return result
}

func changesResult(metric string, changes []diagnose.CategoryChange) store.Result {
	previousColumn := "previous_" + metric
	currentColumn := "current_" + metric
	result := store.Result{Columns: []string{"category", previousColumn, currentColumn, "change"}}
	for _, change := range changes {
		result.Rows = append(result.Rows, store.Row{
			"category":     change.Category,
			previousColumn: change.Previous,
			currentColumn:  change.Current,
			"change":       change.Delta,
		})
	}
	return result
}
