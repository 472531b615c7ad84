package plan

import (
	"context"
	"strings"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of the conversation history, newest last.
type Turn struct {
	Role    string
	Content string
}

// vizOnlyMaxWords bounds how short a turn must be to count as a pure
// chart-switch request ("make it a pie chart").
const vizOnlyMaxWords = 6

// recoverContext merges slots from the most recent substantive user turn
// when the current turn is a chart-switch follow-up: an explicit chart
// request that carries no grouping of its own. The new turn keeps its own
// visualization and sanitized text; intent, filters, metrics, grouping,
// and limit come from the recovered turn.
func (e *Extractor) recoverContext(ctx context.Context, current QueryPlan, explicitViz bool, query string, history []Turn) (QueryPlan, bool) {
	if !explicitViz || len(current.GroupBy) > 0 {
		return current, false
	}
	switch current.Intent {
	case IntentList, IntentUnknown, IntentAggregate:
	default:
		return current, false
	}

	prior, ok := priorSubstantiveTurn(query, history)
	if !ok {
		return current, false
	}

	recovered, err := e.Extract(ctx, prior, nil)
	if err != nil {
		return current, false
	}
	if len(recovered.GroupBy) == 0 && recovered.Filters.Empty() {
		return current, false
	}

	merged := recovered
	merged.Visualization = current.Visualization
	merged.SanitizedQuery = current.SanitizedQuery
	return merged, true
}

// priorSubstantiveTurn walks the history newest-first and returns the most
// recent user turn that is neither the current query nor another pure
// chart-switch request.
func priorSubstantiveTurn(query string, history []Turn) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		turn := history[i]
		if turn.Role != RoleUser {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(turn.Content), strings.TrimSpace(query)) {
			continue
		}
		if isVizOnlyTurn(turn.Content) {
			continue
		}
		return turn.Content, true
	}
	return "", false
}

func isVizOnlyTurn(content string) bool {
	lowered := strings.ToLower(content)
	if viz, explicit := extractVisualization(lowered); !explicit || viz == VizNone {
		return false
	}
	return len(strings.Fields(content)) < vizOnlyMaxWords
}
