package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/salescope/salescope/internal/pipeline"
	"github.com/salescope/salescope/internal/plan"
	"github.com/salescope/salescope/internal/store"
)

type historyTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type queryRequest struct {
	Query   string        `json:"query"`
	History []historyTurn `json:"history"`
}

type queryResponse struct {
	Answer        string          `json:"answer"`
	Intent        string          `json:"intent"`
	Visualization string          `json:"visualization,omitempty"`
	Chart         *pipeline.Chart `json:"chart,omitempty"`
	Rows          []store.Row     `json:"rows,omitempty"`
}

const maxHistoryTurns = 20

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant is not configured", false, nil)
		return
	}

	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Query) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_REQUIRED", "query is required", false, nil)
		return
	}

	history := request.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	turns := make([]plan.Turn, 0, len(history))
	for _, turn := range history {
		turns = append(turns, plan.Turn{Role: turn.Role, Content: turn.Content})
	}

	response, err := deps.Assistant.Handle(r.Context(), request.Query, turns)
	if err != nil {
		if errors.Is(err, store.ErrSecurityViolation) {
			writeError(r.Context(), w, http.StatusBadRequest, "QUERY_NOT_ALLOWED", "only read-only queries are allowed", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "QUERY_FAILED", "failed to answer query", true, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Answer:        response.Answer,
		Intent:        string(response.Intent),
		Visualization: string(response.Visualization),
		Chart:         response.Chart,
		Rows:          response.Rows,
	})
}

type reportResponse struct {
	Columns []string    `json:"columns"`
	Rows    []store.Row `json:"rows"`
}

func handleReport(deps Dependencies, w http.ResponseWriter, r *http.Request, run func(ctx context.Context) (store.Result, error)) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant is not configured", false, nil)
		return
	}
	result, err := run(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "REPORT_FAILED", "failed to build report", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{Columns: result.Columns, Rows: result.Rows})
}

func handleTopProducts(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", false, nil)
			return
		}
		limit = parsed
	}
	handleReport(deps, w, r, func(ctx context.Context) (store.Result, error) {
		return deps.Assistant.TopProducts(ctx, limit)
	})
}
