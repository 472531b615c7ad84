// Package api exposes the assistant over HTTP: a chat endpoint, canned
// analytics reports, and the health/readiness/metrics surface.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/salescope/salescope/internal/config"
	"github.com/salescope/salescope/internal/observability"
	"github.com/salescope/salescope/internal/pipeline"
	"github.com/salescope/salescope/internal/plan"
	"github.com/salescope/salescope/internal/store"
)

type ReadinessCheck func(ctx context.Context) error

// Assistant is the pipeline surface the handlers need.
type Assistant interface {
	Handle(ctx context.Context, query string, history []plan.Turn) (pipeline.Response, error)
	MonthlySales(ctx context.Context) (store.Result, error)
	RegionalPerformance(ctx context.Context) (store.Result, error)
	TopProducts(ctx context.Context, limit int) (store.Result, error)
	DecliningCategoryReport(ctx context.Context) (store.Result, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Assistant         Assistant
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(deps, w, r)
	})
	mux.HandleFunc("GET /v1/analytics/monthly-sales", func(w http.ResponseWriter, r *http.Request) {
		handleReport(deps, w, r, func(ctx context.Context) (store.Result, error) {
			return deps.Assistant.MonthlySales(ctx)
		})
	})
	mux.HandleFunc("GET /v1/analytics/regional-performance", func(w http.ResponseWriter, r *http.Request) {
		handleReport(deps, w, r, func(ctx context.Context) (store.Result, error) {
			return deps.Assistant.RegionalPerformance(ctx)
		})
	})
	mux.HandleFunc("GET /v1/analytics/declining-categories", func(w http.ResponseWriter, r *http.Request) {
		handleReport(deps, w, r, func(ctx context.Context) (store.Result, error) {
			return deps.Assistant.DecliningCategoryReport(ctx)
		})
	})
	mux.HandleFunc("GET /v1/analytics/top-products", func(w http.ResponseWriter, r *http.Request) {
		handleTopProducts(deps, w, r)
	})

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckStore verifies the SQL store answers a trivial query.
func CheckStore(st store.Store) ReadinessCheck {
	return func(ctx context.Context) error {
		_, err := st.Query(ctx, store.Statement{SQL: "SELECT 1"})
		return err
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
