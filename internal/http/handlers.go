package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"penny/internal/core"
	"penny/internal/csvimport"
	applog "penny/internal/log"
	"penny/internal/storage"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.api.ListExpenses(r.Context())
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	if expenses == nil {
		expenses = []core.Expense{}
	}
	NewJSONResponse().Body(expenses).Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := ParseExpenseID(r)
	if err != nil {
		BadRequestError(err.Error(), nil).Write(w)
		return
	}
	e, err := s.api.GetExpense(r.Context(), id)
	if err != nil {
		s.writeExpenseError(w, r, applog.OpRead, id, err)
		return
	}
	NewJSONResponse().Body(e).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	n, err := DecodeNewExpense(w, r)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	e, err := s.api.CreateExpense(r.Context(), n)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/expenses/"+strconv.FormatInt(e.ID, 10)).
		Body(e).
		Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := ParseExpenseID(r)
	if err != nil {
		BadRequestError(err.Error(), nil).Write(w)
		return
	}
	if err := s.api.DeleteExpense(r.Context(), id); err != nil {
		s.writeExpenseError(w, r, applog.OpDelete, id, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// handleUploadCSV answers 200 whenever the file was processed, even if every
// row failed. Only a file rejected as a whole is a 400.
func (s *Server) handleUploadCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ErrorResponse(http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Uploaded file exceeds %d bytes", tooLarge.Limit), nil).Write(w)
			return
		}
		BadRequestError("Required multipart field 'file' is missing", nil).Write(w)
		return
	}
	defer file.Close()

	res, err := s.api.ImportCSV(r.Context(), file)
	switch {
	case err == nil:
		NewJSONResponse().Body(res).Write(w)
	case csvimport.IsFileRejected(err):
		NewJSONResponse().Status(http.StatusBadRequest).Body(res).Write(w)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		applog.FromContext(r.Context()).WarnContext(r.Context(), "CSV import interrupted",
			applog.FieldAdded, res.Added,
			applog.FieldFailed, res.Failed)
		ErrorResponse(http.StatusServiceUnavailable, "Import interrupted", res).Write(w)
	default:
		s.writeError(w, r, applog.OpImport, err)
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	view, err := s.api.Dashboard(r.Context())
	if err != nil {
		s.writeError(w, r, applog.OpDashboard, err)
		return
	}
	NewJSONResponse().Body(view).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(s.api.Rules()).Write(w)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports ready when the store answers a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]string{"store": "ok"}
	if err := s.api.Ping(ctx); err != nil {
		status, code = "not_ready", http.StatusServiceUnavailable
		checks["store"] = "failed: " + err.Error()
	}
	NewJSONResponse().Status(code).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics writes request, rate limit and service counters in the
// Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.traceMw.GetMetrics()
	limitMetrics := s.limiter.GetMetrics()
	appMetrics := s.api.Metrics()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	writeMetric(w, "http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	writeMetric(w, "http_server_errors_total", "counter", "HTTP responses with a 5xx status", traceMetrics.ServerErrors)
	writeMetric(w, "rate_limited_requests_total", "counter", "Requests rejected by the rate limiter", limitMetrics.LimitedRequests)
	writeMetric(w, "rate_limit_active_clients", "gauge", "Clients tracked by the rate limiter", limitMetrics.ClientCount)
	writeMetric(w, "expenses_created_total", "counter", "Expenses stored by this process", appMetrics.ExpensesCreated)
	writeMetric(w, "expenses_deleted_total", "counter", "Expenses deleted by this process", appMetrics.ExpensesDeleted)
	writeMetric(w, "dashboard_cache_hits_total", "counter", "Dashboard views served from cache", appMetrics.DashboardCacheHits)
	writeMetric(w, "dashboard_cache_misses_total", "counter", "Dashboard views built from the store", appMetrics.DashboardCacheMisses)
	writeMetric(w, "dashboard_cache_size", "gauge", "Dashboard views currently cached", int64(appMetrics.DashboardCacheSize))
	writeMetric(w, "uptime_seconds", "gauge", "Seconds since the server started", int64(time.Since(s.started).Seconds()))
}

func writeMetric(w io.Writer, name, kind, help string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
	fmt.Fprintf(w, "%s %d\n\n", name, value)
}

// writeExpenseError maps a missing id to 404 before the generic mapping.
func (s *Server) writeExpenseError(w http.ResponseWriter, r *http.Request, op string, id int64, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Expense not found",
			applog.FieldExpenseID, id,
			applog.FieldOperation, op)
		NotFoundError(fmt.Sprintf("Expense not found: %d", id)).Write(w)
		return
	}
	s.writeError(w, r, op, err)
}

// writeError maps service and decoding errors to responses. Anything it does
// not recognise is logged and answered with a generic 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	var verr *core.ValidationError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &verr):
		logger.WarnContext(ctx, "Validation failed",
			applog.FieldOperation, op,
			applog.FieldErrorType, applog.ErrorTypeValidation,
			applog.FieldError, err)
		BadRequestError("Validation failed", map[string]string{verr.Field: verr.Err.Error()}).Write(w)
	case errors.As(err, &tooLarge):
		ErrorResponse(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit), nil).Write(w)
	case errors.Is(err, errMalformedJSON):
		logger.WarnContext(ctx, "Malformed request body",
			applog.FieldOperation, op,
			applog.FieldError, err)
		BadRequestError("Malformed JSON request", nil).Write(w)
	default:
		applog.NewStructuredLogger(logger).LogError(ctx, "Request failed", err, applog.ComponentHTTP, op,
			applog.NewFields().WithErrorType(applog.ErrorTypeInternal))
		InternalServerError().Write(w)
	}
}
