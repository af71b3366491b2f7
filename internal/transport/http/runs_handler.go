package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	runErrors "trendscli/internal/errors"
	"trendscli/internal/infrastructure"
	"trendscli/internal/middleware"
	"trendscli/internal/pipeline"
	"trendscli/internal/planner"
	v1 "trendscli/pkg/contracts/api/v1"
)

// RunsHandler handles run-related HTTP requests
type RunsHandler struct {
	service RunServiceInterface
	logger  *slog.Logger
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(service RunServiceInterface, logger *slog.Logger) *RunsHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RunsHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "runs")),
	}
}

// Routes returns a chi router for run endpoints
func (h *RunsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.StartRun)
	r.Get("/", h.ListRuns)
	r.Get("/{id}", h.GetRun)
	r.Delete("/{id}", h.CancelRun)

	return r
}

// StartRun handles POST /api/v1/runs
func (h *RunsHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)
	tracer := otel.Tracer("runs-handler")

	ctx, span := tracer.Start(ctx, "runs_handler.start_run",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/v1/runs"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	h.logger.InfoContext(ctx, "run start request",
		slog.String("request_id", reqID),
		slog.String("trace_id", infrastructure.TraceIDFromContext(ctx)))

	data := &v1.StartRunRequest{}
	if err := render.Bind(r, data); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "request_validation"))

		h.logger.ErrorContext(ctx, "failed to bind run request",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID))

		problem := runErrors.NewProblemDetails(
			http.StatusBadRequest,
			"/errors/validation-failed",
			"Validation Failed",
			err.Error(),
			r.URL.Path+"#"+reqID,
		).WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx))

		render.Render(w, r, problem)
		return
	}

	// The manager mints the run id; header-supplied request ids never
	// become resource ids.
	req := pipeline.RunRequest{
		Keywords: data.Keywords,
		Mode:     planner.Mode(data.Mode),
		Start:    data.StartDate(),
		End:      data.EndDate(),
		Anchor:   data.AnchorDate(),
		Options: pipeline.RunOptions{
			Category:         data.Category,
			OutputName:       data.OutputName,
			NoResolve:        data.NoResolve,
			KeepRaw:          data.KeepRaw,
			XLSX:             data.XLSX,
			DegradedZeroFill: data.ZeroFill,
		},
	}

	span.SetAttributes(
		attribute.String("run.mode", data.Mode),
		attribute.Int("run.keywords_count", len(data.Keywords)),
	)

	snap, err := h.service.StartRun(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run admission failed")

		h.logger.ErrorContext(ctx, "run admission failed",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID))

		if pipeline.GetErrorType(err) == pipeline.ErrorTypeValidation {
			problem := runErrors.NewProblemDetails(
				http.StatusBadRequest,
				"/errors/validation-failed",
				"Validation Failed",
				err.Error(),
				r.URL.Path+"#"+reqID,
			).WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx))

			render.Render(w, r, problem)
			return
		}

		render.Render(w, r, runErrors.MapRunError(err, infrastructure.TraceIDFromContext(ctx)))
		return
	}

	span.SetAttributes(attribute.String("run.id", snap.RunID))

	h.logger.InfoContext(ctx, "run accepted",
		slog.String("run_id", snap.RunID),
		slog.String("mode", data.Mode),
		slog.String("request_id", reqID))

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]interface{}{
		"run_id":   snap.RunID,
		"status":   snap.Status,
		"message":  "Run accepted for processing",
		"poll_url": "/api/v1/runs/" + snap.RunID,
	})
}

// GetRun handles GET /api/v1/runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "id")
	reqID := middleware.GetReqID(ctx)
	tracer := otel.Tracer("runs-handler")

	ctx, span := tracer.Start(ctx, "runs_handler.get_run",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/v1/runs/{id}"),
			attribute.String("run.id", runID),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	h.logger.DebugContext(ctx, "run status request",
		slog.String("run_id", runID),
		slog.String("request_id", reqID))

	snap, err := h.service.GetRun(ctx, runID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run lookup failed")

		h.logger.WarnContext(ctx, "run lookup failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
			slog.String("request_id", reqID))

		render.Render(w, r, runErrors.MapRunError(err, infrastructure.TraceIDFromContext(ctx)))
		return
	}

	span.SetAttributes(
		attribute.String("run.status", string(snap.Status)),
		attribute.Int("run.progress", snap.Progress),
	)

	render.JSON(w, r, snap)
}

// ListRuns handles GET /api/v1/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)
	tracer := otel.Tracer("runs-handler")

	ctx, span := tracer.Start(ctx, "runs_handler.list_runs",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/v1/runs"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	query := &v1.RunListRequest{Status: r.URL.Query().Get("status")}
	if err := query.Validate(); err != nil {
		span.RecordError(err)

		problem := runErrors.NewProblemDetails(
			http.StatusBadRequest,
			"/errors/validation-failed",
			"Validation Failed",
			err.Error(),
			r.URL.Path+"#"+reqID,
		).WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx)).
			WithExtension("valid_statuses", []string{"pending", "running", "completed", "failed", "cancelled"})

		render.Render(w, r, problem)
		return
	}

	h.logger.DebugContext(ctx, "listing runs",
		slog.String("status_filter", query.Status),
		slog.String("request_id", reqID))

	snaps := h.service.ListRuns(ctx)
	if query.Status != "" {
		filtered := snaps[:0]
		for _, snap := range snaps {
			if snap.Status == pipeline.RunStatusValue(query.Status) {
				filtered = append(filtered, snap)
			}
		}
		snaps = filtered
		span.SetAttributes(attribute.String("filter.status", query.Status))
	}

	span.SetAttributes(attribute.Int("runs.count", len(snaps)))

	render.JSON(w, r, map[string]interface{}{
		"runs":  snaps,
		"count": len(snaps),
	})
}

// CancelRun handles DELETE /api/v1/runs/{id}
func (h *RunsHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "id")
	reqID := middleware.GetReqID(ctx)
	tracer := otel.Tracer("runs-handler")

	ctx, span := tracer.Start(ctx, "runs_handler.cancel_run",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/v1/runs/{id}"),
			attribute.String("run.id", runID),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	h.logger.InfoContext(ctx, "run cancel request",
		slog.String("run_id", runID),
		slog.String("request_id", reqID),
		slog.String("trace_id", infrastructure.TraceIDFromContext(ctx)))

	cancelCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := h.service.CancelRun(cancelCtx, runID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run cancellation failed")

		h.logger.ErrorContext(ctx, "failed to cancel run",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
			slog.String("request_id", reqID))

		render.Render(w, r, runErrors.MapRunError(err, infrastructure.TraceIDFromContext(ctx)))
		return
	}

	h.logger.InfoContext(ctx, "run cancellation accepted",
		slog.String("run_id", runID),
		slog.String("request_id", reqID))

	render.JSON(w, r, map[string]string{
		"message": "Run cancellation requested",
	})
}
