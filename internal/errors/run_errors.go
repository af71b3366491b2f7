package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// Run and session errors (using errors package for sentinel errors)
var (
	ErrRunUnknown         = errors.New("run not found")
	ErrRunInProgress      = errors.New("run already in progress")
	ErrRunAborted         = errors.New("run aborted")
	ErrRunFinished        = errors.New("run already finished")
	ErrSessionExpired     = errors.New("session expired")
	ErrAuthFailed         = errors.New("authentication failed")
	ErrCredentialsMissing = errors.New("credentials not configured")
	ErrUpstreamQuota      = errors.New("upstream quota exhausted")
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
)

// RunFailureDetails provides additional context for run errors
type RunFailureDetails struct {
	RunID         string     `json:"run_id,omitempty"`
	Mode          string     `json:"mode,omitempty"`
	Keyword       string     `json:"keyword,omitempty"`
	WindowStart   string     `json:"window_start,omitempty"`
	WindowEnd     string     `json:"window_end,omitempty"`
	WindowsDone   int        `json:"windows_done,omitempty"`
	WindowsTotal  int        `json:"windows_total,omitempty"`
	TrippedAt     *time.Time `json:"tripped_at,omitempty"`
	RetryAfterSec int        `json:"retry_after_sec,omitempty"`
}

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Additional fields for extensibility
	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON custom marshaler to include extensions
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{})

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status

	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	for k, v := range pd.Extensions {
		data[k] = v
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// NewQuotaExceededError creates an enhanced error for exhausted upstream quotas.
// The quota is account-scoped, so the caller gets a retry hint rather than an
// invitation to resubmit immediately.
func NewQuotaExceededError(details *RunFailureDetails, traceID string) *ProblemDetails {
	problem := NewProblemDetails(
		http.StatusTooManyRequests,
		"/errors/quota-exhausted",
		"Upstream Quota Exhausted",
		"The remote service reported that the query quota for this account is exhausted. Wait before starting another run.",
		fmt.Sprintf("/api/v1/runs#%s", traceID),
	)

	retryAfter := 3600
	if details != nil && details.RetryAfterSec > 0 {
		retryAfter = details.RetryAfterSec
	}

	problem.WithExtension("error_type", "quota_exhausted").
		WithExtension("trace_id", traceID).
		WithExtension("retry_after", retryAfter)

	if details != nil {
		if details.RunID != "" {
			problem.WithExtension("run_id", details.RunID)
		}
		if details.Keyword != "" {
			problem.WithExtension("keyword", details.Keyword)
		}
		if details.WindowStart != "" && details.WindowEnd != "" {
			problem.WithExtension("tripped_window", fmt.Sprintf("%s/%s", details.WindowStart, details.WindowEnd))
		}
		if details.WindowsTotal > 0 {
			problem.WithExtension("windows_done", details.WindowsDone)
			problem.WithExtension("windows_total", details.WindowsTotal)
		}
		if details.TrippedAt != nil {
			problem.WithExtension("tripped_at", details.TrippedAt.Format("2006-01-02T15:04:05Z"))
		}
	}

	return problem
}

// NewRunConflictError creates an error for a run submitted while another is active
func NewRunConflictError(details *RunFailureDetails, traceID string) *ProblemDetails {
	problem := NewProblemDetails(
		http.StatusConflict,
		"/errors/run-already-in-progress",
		"Run Already In Progress",
		"Another run is currently executing. Wait for it to finish or cancel it before starting a new one.",
		fmt.Sprintf("/api/v1/runs#%s", traceID),
	)

	problem.WithExtension("error_type", "run_in_progress").
		WithExtension("trace_id", traceID)

	if details != nil {
		if details.RunID != "" {
			problem.WithExtension("active_run_id", details.RunID)
		}
		if details.Mode != "" {
			problem.WithExtension("active_run_mode", details.Mode)
		}
		if details.WindowsTotal > 0 {
			problem.WithExtension("windows_done", details.WindowsDone)
			problem.WithExtension("windows_total", details.WindowsTotal)
		}
	}

	return problem
}

// MapRunError maps domain errors to HTTP problem details
func MapRunError(err error, traceID string) render.Renderer {
	instance := fmt.Sprintf("/api/v1/runs#trace-%s", traceID)

	// Check if it's an APIError from errors.go
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorCode == "RUN_NOT_FOUND" {
			return NewProblemDetails(
				http.StatusNotFound,
				"/errors/run-not-found",
				"Run Not Found",
				"No run with the given ID exists.",
				instance,
			).WithExtension("trace_id", traceID).
				WithExtension("error_code", "RUN_NOT_FOUND")
		}
	}

	switch {
	case errors.Is(err, ErrRunUnknown):
		return NewProblemDetails(
			http.StatusNotFound,
			"/errors/run-not-found",
			"Run Not Found",
			"No run with the given ID exists.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "RUN_NOT_FOUND")

	case errors.Is(err, ErrRunInProgress):
		return NewRunConflictError(nil, traceID)

	case errors.Is(err, ErrUpstreamQuota):
		return NewQuotaExceededError(nil, traceID)

	case errors.Is(err, ErrRunAborted):
		return NewProblemDetails(
			http.StatusConflict,
			"/errors/run-aborted",
			"Run Aborted",
			"The run was cancelled before it completed.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "RUN_ABORTED")

	case errors.Is(err, ErrRunFinished):
		return NewProblemDetails(
			http.StatusConflict,
			"/errors/run-already-finished",
			"Run Already Finished",
			"The run reached a terminal state; there is nothing to cancel.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "RUN_FINISHED")

	case errors.Is(err, ErrSessionExpired):
		return NewProblemDetails(
			http.StatusUnauthorized,
			"/errors/session-expired",
			"Session Expired",
			"The authenticated session has expired. Re-authenticate and try again.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "SESSION_EXPIRED")

	case errors.Is(err, ErrAuthFailed):
		return NewProblemDetails(
			http.StatusUnauthorized,
			"/errors/authentication-failed",
			"Authentication Failed",
			"Sign-in to the remote service was rejected. Verify the stored credentials.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "AUTH_FAILED")

	case errors.Is(err, ErrCredentialsMissing):
		return NewProblemDetails(
			http.StatusPreconditionRequired,
			"/errors/credentials-not-configured",
			"Credentials Not Configured",
			"No credentials have been stored. Run the auth init command before starting runs.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "CREDENTIALS_NOT_CONFIGURED")

	case errors.Is(err, ErrUpstreamUnreachable):
		return NewProblemDetails(
			http.StatusServiceUnavailable,
			"/errors/upstream-unreachable",
			"Upstream Unreachable",
			"Unable to connect to the remote service. Please check your connection.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "UPSTREAM_UNREACHABLE")

	default:
		// Generic error
		return NewProblemDetails(
			http.StatusInternalServerError,
			"/errors/internal-error",
			"Internal Server Error",
			"An unexpected error occurred while processing your request.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "INTERNAL_ERROR")
	}
}
