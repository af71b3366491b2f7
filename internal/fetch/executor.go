// Package fetch issues the rate-limited, session-authenticated report
// queries and classifies what comes back.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"trendscli/internal/session"
	"trendscli/internal/throttle"
	"trendscli/pkg/contracts/domain"
)

// DefaultURLTemplate is the report endpoint; "{domain}" is substituted
// with the session's resolved domain.
const DefaultURLTemplate = "https://www.{domain}/trends/trendsReport"

// Config carries the per-run fetch settings.
type Config struct {
	URLTemplate string
	UserAgent   string
}

// Executor performs one window query at a time through its run's
// session and limiter. It owns no retry logic: transport failures and
// quota conditions surface to the caller untouched.
type Executor struct {
	session *session.Session
	limiter *throttle.Limiter
	quota   *domain.QuotaState
	cfg     Config
	logger  *slog.Logger
}

// NewExecutor wires an executor to its run-scoped collaborators. The
// quota state must be the run's own; sharing it across runs would let
// one run's quota trip starve another.
func NewExecutor(sess *session.Session, limiter *throttle.Limiter, quota *domain.QuotaState, cfg Config, logger *slog.Logger) *Executor {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = DefaultURLTemplate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		session: sess,
		limiter: limiter,
		quota:   quota,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "executor")),
	}
}

// Execute fetches one window. It fails fast with a QuotaError when the
// run's quota state is already tripped, waits on the limiter exactly
// once, then issues a single GET with redirects followed.
func (e *Executor) Execute(ctx context.Context, params domain.QueryParameters) (*domain.RawResponse, error) {
	if e.quota.Tripped() {
		return nil, &QuotaError{Window: params.Window}
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("throttle wait aborted: %w", err)
	}

	reqURL := e.requestURL(params)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build report request: %w", err)
	}
	if e.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", e.cfg.UserAgent)
	}

	resp, err := e.session.Client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "query", URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "read", URL: reqURL, Err: err}
	}

	e.logger.DebugContext(ctx, "window fetched",
		slog.String("window", params.Window.String()),
		slog.Int("status", resp.StatusCode),
		slog.String("content_type", resp.Header.Get("Content-Type")),
		slog.Int("bytes", len(body)))

	return &domain.RawResponse{
		Window:      params.Window,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// requestURL renders the report URL for one query: the term list, the
// "<MM/YYYY> <N>m" date argument, the export switches and the optional
// category filter.
func (e *Executor) requestURL(params domain.QueryParameters) string {
	base := strings.ReplaceAll(e.cfg.URLTemplate, "{domain}", e.session.Domain)

	topics := make([]string, len(params.Terms))
	for i, t := range params.Terms {
		topics[i] = t.Topic
	}

	q := url.Values{}
	q.Set("q", strings.Join(topics, ", "))
	q.Set("date", params.DateParam())
	q.Set("export", strconv.Itoa(params.Export))
	q.Set("content", strconv.Itoa(params.Content))
	if params.Category != "" {
		q.Set("cat", params.Category)
	}

	return base + "?" + q.Encode()
}
