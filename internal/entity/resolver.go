// Package entity maps raw keywords to canonical query terms. The remote
// suggests entities for a free-text query; the resolver filters them
// through a two-tier type whitelist and falls back to querying the raw
// text when nothing acceptable comes back.
package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"trendscli/internal/session"
	"trendscli/pkg/contracts/domain"
)

// DefaultURLTemplate is the entity suggestion endpoint; "{domain}" is
// substituted with the session's resolved domain.
const DefaultURLTemplate = "https://www.{domain}/trends/entitiesQuery"

// Resolver turns one raw keyword into its queryable terms. A keyword
// may yield more than one canonical candidate; the default resolver
// returns exactly one, preferring primary-type entities, and never
// returns an empty slice: unresolvable keywords become literal search
// terms.
type Resolver interface {
	Resolve(ctx context.Context, raw string) ([]domain.QueryTerm, error)
}

// Config carries the resolver's endpoint settings.
type Config struct {
	URLTemplate string
	UserAgent   string
}

// HTTPResolver queries the remote's entity endpoint through the run's
// authenticated session.
type HTTPResolver struct {
	session *session.Session
	cfg     Config
	logger  *slog.Logger
}

// NewHTTPResolver builds the production resolver.
func NewHTTPResolver(sess *session.Session, cfg Config, logger *slog.Logger) *HTTPResolver {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = DefaultURLTemplate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPResolver{
		session: sess,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "resolver")),
	}
}

// entityList mirrors the endpoint's JSON response.
type entityList struct {
	Entities []entityCandidate `json:"entityList"`
}

type entityCandidate struct {
	MID   string `json:"mid"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// Resolve queries the suggestion endpoint and picks the first
// primary-type candidate, else the first backup-type candidate, else
// the raw text as a literal search term.
func (r *HTTPResolver) Resolve(ctx context.Context, raw string) ([]domain.QueryTerm, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("cannot resolve empty keyword")
	}

	list, err := r.query(ctx, raw)
	if err != nil {
		return nil, err
	}

	if term, ok := pick(list.Entities); ok {
		r.logger.DebugContext(ctx, "keyword resolved",
			slog.String("keyword", raw),
			slog.String("topic", term.Topic),
			slog.String("type", term.Desc))
		return []domain.QueryTerm{term}, nil
	}

	r.logger.DebugContext(ctx, "keyword kept as search term",
		slog.String("keyword", raw),
		slog.Int("candidates", len(list.Entities)))
	return []domain.QueryTerm{domain.NewSearchTerm(raw)}, nil
}

func (r *HTTPResolver) query(ctx context.Context, raw string) (*entityList, error) {
	base := strings.ReplaceAll(r.cfg.URLTemplate, "{domain}", r.session.Domain)
	reqURL := base + "?q=" + url.QueryEscape(raw)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build entity request: %w", err)
	}
	if r.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", r.cfg.UserAgent)
	}

	resp, err := r.session.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("entity query for %q failed: %w", raw, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read entity response for %q: %w", raw, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("entity query for %q returned status %d", raw, resp.StatusCode)
	}

	var list entityList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to decode entity response for %q: %w", raw, err)
	}
	return &list, nil
}

// pick applies the two-tier selection over candidates in result order.
func pick(candidates []entityCandidate) (domain.QueryTerm, bool) {
	var backup *entityCandidate
	for i, c := range candidates {
		if c.MID == "" {
			continue
		}
		if isPrimaryType(c.Type) {
			return toTerm(c), true
		}
		if backup == nil && isBackupType(c.Type) {
			backup = &candidates[i]
		}
	}
	if backup != nil {
		return toTerm(*backup), true
	}
	return domain.QueryTerm{}, false
}

func toTerm(c entityCandidate) domain.QueryTerm {
	return domain.QueryTerm{Topic: c.MID, Title: c.Title, Desc: c.Type}
}

// StaticResolver passes raw keywords through unchanged as literal
// search terms. It backs the no-resolve mode and offline tooling.
type StaticResolver struct{}

// Resolve returns the raw keyword as a search term.
func (StaticResolver) Resolve(_ context.Context, raw string) ([]domain.QueryTerm, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("cannot resolve empty keyword")
	}
	return []domain.QueryTerm{domain.NewSearchTerm(raw)}, nil
}
