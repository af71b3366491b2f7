// Package session establishes the authenticated HTTP session every run
// queries through. The remote gates its report export behind a classic
// form login; authentication yields a cookie-jarred client plus the
// service domain resolved from the login redirect, which the query URL
// template substitutes.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ErrAuthFailed means the remote rejected the credentials: the login
// round-trip completed but no session cookie came back.
var ErrAuthFailed = errors.New("authentication rejected by remote")

// DefaultDomain is used when the login redirect yields no usable host.
const DefaultDomain = "google.com"

// authCookie is the session cookie the remote issues on success.
const authCookie = "SID"

// Session is one authenticated connection to the service. The client
// carries the login cookies; Domain substitutes into URL templates.
// Sessions belong to exactly one run and are never shared.
type Session struct {
	Client *http.Client
	Domain string
}

// Provider yields authenticated sessions. The form implementation
// below is the production path; tests and offline tools substitute a
// static one.
type Provider interface {
	Authenticate(ctx context.Context) (*Session, error)
}

// Credentials is the account used for form login.
type Credentials struct {
	Username string
	Password string
}

// Config drives the login flow. AuthURL may contain a "{domain}"
// placeholder filled with the domain resolved from the login redirect.
type Config struct {
	LoginURL  string
	AuthURL   string
	Timeout   time.Duration
	UserAgent string
}

// FormProvider performs the two-step form login: fetch the login page
// to collect the anti-forgery token and initial cookies, then post the
// credentials to the auth endpoint.
type FormProvider struct {
	creds  Credentials
	cfg    Config
	logger *slog.Logger
}

// NewFormProvider builds the production session provider.
func NewFormProvider(creds Credentials, cfg Config, logger *slog.Logger) *FormProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &FormProvider{
		creds:  creds,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "session")),
	}
}

// galxPattern matches the hidden anti-forgery input on the login page,
// in either attribute order.
var (
	galxPattern        = regexp.MustCompile(`name="GALX"[^>]*value="([^"]+)"`)
	galxPatternValName = regexp.MustCompile(`value="([^"]+)"[^>]*name="GALX"`)
)

// Authenticate runs the login flow and returns the session on success.
func (p *FormProvider) Authenticate(ctx context.Context) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	client := &http.Client{Jar: jar, Timeout: p.cfg.Timeout}

	body, finalURL, err := p.fetchLoginPage(ctx, client)
	if err != nil {
		return nil, err
	}

	domain := resolveDomain(finalURL)
	token := extractToken(body)

	authURL := strings.ReplaceAll(p.cfg.AuthURL, "{domain}", domain)
	if err := p.postCredentials(ctx, client, authURL, token); err != nil {
		return nil, err
	}

	if !hasAuthCookie(jar, authURL) {
		p.logger.WarnContext(ctx, "login round-trip completed without session cookie",
			slog.String("domain", domain))
		return nil, ErrAuthFailed
	}

	p.logger.InfoContext(ctx, "session established",
		slog.String("domain", domain),
		slog.String("user", p.creds.Username))

	return &Session{Client: client, Domain: domain}, nil
}

func (p *FormProvider) fetchLoginPage(ctx context.Context, client *http.Client) (string, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.LoginURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to build login request: %w", err)
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to fetch login page: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read login page: %w", err)
	}
	return string(body), resp.Request.URL, nil
}

func (p *FormProvider) postCredentials(ctx context.Context, client *http.Client, authURL, token string) error {
	form := url.Values{}
	form.Set("Email", p.creds.Username)
	form.Set("Passwd", p.creds.Password)
	if token != "" {
		form.Set("GALX", token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post credentials: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return nil
}

func extractToken(body string) string {
	if m := galxPattern.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	if m := galxPatternValName.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	return ""
}

// resolveDomain derives the service domain from the host the login
// flow landed on: "accounts.google.com.au" resolves to
// "google.com.au". Regional hosts matter because the report URL is
// built per domain.
func resolveDomain(u *url.URL) string {
	if u == nil || u.Host == "" {
		return DefaultDomain
	}
	host := u.Hostname()
	for _, prefix := range []string{"accounts.", "www."} {
		host = strings.TrimPrefix(host, prefix)
	}
	if host == "" {
		return DefaultDomain
	}
	return host
}

func hasAuthCookie(jar http.CookieJar, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	for _, c := range jar.Cookies(u) {
		if c.Name == authCookie && c.Value != "" {
			return true
		}
	}
	return false
}

// StaticProvider returns a pre-built session unchanged. Offline tools
// and tests use it where no login is possible or wanted.
type StaticProvider struct {
	Session *Session
}

// Authenticate returns the wrapped session.
func (s *StaticProvider) Authenticate(context.Context) (*Session, error) {
	if s.Session == nil {
		return nil, errors.New("static provider has no session")
	}
	return s.Session, nil
}
