package e2e

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"trendscli/internal/config"
	"trendscli/internal/fetch"
	"trendscli/internal/pipeline"
	"trendscli/internal/planner"
	"trendscli/internal/series"
	"trendscli/internal/session"
	"trendscli/internal/throttle"
)

// fakeService serves canned report bodies keyed by the "date" query
// parameter, standing in for the remote trends endpoint.
type fakeService struct {
	bodies      map[string]string // date param -> CSV body
	contentType string            // overrides text/csv when set
	fallback    string            // body for unmapped date params
	requests    int
}

func (f *fakeService) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.requests++
		if r.URL.Path != "/trends/trendsReport" {
			http.NotFound(w, r)
			return
		}
		if f.contentType != "" {
			w.Header().Set("Content-Type", f.contentType)
			_, _ = io.WriteString(w, f.fallback)
			return
		}
		body, ok := f.bodies[r.URL.Query().Get("date")]
		if !ok {
			body = f.fallback
		}
		w.Header().Set("Content-Type", "text/csv; charset=UTF-8")
		_, _ = io.WriteString(w, body)
	}
}

// RunFlowTestSuite drives the full pipeline (authenticate through
// export) against an httptest stand-in for the remote service.
type RunFlowTestSuite struct {
	suite.Suite
	tempDir string
	paths   *config.Paths
	logger  *slog.Logger
}

func TestRunFlowTestSuite(t *testing.T) {
	suite.Run(t, new(RunFlowTestSuite))
}

func (s *RunFlowTestSuite) SetupTest() {
	s.tempDir = s.T().TempDir()
	s.paths = &config.Paths{
		DataDir:         s.tempDir,
		OutputDir:       s.tempDir + "/output",
		RawDir:          s.tempDir + "/raw",
		LogsDir:         s.tempDir + "/logs",
		CredentialsFile: s.tempDir + "/credentials.dat",
	}
	require.NoError(s.T(), s.paths.EnsureDirectories())
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newManager wires the standard steps against srv with a pinned clock,
// a pre-authenticated session, and no pacing delay.
func (s *RunFlowTestSuite) newManager(srv *httptest.Server, now time.Time) *pipeline.Manager {
	registry := pipeline.NewRegistry()
	manager := pipeline.NewManager(nil, registry, nil, nil, s.logger)

	deps := pipeline.StepDeps{
		Provider: &session.StaticProvider{
			Session: &session.Session{Client: srv.Client(), Domain: "example.test"},
		},
		Planner: planner.New(func() time.Time { return now }),
		FetchConfig: fetch.Config{
			URLTemplate: srv.URL + "/trends/trendsReport",
		},
		Throttle:    throttle.Spec{Mode: throttle.ModeFixed, Delay: 0},
		Paths:       s.paths,
		Reconciler:  series.NewReconciler(s.logger),
		Broadcaster: manager.GetBroadcaster(),
		Logger:      s.logger,
	}
	for _, step := range pipeline.StandardSteps(deps) {
		require.NoError(s.T(), registry.Register(step))
	}
	s.T().Cleanup(manager.Stop)
	return manager
}

func (s *RunFlowTestSuite) readOutputCSV(keyword string) [][]string {
	f, err := os.Open(fmt.Sprintf("%s/%s.csv", s.paths.OutputDir, keyword))
	require.NoError(s.T(), err)
	defer f.Close()
	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	require.NoError(s.T(), err)
	return rows
}

// A single-span run whose lone window doubles as its own anchor must
// round-trip the remote's rows into the output file unchanged.
func (s *RunFlowTestSuite) TestSingleSpanPassthrough() {
	body := "Web Search interest: golang\n" +
		"Worldwide; Jan 2020 - Mar 2020\n" +
		"\n" +
		"Interest over time\n" +
		"Date,golang\n" +
		"2020-01,10\n" +
		"2020-02,40\n" +
		"2020-03,20\n" +
		"\n"
	svc := &fakeService{bodies: map[string]string{"01/2020 2m": body}, fallback: body}
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	manager := s.newManager(srv, time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC))

	resp, err := manager.Execute(context.Background(), pipeline.RunRequest{
		Keywords: []string{"golang"},
		Mode:     planner.ModeSingle,
		Start:    time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC),
		Options:  pipeline.RunOptions{NoResolve: true},
	})
	require.NoError(s.T(), err)
	require.Equal(s.T(), pipeline.RunStatusCompleted, resp.Status)

	rows := s.readOutputCSV("golang")
	require.Equal(s.T(), [][]string{
		{"Date", "golang", "Search term"},
		{"2020-01-01", "10.00"},
		{"2020-02-01", "40.00"},
		{"2020-03-01", "20.00"},
	}, rows)

	// one fetch: the single window doubles as its own anchor
	s.Equal(1, svc.requests)
}

// A quarterly run fetches every window plus the anchor and rescales
// each window's ratio chain by the anchor's magnitude.
func (s *RunFlowTestSuite) TestQuartersReconciliation() {
	report := func(rows string) string {
		return "Interest over time\nDate,golang\n" + rows + "\n"
	}
	svc := &fakeService{
		bodies: map[string]string{
			"01/2020 3m": report("2020-01,50\n2020-02,100\n2020-03,25\n"),
			"04/2020 3m": report("2020-04,20\n2020-05,40\n2020-06,40\n"),
			"01/2020 6m": report("2020-01,10\n2020-03,20\n2020-06,40\n"),
		},
	}
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	manager := s.newManager(srv, time.Date(2020, time.July, 1, 0, 0, 0, 0, time.UTC))

	_, err := manager.Execute(context.Background(), pipeline.RunRequest{
		Keywords: []string{"golang"},
		Mode:     planner.ModeQuarters,
		Start:    time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		Options:  pipeline.RunOptions{NoResolve: true, QuietIO: true},
	})
	require.NoError(s.T(), err)

	// two quarter windows plus the anchor query
	s.Equal(3, svc.requests)

	rows := s.readOutputCSV("golang")
	require.NotEmpty(s.T(), rows)
	s.Equal([]string{"Date", "golang"}, rows[0])

	// daily grid Jan 1 - Mar 1 plus Apr 1 - Jun 1; the Mar 2 - Mar 31
	// gap has no window multiplier and is absent from the output
	s.Len(rows[1:], 61+62)

	byDate := make(map[string]string, len(rows)-1)
	for _, row := range rows[1:] {
		byDate[row[0]] = row[1]
	}
	s.Equal("10.00", byDate["2020-01-01"]) // anchor 10 x delta 1.0
	s.Equal("30.33", byDate["2020-02-01"]) // anchor 15.17 x delta 2.0
	s.Equal("10.00", byDate["2020-03-01"]) // anchor 20 x delta 0.5
	s.Equal("26.74", byDate["2020-04-01"]) // interpolated anchor x delta 1.0
	s.Equal("80.00", byDate["2020-06-01"]) // anchor 40 x delta 2.0
	s.NotContains(byDate, "2020-03-15")
}

// A window the remote reports as unavailable becomes a single zero
// sample at the window start; the run still completes.
func (s *RunFlowTestSuite) TestNoDataWindowZeroFilled() {
	svc := &fakeService{
		contentType: "text/html; charset=UTF-8",
		fallback:    "<html><body>The requested data is currently unavailable.</body></html>",
	}
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	manager := s.newManager(srv, time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC))

	_, err := manager.Execute(context.Background(), pipeline.RunRequest{
		Keywords: []string{"obscurity"},
		Mode:     planner.ModeSingle,
		Start:    time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC),
		Options:  pipeline.RunOptions{NoResolve: true, QuietIO: true},
	})
	require.NoError(s.T(), err)

	rows := s.readOutputCSV("obscurity")
	require.Equal(s.T(), [][]string{
		{"Date", "obscurity"},
		{"2020-01-01", "0.00"},
	}, rows)
}

// A quota page aborts the run with the quota sentinel instead of being
// written out as data.
func (s *RunFlowTestSuite) TestQuotaAbortsRun() {
	svc := &fakeService{
		contentType: "text/html; charset=UTF-8",
		fallback:    "<html><body>You have reached your quota limit. Please try again later.</body></html>",
	}
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	manager := s.newManager(srv, time.Date(2020, time.July, 1, 0, 0, 0, 0, time.UTC))

	_, err := manager.Execute(context.Background(), pipeline.RunRequest{
		Keywords: []string{"golang"},
		Mode:     planner.ModeQuarters,
		Start:    time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		Options:  pipeline.RunOptions{NoResolve: true},
	})
	require.Error(s.T(), err)
	s.True(errors.Is(err, fetch.ErrQuotaExhausted))

	// the first window tripped the quota; no further fetches went out
	s.Equal(1, svc.requests)
	_, statErr := os.Stat(s.paths.OutputDir + "/golang.csv")
	s.True(os.IsNotExist(statErr))
}
