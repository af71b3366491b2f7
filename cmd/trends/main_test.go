package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendscli/internal/config"
	"trendscli/internal/pipeline"
	"trendscli/internal/planner"
	"trendscli/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCollectJobs(t *testing.T) {
	tests := []struct {
		name        string
		mode        string
		keywordsCSV string
		keywordFile string
		anchorFile  string
		start       string
		end         string
		anchor      string
		wantErr     string
		validate    func(t *testing.T, jobs []job)
	}{
		{
			name:        "csv keywords share the global span",
			mode:        "quarters",
			keywordsCSV: "solar power, wind power, solar power,",
			start:       "2024-01-01",
			validate: func(t *testing.T, jobs []job) {
				require.Len(t, jobs, 2)
				assert.Equal(t, "solar power", jobs[0].keyword)
				assert.Equal(t, "wind power", jobs[1].keyword)
				for _, jb := range jobs {
					assert.Equal(t, planner.ModeQuarters, jb.mode)
					assert.Equal(t, 2024, jb.start.Year())
					assert.Empty(t, jb.outputName)
				}
			},
		},
		{
			name:        "keyword file merges with csv and skips comments",
			mode:        "years",
			keywordsCSV: "solar power",
			keywordFile: "# portfolio\n\nwind power\nsolar power\n",
			start:       "2023-06-01",
			validate: func(t *testing.T, jobs []job) {
				require.Len(t, jobs, 2)
				assert.Equal(t, "solar power", jobs[0].keyword)
				assert.Equal(t, "wind power", jobs[1].keyword)
			},
		},
		{
			name:       "anchor file rows become anchored runs",
			mode:       "quarters",
			anchorFile: "acme-ipo|acme inc|2024-03\nbeta-merger|beta corp|2023-11\n",
			validate: func(t *testing.T, jobs []job) {
				require.Len(t, jobs, 2)
				assert.Equal(t, "acme inc", jobs[0].keyword)
				assert.Equal(t, "acme-ipo", jobs[0].outputName)
				assert.Equal(t, planner.ModeAnchored, jobs[0].mode)
				assert.Equal(t, time.March, jobs[0].anchor.Month())
				assert.Equal(t, "beta-merger", jobs[1].outputName)
			},
		},
		{
			name:        "single mode requires both dates",
			mode:        "single",
			keywordsCSV: "solar power",
			start:       "2024-01-01",
			wantErr:     "needs --start and --end",
		},
		{
			name:        "rolling mode requires a start",
			mode:        "quarters",
			keywordsCSV: "solar power",
			wantErr:     "needs --start",
		},
		{
			name:        "anchored mode requires the anchor month",
			mode:        "anchored",
			keywordsCSV: "solar power",
			wantErr:     "needs --anchor",
		},
		{
			name:        "unknown mode is rejected",
			mode:        "weekly",
			keywordsCSV: "solar power",
			wantErr:     "unknown scheduling mode",
		},
		{
			name:        "bad start date is rejected",
			mode:        "quarters",
			keywordsCSV: "solar power",
			start:       "01/02/2024",
			wantErr:     "invalid --start",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Run.Mode = tt.mode

			keywordFile := ""
			if tt.keywordFile != "" {
				keywordFile = writeTempFile(t, "keywords.txt", tt.keywordFile)
			}
			anchorFile := ""
			if tt.anchorFile != "" {
				anchorFile = writeTempFile(t, "anchors.txt", tt.anchorFile)
			}

			jobs, err := collectJobs(cfg, tt.keywordsCSV, keywordFile, anchorFile, tt.start, tt.end, tt.anchor)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.validate(t, jobs)
		})
	}
}

func TestReadAnchorJobsRejectsMalformedRows(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing field",
			content: "# header\nok-1|acme inc|2024-03\nbroken row\n",
			wantErr: ":3: malformed row",
		},
		{
			name:    "empty id",
			content: " |acme inc|2024-03\n",
			wantErr: ":1: malformed row",
		},
		{
			name:    "bad month",
			content: "ok-1|acme inc|March 2024\n",
			wantErr: "invalid anchor month",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempFile(t, "anchors.txt", tt.content)
			_, err := readAnchorJobs(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCredentialsPath(t *testing.T) {
	paths := &config.Paths{
		DataDir:         "/data",
		CredentialsFile: "/data/credentials.dat",
	}

	cfg := config.Default()
	cfg.Auth.CredentialsFile = ""
	assert.Equal(t, "/data/credentials.dat", credentialsPath(cfg, paths))

	cfg.Auth.CredentialsFile = "credentials.dat"
	assert.Equal(t, filepath.Join("/data", "credentials.dat"), credentialsPath(cfg, paths))

	cfg.Auth.CredentialsFile = "/etc/trends/creds.dat"
	assert.Equal(t, "/etc/trends/creds.dat", credentialsPath(cfg, paths))
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	sink := newConsoleSink(&buf)

	snap := &pipeline.RunSnapshot{
		RunID:    "run-1",
		Keywords: []string{"solar power"},
		Progress: 40,
		Message:  "window 2/5",
	}
	sink.Publish(pipeline.EventRunProgress, snap)
	assert.Contains(t, buf.String(), "[solar power]")
	assert.Contains(t, buf.String(), "window 2/5")

	// Progress without a message stays silent.
	buf.Reset()
	sink.Publish(pipeline.EventRunProgress, &pipeline.RunSnapshot{RunID: "run-1", Keywords: []string{"solar power"}})
	assert.Empty(t, buf.String())

	buf.Reset()
	sink.Publish(pipeline.EventRunComplete, snap)
	assert.Contains(t, buf.String(), "completed")

	buf.Reset()
	sink.Publish(pipeline.EventRunError, &pipeline.RunSnapshot{RunID: "run-1", Error: "login failed"})
	assert.Contains(t, buf.String(), "failed: login failed")

	buf.Reset()
	sink.Publish(pipeline.EventRunStatus, "not a snapshot")
	assert.Empty(t, buf.String())
}

func TestBuildManagerRegistersStandardSteps(t *testing.T) {
	base := t.TempDir()
	paths := &config.Paths{
		DataDir:         base,
		OutputDir:       filepath.Join(base, "output"),
		RawDir:          filepath.Join(base, "raw"),
		LogsDir:         filepath.Join(base, "logs"),
		CredentialsFile: filepath.Join(base, "credentials.dat"),
	}
	require.NoError(t, paths.EnsureDirectories())

	manager, err := buildManager(config.Default(), paths,
		session.Credentials{Username: "user", Password: "pass"},
		newConsoleSink(io.Discard), testLogger())
	require.NoError(t, err)
	defer manager.Stop()

	registry := manager.GetRegistry()
	assert.Equal(t, 6, registry.Count())
	for _, id := range []string{
		pipeline.StepIDAuth,
		pipeline.StepIDResolve,
		pipeline.StepIDPlan,
		pipeline.StepIDFetch,
		pipeline.StepIDReconcile,
		pipeline.StepIDExport,
	} {
		assert.True(t, registry.Has(id), "missing step %s", id)
	}
}
