package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendscli/internal/config"
	"trendscli/internal/pipeline"
)

type fakeHub struct {
	clients int
}

func (f *fakeHub) ClientCount() int { return f.clients }

func testPaths(t *testing.T) *config.Paths {
	t.Helper()
	base := t.TempDir()
	paths := &config.Paths{
		DataDir:         base,
		OutputDir:       filepath.Join(base, "output"),
		RawDir:          filepath.Join(base, "raw"),
		LogsDir:         filepath.Join(base, "logs"),
		CredentialsFile: filepath.Join(base, "credentials.dat"),
	}
	require.NoError(t, paths.EnsureDirectories())
	return paths
}

func configWithCredentials(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Auth.Username = "svc-user"
	cfg.Auth.Password = "svc-pass"
	cfg.Auth.CredentialsFile = filepath.Join(t.TempDir(), "absent.dat")
	return cfg
}

func configWithoutCredentials(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Auth.Username = ""
	cfg.Auth.Password = ""
	cfg.Auth.CredentialsFile = filepath.Join(t.TempDir(), "absent.dat")
	return cfg
}

func newTestHealthService(t *testing.T, cfg *config.Config, paths *config.Paths, hub ClientCounter) *HealthService {
	t.Helper()
	manager := pipeline.NewManager(nil, pipeline.NewRegistry(), nil, nil, testLogger())
	runs := NewRunServiceWithManager(manager, testLogger())
	t.Cleanup(runs.Stop)
	return NewHealthService("test", cfg, paths, runs, hub, testLogger())
}

func TestHealthCheckReturnsOK(t *testing.T) {
	hs := newTestHealthService(t, configWithCredentials(t), testPaths(t), &fakeHub{})

	status := hs.HealthCheck(context.Background())
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "test", status.Version)
	assert.False(t, status.Timestamp.IsZero())
}

func TestReadinessCheckReadyWhenConfigured(t *testing.T) {
	hs := newTestHealthService(t, configWithCredentials(t), testPaths(t), &fakeHub{})

	status := hs.ReadinessCheck(context.Background())
	assert.Equal(t, "ready", status.Status)

	for _, name := range []string{"credentials", "data", "runs", "websocket"} {
		require.Contains(t, status.Services, name)
		sh, ok := status.Services[name].(ServiceHealth)
		require.True(t, ok)
		assert.Equal(t, "ready", sh.Status, "service %s", name)
	}
}

func TestReadinessCheckNotReadyWithoutCredentials(t *testing.T) {
	hs := newTestHealthService(t, configWithoutCredentials(t), testPaths(t), &fakeHub{})

	status := hs.ReadinessCheck(context.Background())
	assert.Equal(t, "not_ready", status.Status)

	sh, ok := status.Services["credentials"].(ServiceHealth)
	require.True(t, ok)
	assert.Equal(t, "not_ready", sh.Status)
	assert.Contains(t, sh.Message, "trends auth init")
}

func TestReadinessCheckNotReadyWithoutDataDir(t *testing.T) {
	paths := testPaths(t)
	paths.DataDir = filepath.Join(paths.DataDir, "gone")

	hs := newTestHealthService(t, configWithCredentials(t), paths, &fakeHub{})

	status := hs.ReadinessCheck(context.Background())
	assert.Equal(t, "not_ready", status.Status)

	sh, ok := status.Services["data"].(ServiceHealth)
	require.True(t, ok)
	assert.Equal(t, "not_ready", sh.Status)
}

func TestLivenessCheck(t *testing.T) {
	hs := newTestHealthService(t, configWithCredentials(t), testPaths(t), &fakeHub{})

	status := hs.LivenessCheck(context.Background())
	assert.Equal(t, "alive", status.Status)
	assert.Contains(t, status.Runtime, "go_version")
	assert.Contains(t, status.Runtime, "goroutines")
}

func TestVersionIncludesBuildInfo(t *testing.T) {
	paths := testPaths(t)
	hs := NewHealthServiceWithBuildInfo("1.2.3", "2025-08-25T00:00:00Z", "abc123",
		configWithCredentials(t), paths, nil, &fakeHub{}, testLogger())

	info := hs.Version()
	assert.Equal(t, "1.2.3", info["version"])
	assert.Equal(t, "2025-08-25T00:00:00Z", info["build_time"])
	assert.Equal(t, "abc123", info["build_id"])
	assert.Contains(t, info, "go_version")

	bare := NewHealthService("dev", configWithCredentials(t), paths, nil, &fakeHub{}, testLogger())
	bareInfo := bare.Version()
	assert.NotContains(t, bareInfo, "build_time")
	assert.NotContains(t, bareInfo, "build_id")
}

func TestSystemStatsCountsDataFiles(t *testing.T) {
	paths := testPaths(t)
	require.NoError(t, os.WriteFile(filepath.Join(paths.OutputDir, "solar.csv"), []byte("date,value\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(paths.RawDir, "solar-w0.csv"), []byte("date,value\n"), 0o644))

	hs := newTestHealthService(t, configWithCredentials(t), paths, &fakeHub{clients: 3})

	stats, err := hs.SystemStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalFiles)
	assert.Equal(t, int64(2*len("date,value\n")), stats.TotalSizeBytes)
	assert.Equal(t, 3, stats.WebSocketClients)
	assert.Zero(t, stats.ActiveRuns)
	assert.NotEmpty(t, stats.GoVersion)
}
