package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	envVars := []string{
		"TRENDS_SERVICE_LOGIN_URL", "TRENDS_SERVICE_TRENDS_URL", "TRENDS_SERVICE_CATEGORY",
		"TRENDS_AUTH_USERNAME", "TRENDS_AUTH_PASSWORD",
		"TRENDS_THROTTLE_MODE", "TRENDS_THROTTLE_DELAY",
		"TRENDS_FETCH_TIMEOUT", "TRENDS_FETCH_USER_AGENT",
		"TRENDS_RUN_MODE", "TRENDS_RUN_PARALLEL", "TRENDS_RUN_OUTPUT_DIR",
		"TRENDS_SERVER_ADDR", "TRENDS_LOGGING_LEVEL", "TRENDS_LOGGING_FORMAT",
	}

	originalEnv := make(map[string]string)
	for _, envVar := range envVars {
		originalEnv[envVar] = os.Getenv(envVar)
	}
	defer func() {
		for _, envVar := range envVars {
			if val := originalEnv[envVar]; val != "" {
				os.Setenv(envVar, val)
			} else {
				os.Unsetenv(envVar)
			}
		}
	}()
	clearEnv := func() {
		for _, envVar := range envVars {
			os.Unsetenv(envVar)
		}
	}

	tests := []struct {
		name        string
		setupEnv    func()
		setupFile   func(t *testing.T) string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name:     "defaults with no env vars and no file",
			setupEnv: clearEnv,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "https://accounts.google.com/ServiceLogin", cfg.Service.LoginURL)
				assert.Equal(t, "https://www.{domain}/trends/trendsReport", cfg.Service.TrendsURL)
				assert.Equal(t, "jitter", cfg.Throttle.Mode)
				assert.Equal(t, 2*time.Second, cfg.Throttle.Delay)
				assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
				assert.Equal(t, "single", cfg.Run.Mode)
				assert.Equal(t, 1, cfg.Run.Parallel)
				assert.Equal(t, "output", cfg.Run.OutputDir)
				assert.False(t, cfg.Run.DegradedZeroFill)
				assert.Equal(t, ":8090", cfg.Server.Addr)
				assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
				assert.Equal(t, "info", cfg.Logging.Level)
				assert.Equal(t, "json", cfg.Logging.Format)
				assert.Equal(t, "both", cfg.Logging.Output)
				assert.True(t, cfg.Observability.Enabled)
				assert.Equal(t, "prometheus", cfg.Observability.MetricExporter)
			},
		},
		{
			name: "environment overrides defaults",
			setupEnv: func() {
				clearEnv()
				os.Setenv("TRENDS_THROTTLE_MODE", "fixed")
				os.Setenv("TRENDS_THROTTLE_DELAY", "5s")
				os.Setenv("TRENDS_RUN_PARALLEL", "4")
				os.Setenv("TRENDS_SERVER_ADDR", ":9999")
				os.Setenv("TRENDS_LOGGING_LEVEL", "debug")
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "fixed", cfg.Throttle.Mode)
				assert.Equal(t, 5*time.Second, cfg.Throttle.Delay)
				assert.Equal(t, 4, cfg.Run.Parallel)
				assert.Equal(t, ":9999", cfg.Server.Addr)
				assert.Equal(t, "debug", cfg.Logging.Level)
			},
		},
		{
			name:     "yaml file overrides defaults, env overrides yaml",
			setupEnv: func() { clearEnv(); os.Setenv("TRENDS_RUN_OUTPUT_DIR", "/tmp/env-output") },
			setupFile: func(t *testing.T) string {
				content := `
throttle:
  mode: fixed
  delay: 7s
run:
  output_dir: /tmp/yaml-output
  parallel: 3
`
				path := filepath.Join(t.TempDir(), "trends.yaml")
				require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
				return path
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "fixed", cfg.Throttle.Mode)
				assert.Equal(t, 7*time.Second, cfg.Throttle.Delay)
				assert.Equal(t, 3, cfg.Run.Parallel)
				// Env beats file.
				assert.Equal(t, "/tmp/env-output", cfg.Run.OutputDir)
			},
		},
		{
			name: "invalid throttle mode",
			setupEnv: func() {
				clearEnv()
				os.Setenv("TRENDS_THROTTLE_MODE", "turbo")
			},
			wantErr: true,
		},
		{
			name: "invalid run mode",
			setupEnv: func() {
				clearEnv()
				os.Setenv("TRENDS_RUN_MODE", "weekly")
			},
			wantErr: true,
		},
		{
			name: "parallel out of range",
			setupEnv: func() {
				clearEnv()
				os.Setenv("TRENDS_RUN_PARALLEL", "64")
			},
			wantErr: true,
		},
		{
			name: "trends url without domain placeholder",
			setupEnv: func() {
				clearEnv()
				os.Setenv("TRENDS_SERVICE_TRENDS_URL", "https://www.google.com/trends/trendsReport")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setupEnv()

			var path string
			if tt.setupFile != nil {
				path = tt.setupFile(t)
			}

			cfg, err := Load(path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
			if tt.validateCfg != nil {
				tt.validateCfg(t, cfg)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does-not-exist.yaml")
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trends.yaml")
	require.NoError(t, os.WriteFile(path, []byte("throttle: [not a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "default config is valid",
			mutate: func(*Config) {},
		},
		{
			name:    "zero throttle delay",
			mutate:  func(c *Config) { c.Throttle.Delay = 0 },
			wantErr: "throttle delay",
		},
		{
			name:    "negative fetch timeout",
			mutate:  func(c *Config) { c.Fetch.Timeout = -time.Second },
			wantErr: "fetch timeout",
		},
		{
			name:    "no allowed origins",
			mutate:  func(c *Config) { c.Server.AllowedOrigins = nil },
			wantErr: "allowed origin",
		},
		{
			name:    "sample ratio above one",
			mutate:  func(c *Config) { c.Observability.SampleRatio = 1.5 },
			wantErr: "validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateNormalizesLogging(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "xml"
	cfg.Logging.Output = "syslog"
	cfg.Logging.FilePath = ""

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "both", cfg.Logging.Output)
	assert.Equal(t, "logs/trends.log", cfg.Logging.FilePath)
}

func TestHasCredentials(t *testing.T) {
	cfg := Default()
	cfg.Auth.CredentialsFile = filepath.Join(t.TempDir(), "credentials.dat")
	assert.False(t, cfg.HasCredentials())

	cfg.Auth.Username = "user@example.com"
	cfg.Auth.Password = "hunter2"
	assert.True(t, cfg.HasCredentials())

	cfg.Auth.Username = ""
	cfg.Auth.Password = ""
	require.NoError(t, os.WriteFile(cfg.Auth.CredentialsFile, []byte("{}"), 0o600))
	assert.True(t, cfg.HasCredentials())
}
