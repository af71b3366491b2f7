package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration.
// Precedence: defaults < trends.yaml < TRENDS_* environment variables.
type Config struct {
	Service       ServiceConfig       `yaml:"service" envconfig:"SERVICE"`
	Auth          AuthConfig          `yaml:"auth" envconfig:"AUTH"`
	Throttle      ThrottleConfig      `yaml:"throttle" envconfig:"THROTTLE"`
	Fetch         FetchConfig         `yaml:"fetch" envconfig:"FETCH"`
	Run           RunConfig           `yaml:"run" envconfig:"RUN"`
	Server        ServerConfig        `yaml:"server" envconfig:"SERVER"`
	Logging       LoggingConfig       `yaml:"logging" envconfig:"LOGGING"`
	Observability ObservabilityConfig `yaml:"observability" envconfig:"OBSERVABILITY"`
}

// ServiceConfig locates the remote popularity-index service.
// TrendsURL and EntityURL carry a {domain} placeholder that is filled
// with the domain resolved during authentication.
type ServiceConfig struct {
	LoginURL  string `yaml:"login_url" envconfig:"LOGIN_URL" default:"https://accounts.google.com/ServiceLogin" validate:"required,url"`
	AuthURL   string `yaml:"auth_url" envconfig:"AUTH_URL" default:"https://accounts.google.com/ServiceLoginAuth" validate:"required,url"`
	TrendsURL string `yaml:"trends_url" envconfig:"TRENDS_URL" default:"https://www.{domain}/trends/trendsReport" validate:"required"`
	EntityURL string `yaml:"entity_url" envconfig:"ENTITY_URL" default:"https://www.{domain}/trends/entitiesQuery" validate:"required"`
	Category  string `yaml:"category" envconfig:"CATEGORY"`
}

// AuthConfig carries the service account credentials. When
// CredentialsFile points at an existing sealed file it takes
// precedence over the plaintext username/password pair.
type AuthConfig struct {
	Username        string `yaml:"username" envconfig:"USERNAME"`
	Password        string `yaml:"password" envconfig:"PASSWORD"`
	CredentialsFile string `yaml:"credentials_file" envconfig:"CREDENTIALS_FILE" default:"credentials.dat"`
}

// ThrottleConfig shapes the per-run request limiter.
type ThrottleConfig struct {
	Mode  string        `yaml:"mode" envconfig:"MODE" default:"jitter" validate:"oneof=fixed jitter"`
	Delay time.Duration `yaml:"delay" envconfig:"DELAY" default:"2s"`
}

// FetchConfig tunes the query executor.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"30s"`
	UserAgent string        `yaml:"user_agent" envconfig:"USER_AGENT" default:"Mozilla/5.0 (X11; Linux x86_64) trendscli"`
}

// RunConfig holds batch-run defaults; CLI flags override per invocation.
type RunConfig struct {
	Mode             string `yaml:"mode" envconfig:"MODE" default:"single" validate:"oneof=single quarters years anchored"`
	Parallel         int    `yaml:"parallel" envconfig:"PARALLEL" default:"1" validate:"min=1,max=16"`
	OutputDir        string `yaml:"output_dir" envconfig:"OUTPUT_DIR" default:"output"`
	NoResolve        bool   `yaml:"no_resolve" envconfig:"NO_RESOLVE"`
	QuietIO          bool   `yaml:"quiet_io" envconfig:"QUIET_IO"`
	SkipExisting     bool   `yaml:"skip_existing" envconfig:"SKIP_EXISTING"`
	KeepRaw          bool   `yaml:"keep_raw" envconfig:"KEEP_RAW"`
	XLSX             bool   `yaml:"xlsx" envconfig:"XLSX"`
	DegradedZeroFill bool   `yaml:"degraded_zero_fill" envconfig:"DEGRADED_ZERO_FILL"`
}

// ServerConfig contains the trendsd HTTP server configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr" envconfig:"ADDR" default:":8090"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	AllowedOrigins  []string      `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8090"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains per-client API rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"20"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"10"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Format      string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output      string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/trends.log"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// ObservabilityConfig controls the OpenTelemetry providers.
type ObservabilityConfig struct {
	Enabled        bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" default:"none" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" default:"prometheus" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" default:"1.0" validate:"min=0,max=1"`
}

// envPrefix namespaces every environment override (TRENDS_THROTTLE_MODE, ...).
const envPrefix = "TRENDS"

// Load builds the configuration: struct defaults, then the YAML file at
// path (or the first default location when path is empty), then
// environment overrides, then validation.
func Load(path string) (*Config, error) {
	var cfg Config

	// envconfig applies the default tags even when no variables are set.
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: process environment: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
		// Environment wins over the file: re-process without defaults
		// clobbering what the file set.
		if err := envconfig.Process(envPrefix, &cfg); err != nil {
			return nil, fmt.Errorf("config: process environment: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyFile overlays YAML values onto cfg. Zero values in the file keep
// the defaults already present in cfg.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// findConfigFile returns the first trends.yaml found in conventional
// locations, or "" when none exists.
func findConfigFile() string {
	locations := []string{
		"trends.yaml",
		"configs/trends.yaml",
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Validate checks struct tags and the constraints tags cannot express.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			ve := verrs[0]
			return fmt.Errorf("config validation failed: field %s violates %q", ve.Namespace(), ve.Tag())
		}
		return fmt.Errorf("config validation failed: %w", err)
	}

	if c.Throttle.Delay <= 0 {
		return fmt.Errorf("config validation failed: throttle delay must be positive, got %s", c.Throttle.Delay)
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("config validation failed: fetch timeout must be positive, got %s", c.Fetch.Timeout)
	}
	if !strings.Contains(c.Service.TrendsURL, "{domain}") {
		return fmt.Errorf("config validation failed: trends_url must contain a {domain} placeholder")
	}
	if len(c.Server.AllowedOrigins) == 0 {
		return fmt.Errorf("config validation failed: at least one allowed origin is required")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output != "both" && c.Logging.Output != "file" && c.Logging.Output != "console" {
		c.Logging.Output = "both"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/trends.log"
	}
	return nil
}

// HasCredentials reports whether any credential source is configured.
func (c *Config) HasCredentials() bool {
	if c.Auth.Username != "" && c.Auth.Password != "" {
		return true
	}
	_, err := os.Stat(c.Auth.CredentialsFile)
	return err == nil
}

// Default returns the built-in configuration, the same values the
// struct default tags produce.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			LoginURL:  "https://accounts.google.com/ServiceLogin",
			AuthURL:   "https://accounts.google.com/ServiceLoginAuth",
			TrendsURL: "https://www.{domain}/trends/trendsReport",
			EntityURL: "https://www.{domain}/trends/entitiesQuery",
		},
		Auth: AuthConfig{
			CredentialsFile: "credentials.dat",
		},
		Throttle: ThrottleConfig{
			Mode:  "jitter",
			Delay: 2 * time.Second,
		},
		Fetch: FetchConfig{
			Timeout:   30 * time.Second,
			UserAgent: "Mozilla/5.0 (X11; Linux x86_64) trendscli",
		},
		Run: RunConfig{
			Mode:      "single",
			Parallel:  1,
			OutputDir: "output",
		},
		Server: ServerConfig{
			Addr:            ":8090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"http://localhost:8090"},
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     20,
				Burst:   10,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/trends.log",
		},
		Observability: ObservabilityConfig{
			Enabled:        true,
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
	}
}
