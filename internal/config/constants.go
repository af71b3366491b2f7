package config

import "time"

// Application constants shared across binaries.
const (
	AppName    = "trendscli"
	AppVersion = "1.0.0"

	// Query defaults
	DefaultDomain       = "google.com"
	DefaultThrottleMode = "jitter"
	DefaultFixedDelay   = 2 * time.Second

	// Network timeouts
	DefaultHTTPTimeout = 30 * time.Second
	DefaultAuthTimeout = 45 * time.Second

	// WebSocket tuning
	WebSocketPingPeriod      = 30 * time.Second
	WebSocketPongWait        = 60 * time.Second
	WebSocketReadBufferSize  = 1024
	WebSocketWriteBufferSize = 1024

	// File layout (relative to the data dir)
	DefaultOutputDir      = "output"
	DefaultRawDir         = "raw"
	DefaultLogsDir        = "logs"
	CredentialsFileName   = "credentials.dat"
	DefaultConfigFileName = "trends.yaml"

	// Log settings
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
	MaxLogFileSize   = 100 * 1024 * 1024 // 100MB

	// API endpoints (internal)
	APIBasePath     = "/api/v1"
	RunsEndpoint    = "/api/v1/runs"
	HealthEndpoint  = "/api/v1/health"
	MetricsEndpoint = "/metrics"

	// WebSocket endpoint
	WebSocketEndpoint = "/ws"
)

// Exit codes for the batch CLI.
const (
	ExitOK    = 0
	ExitFatal = 1
	ExitQuota = 2
)
