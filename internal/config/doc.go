// Package config provides centralized configuration management for the
// trends toolchain. It handles loading configuration from multiple
// sources, validation, and the on-disk data layout shared by the
// binaries.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of
// precedence:
//
//	1. Environment variables (highest priority)
//	2. trends.yaml
//	3. Struct default tags (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern TRENDS_* for namespacing:
//
//	TRENDS_AUTH_USERNAME=scrape@example.com
//	TRENDS_THROTTLE_MODE=fixed
//	TRENDS_THROTTLE_DELAY=2s
//	TRENDS_RUN_OUTPUT_DIR=/var/lib/trends/output
//	TRENDS_LOGGING_LEVEL=debug
//
// # Path Management
//
// The Paths type resolves the data layout (output, raw, logs,
// credentials.dat) relative to TRENDS_DATA_DIR or the working
// directory:
//
//	paths, err := config.GetPaths()
//	out := paths.OutputDir
//
// # Usage
//
// Load configuration at application startup:
//
//	cfg, err := config.Load("trends.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
