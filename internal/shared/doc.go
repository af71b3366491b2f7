// Package shared provides common utilities and test helpers used across the
// trendscli codebase. It is a home for functionality that does not belong to
// any specific domain or architectural layer.
//
// The package currently contains a single subpackage:
//
//   - testutil: log-capture handlers and assertions for slog-based tests
//
// This package should only contain test utilities used by multiple packages
// and generic helpers with no domain-specific logic. It must not import other
// internal packages.
package shared
