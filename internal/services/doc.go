// Package services implements the business logic layer of the trends daemon.
// It provides a clean separation between HTTP handlers and the collection
// pipeline, ensuring that business rules are centralized and testable.
//
// # Architecture
//
// Services follow these architectural principles:
//
//	1. Interface-driven design for testability
//	2. Context propagation for cancellation and tracing
//	3. Dependency injection for loose coupling
//	4. Single-writer admission for the account-scoped upstream quota
//	5. Domain-focused methods that encapsulate business rules
//
// # Service Layer Responsibilities
//
// The service layer is responsible for:
//
//	- Run admission and lifecycle (one active run at a time)
//	- Credential resolution (sealed file over plaintext config)
//	- Error handling and transformation to shared sentinels
//	- Retention of finished runs for polling clients
//	- Health and readiness reporting
//
// # Available Services
//
// The package provides these core services:
//
//	- RunService: Admits, tracks, and cancels collection runs
//	- HealthService: Provides system health checks and statistics
//
// # Error Handling
//
// Services return sentinel errors from internal/errors that handlers map
// to RFC 9457 problem responses:
//
//	- ErrRunUnknown for missing runs
//	- ErrRunInProgress when a second run is submitted
//	- ErrRunFinished when cancelling a terminal run
//	- ErrCredentialsMissing when no account is configured
//
// # Testing
//
// Services are tested against a pipeline manager loaded with scripted
// steps, so no network or real credentials are needed:
//
//	svc := NewRunServiceWithManager(manager, logger)
//	snap, err := svc.StartRun(ctx, req)
package services
