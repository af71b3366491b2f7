// Package app provides application initialization and lifecycle management
// for the trendsd daemon. It wires configuration, logging, observability,
// the run engine, the WebSocket hub and the HTTP transport together, and
// owns graceful shutdown.
//
// # Initialization Flow
//
// The typical initialization sequence:
//
//	1. Load configuration from defaults, YAML file and environment
//	2. Initialize logging and OpenTelemetry
//	3. Create the WebSocket hub and the run service
//	4. Assemble the router and the HTTP server
//
// # Usage
//
// The main entry point is typically:
//
//	application, err := app.NewApplication(app.Options{ConfigPath: *configPath})
//	if err != nil {
//	    ...
//	}
//	if err := application.Run(); err != nil {
//	    ...
//	}
//
// # Graceful Shutdown
//
// Run blocks until SIGINT/SIGTERM or a server failure, then:
//
//	- The HTTP server drains active requests (Server.Shutdown)
//	- The run service stops (janitor and pipeline manager)
//	- The hub disconnects WebSocket clients
//	- OpenTelemetry providers flush and shut down
//
// All initialization errors are returned to the caller; the package never
// calls os.Exit() itself.
package app
