// Package http implements the HTTP surface of the trends service. It is a
// thin layer between transport and the run engine: handlers parse and
// validate requests, delegate to services, and translate errors into
// RFC 9457 problem documents.
//
// # Architecture Principles
//
// Handlers in this package follow these principles:
//
//	1. Thin handlers - minimal logic, delegate to services
//	2. HTTP-only concerns - request parsing, response formatting
//	3. Error transformation - convert service errors to HTTP responses
//	4. No business logic - all logic belongs in the service layer
//
// # Request Flow
//
// A typical request flows through these layers:
//
//	HTTP Request → Chi Router → Middleware → Handler → Service → Pipeline
//	                                              ↓
//	HTTP Response ← Handler ← Service Response ←─┘
//
// Run submission is asynchronous: StartRun registers the run, returns
// 202 Accepted with a poll URL, and the pipeline executes in the
// background. Progress streams over the WebSocket route.
//
// # Error Handling
//
// Service errors map to problem documents through errors.MapRunError:
//
//	{
//	    "type": "/errors/run-conflict",
//	    "title": "Run Conflict",
//	    "status": 409,
//	    "detail": "run 1724572800 is still active",
//	    "instance": "/api/v1/runs#req-abc123"
//	}
//
// # WebSocket Support
//
// The /ws route upgrades with Gorilla WebSocket and hands the connection
// to the hub, which fans run status events out to every client. The route
// is registered outside the main middleware group because the upgrade
// handshake needs the raw ResponseWriter.
//
// # Testing
//
// Handlers are tested with httptest against fake service implementations:
// mock the service interface, drive requests through chi, and verify the
// rendered status codes and problem documents.
package http
