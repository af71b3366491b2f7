// Package events defines the WebSocket event contract for the run
// progress stream. Every frame on the wire is an Envelope whose Data
// shape depends on Type.
package events

import (
	"time"
)

// EventType names one kind of frame on the progress stream.
type EventType string

const (
	// EventConnect greets a client right after registration.
	EventConnect EventType = "connect"

	// EventRunStatus carries a full run snapshot after a run-level
	// state change (created, started, completed step).
	EventRunStatus EventType = "run:status"
	// EventRunProgress carries a snapshot after an in-step progress
	// update.
	EventRunProgress EventType = "run:progress"
	// EventRunComplete is the final snapshot of a successful run.
	EventRunComplete EventType = "run:complete"
	// EventRunError is the final snapshot of a failed or cancelled run.
	EventRunError EventType = "run:error"
)

// Envelope is the frame wrapper. Data is a RunSnapshot for the run:*
// events and a ConnectionData for connect.
type Envelope struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// ConnectionData is the payload of the connect greeting.
type ConnectionData struct {
	Status   string `json:"status"`
	ClientID string `json:"client_id"`
	Message  string `json:"message,omitempty"`
}

// RunSnapshot is the wire shape of one run's full state. The engine
// publishes a snapshot after every mutation; clients never need to
// stitch deltas together.
type RunSnapshot struct {
	RunID       string         `json:"run_id"`
	Keywords    []string       `json:"keywords,omitempty"`
	Status      string         `json:"status"`   // pending|running|completed|failed|cancelled
	Progress    int            `json:"progress"` // 0-100 across all steps
	CurrentStep string         `json:"current_step,omitempty"`
	Steps       []StepSnapshot `json:"steps"`
	StartedAt   time.Time      `json:"started_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Message     string         `json:"message,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// StepSnapshot is the wire shape of a single step's state.
type StepSnapshot struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`   // pending|active|completed|failed|skipped
	Progress int    `json:"progress"` // 0-100
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}
