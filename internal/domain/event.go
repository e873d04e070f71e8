package domain

import (
	"encoding/json"
	"time"
)

// Event kinds carried in a report payload.
const (
	EventError       = "error"
	EventPerformance = "performance"
	EventResource    = "resource"
	EventMessage     = "message"
)

// Breadcrumb is a timestamped record of a user or system action that
// preceded an error. Immutable once created.
type Breadcrumb struct {
	Type      string          `json:"type"`
	Category  string          `json:"category"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// StackFrame is one frame of a captured stack trace, in compiled
// coordinates until the resolver maps it back to source.
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

// RawEvent is the tagged union shipped by the SDK. Type selects which of
// the optional sections is populated; the server classifies on it.
type RawEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url,omitempty"`

	// Error / resource fields
	Message     string       `json:"message,omitempty"`
	Stack       string       `json:"stack,omitempty"`
	Frames      []StackFrame `json:"frames,omitempty"`
	Filename    string       `json:"filename,omitempty"`
	Lineno      int          `json:"lineno,omitempty"`
	Colno       int          `json:"colno,omitempty"`
	ErrorType   string       `json:"error_type,omitempty"`
	Breadcrumbs []Breadcrumb `json:"breadcrumbs,omitempty"`
	ReplayID    string       `json:"replay_id,omitempty"`

	// Performance fields
	Metrics map[string]float64 `json:"metrics,omitempty"`

	// Optional context set by the SDK
	Environment string          `json:"environment,omitempty"`
	Release     string          `json:"release,omitempty"`
	Extra       json.RawMessage `json:"extra,omitempty"`
}

// IsError reports whether the event lands on the error ingestion path.
func (e *RawEvent) IsError() bool {
	return e.Type == EventError || e.Type == EventResource || e.Type == EventMessage
}

// ReportRequest is the body of POST /report: one delivery batch from an SDK.
type ReportRequest struct {
	DSN    string     `json:"dsn"`
	Events []RawEvent `json:"events"`
}

// ReportResponse acknowledges an accepted batch.
type ReportResponse struct {
	Success     bool `json:"success"`
	Count       int  `json:"count"`
	Errors      int  `json:"errors"`
	Performance int  `json:"performance"`
}
