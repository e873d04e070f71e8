// Package event defines the wire types the SDK ships to the ingestion
// endpoint. They mirror the server's report contract.
package event

import (
	"encoding/json"
	"time"
)

// Event kinds.
const (
	TypeError       = "error"
	TypePerformance = "performance"
	TypeResource    = "resource"
	TypeMessage     = "message"
)

// Breadcrumb is a timestamped record of a user or system action preceding
// an error. Immutable once created.
type Breadcrumb struct {
	Type      string          `json:"type"`
	Category  string          `json:"category"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// StackFrame is one captured stack frame in compiled coordinates.
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

// Event is the raw telemetry record handed to the delivery pipeline.
// Never mutated after creation except for size trimming before batching.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url,omitempty"`

	Message     string       `json:"message,omitempty"`
	Stack       string       `json:"stack,omitempty"`
	Frames      []StackFrame `json:"frames,omitempty"`
	Filename    string       `json:"filename,omitempty"`
	Lineno      int          `json:"lineno,omitempty"`
	Colno       int          `json:"colno,omitempty"`
	ErrorType   string       `json:"error_type,omitempty"`
	Breadcrumbs []Breadcrumb `json:"breadcrumbs,omitempty"`
	ReplayID    string       `json:"replay_id,omitempty"`

	Metrics map[string]float64 `json:"metrics,omitempty"`

	Environment string          `json:"environment,omitempty"`
	Release     string          `json:"release,omitempty"`
	Extra       json.RawMessage `json:"extra,omitempty"`
}

// Batch is an ordered sequence of events sent as one HTTP POST.
type Batch struct {
	DSN       string    `json:"dsn"`
	Events    []Event   `json:"events"`
	CreatedAt time.Time `json:"-"`
}
