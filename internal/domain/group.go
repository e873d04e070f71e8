package domain

import (
	"encoding/json"
	"time"
)

// ErrorGroup statuses. Status is mutated only by explicit user action,
// never by ingestion.
const (
	StatusOpen       = "open"
	StatusProcessing = "processing"
	StatusResolved   = "resolved"
	StatusIgnored    = "ignored"
)

// ValidStatus reports whether s is one of the recognized group statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusOpen, StatusProcessing, StatusResolved, StatusIgnored:
		return true
	}
	return false
}

// ErrorGroup is the aggregation record for a class of equivalent errors.
// Created on the first occurrence of a fingerprint; later occurrences only
// bump Count/LastSeen and refresh the latest sample.
type ErrorGroup struct {
	ID                string          `json:"id"`
	DSN               string          `json:"dsn"`
	Fingerprint       string          `json:"fingerprint"`
	ErrorType         string          `json:"error_type"`
	NormalizedMessage string          `json:"normalized_message"`
	SampleMessage     string          `json:"sample_message"`
	SampleStack       string          `json:"sample_stack,omitempty"`
	SampleFrames      []StackFrame    `json:"sample_frames,omitempty"`
	URL               string          `json:"url,omitempty"`
	Release           string          `json:"release,omitempty"`
	Breadcrumbs       json.RawMessage `json:"breadcrumbs,omitempty"`
	ReplayID          string          `json:"replay_id,omitempty"`
	Count             int64           `json:"count"`
	FirstSeen         time.Time       `json:"first_seen"`
	LastSeen          time.Time       `json:"last_seen"`
	Status            string          `json:"status"`
}

// Occurrence describes one aggregated error occurrence, handed to
// observers (alerting, live feed) after the group commit.
type Occurrence struct {
	DSN         string    `json:"dsn"`
	GroupID     string    `json:"group_id"`
	Fingerprint string    `json:"fingerprint"`
	ErrorType   string    `json:"error_type"`
	Message     string    `json:"message"`
	Count       int64     `json:"count"`
	IsNew       bool      `json:"is_new"`
	SeenAt      time.Time `json:"seen_at"`
}

// PerformanceRecord is a stored performance event.
type PerformanceRecord struct {
	ID        string             `json:"id"`
	DSN       string             `json:"dsn"`
	URL       string             `json:"url,omitempty"`
	Metrics   map[string]float64 `json:"metrics"`
	CreatedAt time.Time          `json:"created_at"`
}
