package domain

import "time"

// SourceMapArtifact is an uploaded source map, immutable once stored.
// Looked up by (dsn, version, filename) with a filename-only fallback
// across versions.
type SourceMapArtifact struct {
	ID        string    `json:"id"`
	DSN       string    `json:"dsn"`
	Version   string    `json:"version"`
	Filename  string    `json:"filename"`
	Content   []byte    `json:"-"`
	SizeBytes int       `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// ResolvedFrame is a stack frame after source map resolution. When
// Resolved is false the compiled coordinates are passed through untouched.
type ResolvedFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Resolved bool   `json:"resolved"`

	// Original compiled position, kept for resolved frames.
	CompiledFile   string `json:"compiled_file,omitempty"`
	CompiledLine   int    `json:"compiled_line,omitempty"`
	CompiledColumn int    `json:"compiled_column,omitempty"`
}
