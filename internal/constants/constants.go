// Package constants provides shared constants used across the codebase.
package constants

import "time"

// DefaultStageName is the name the quality-check stage registers under when
// the configuration leaves it empty.
const DefaultStageName = "QualityCheck"

// Web server constants
const (
	// RequestTimeout bounds a single API request
	RequestTimeout = 30 * time.Second

	ReadTimeout  = 10 * time.Second
	WriteTimeout = 30 * time.Second
	IdleTimeout  = 60 * time.Second

	// ShutdownTimeout is how long serve waits for in-flight requests
	ShutdownTimeout = 10 * time.Second

	// MaxTelemetryBodySize caps a single telemetry report body
	MaxTelemetryBodySize = 64 << 10
)

// Progress bar constants
const (
	// ProgressThrottle limits progress bar redraws
	ProgressThrottle = 100 * time.Millisecond
)
