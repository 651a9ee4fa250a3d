// Package job defines the recording job model and the registry that owns it.
package job

import (
	"fmt"
	"time"
)

// Status is the single active lifecycle state of a job.
//
// scheduled -> recording -> scheduled (capture ended, success or forced stop)
// recording -> error (capture failed) -> scheduled (next successful trigger)
//
// There is no terminal state; jobs live until deleted.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusRecording Status = "recording"
	StatusError     Status = "error"
)

// Job is one recurring recording definition plus its runtime state.
//
// Identity and the spec fields are immutable after creation. The runtime
// fields are only ever changed through Registry.Update so transitions stay
// atomic. CurrentRecording is set iff Status is StatusRecording; LastError is
// set iff Status is StatusError.
type Job struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	StreamURL       string    `json:"stream_url"`
	Cron            string    `json:"cron"`
	DurationMinutes int       `json:"duration_minutes"`
	CreatedAt       time.Time `json:"created_at"`

	Status           Status `json:"status"`
	LastRecording    string `json:"last_recording,omitempty"`
	CurrentRecording string `json:"current_recording,omitempty"`
	LastError        string `json:"last_error,omitempty"`
}

// Spec is the caller-supplied part of a new job.
type Spec struct {
	Name            string `json:"name"`
	StreamURL       string `json:"stream_url"`
	Cron            string `json:"cron"`
	DurationMinutes int    `json:"duration_minutes"`
}

// ErrNotFound is returned for operations on unknown job identifiers.
var ErrNotFound = fmt.Errorf("job not found")

// ValidationError rejects a job spec at creation time.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
