package store

import "time"

// Record is the durable form of a job. Keep it flat and schema-stable.
type Record struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	StreamURL       string    `json:"stream_url"`
	Cron            string    `json:"cron"`
	DurationMinutes int       `json:"duration_minutes"`
	CreatedAt       time.Time `json:"created_at"`

	Status           string `json:"status"`
	LastRecording    string `json:"last_recording,omitempty"`
	CurrentRecording string `json:"current_recording,omitempty"`
	LastError        string `json:"last_error,omitempty"`
}

// Config configures the schedule store.
//
// Driver values:
//   - "file": JSON snapshot file (default)
//   - "sqlite": SQLite database file (optional build tag)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
