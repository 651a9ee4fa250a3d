// Package settings holds the user-facing recorder settings.
//
// The record is deliberately re-read from disk on every use: the file is small,
// it can be edited concurrently (HTTP API or a text editor), and a process-wide
// cache would just add a staleness window. Readers always see at most one
// read's worth of lag.
package settings

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "aircheck/pkg/logx"
)

// Settings is the flat, wholesale-replaced user settings record.
type Settings struct {
	Format      string `json:"format"`       // output container/codec, e.g. "mp3"
	Quality     string `json:"quality"`      // "low" | "medium" | "high"
	StoragePath string `json:"storage_path"` // directory for recorded files
	Timezone    string `json:"timezone"`     // IANA zone; empty means system local
}

// Defaults returns the first-run settings.
func Defaults() Settings {
	return Settings{
		Format:      "mp3",
		Quality:     "medium",
		StoragePath: "./recordings",
		Timezone:    "",
	}
}

// BitrateKbps maps the quality tier to a fixed audio bitrate.
// Unset or unrecognized tiers fall back to medium.
func (s Settings) BitrateKbps() int {
	switch strings.ToLower(strings.TrimSpace(s.Quality)) {
	case "low":
		return 96
	case "high":
		return 320
	default:
		return 192
	}
}

// Ext returns the artifact file extension for the configured format.
func (s Settings) Ext() string {
	f := strings.ToLower(strings.TrimSpace(s.Format))
	if f == "" {
		return "mp3"
	}
	return f
}

// Location resolves the configured timezone, falling back to system local.
func (s Settings) Location() *time.Location {
	tz := strings.TrimSpace(s.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}

// Validate rejects records that must never reach the scheduler.
func (s Settings) Validate() error {
	if tz := strings.TrimSpace(s.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return &InvalidError{Field: "timezone", Reason: err.Error()}
		}
	}
	if strings.TrimSpace(s.StoragePath) == "" {
		return &InvalidError{Field: "storage_path", Reason: "must not be empty"}
	}
	return nil
}

type InvalidError struct {
	Field  string
	Reason string
}

func (e *InvalidError) Error() string { return "settings: invalid " + e.Field + ": " + e.Reason }

// Store is the file-backed settings collaborator.
type Store struct {
	path string
	log  logx.Logger

	// mu serializes writers; readers go straight to the file.
	mu sync.Mutex
}

func NewStore(path string, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{path: path, log: log}
}

// Init creates the settings file with defaults when it does not exist yet.
func (st *Store) Init() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, err := os.Stat(st.path); err == nil {
		return nil
	}
	st.log.Info("settings file missing; writing defaults", logx.String("path", st.path))
	return st.writeLocked(Defaults())
}

// Current re-reads the settings file. A missing or corrupt file yields
// defaults rather than an error; the recorder keeps working either way.
func (st *Store) Current() Settings {
	b, err := os.ReadFile(st.path)
	if err != nil {
		return Defaults()
	}
	var s Settings
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&s); err != nil {
		st.log.Warn("settings file corrupt; using defaults", logx.String("path", st.path), logx.Err(err))
		return Defaults()
	}
	if strings.TrimSpace(s.StoragePath) == "" {
		s.StoragePath = Defaults().StoragePath
	}
	return s
}

// Save validates and overwrites the record wholesale.
func (st *Store) Save(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.writeLocked(s)
}

func (st *Store) writeLocked(s Settings) error {
	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := st.path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, st.path)
}
