package config

type Config struct {
	Logging  LoggingConfig   `json:"logging"`
	HTTP     HTTPConfig      `json:"http"`
	Store    StoreConfig     `json:"store"`
	Settings SettingsConfig  `json:"settings"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// HTTPConfig controls the API/UI server.
//
// Security note: the API is unauthenticated; prefer binding to localhost or
// putting a reverse proxy in front when exposing it.
type HTTPConfig struct {
	Addr string `json:"addr,omitempty"` // default: "127.0.0.1:8750"
	// StaticDir is served at "/" when set (the web UI build output).
	StaticDir string `json:"static_dir,omitempty"`
}

// StoreConfig controls the schedule persistence layer.
//
// Driver values:
//   - "file": JSON snapshot (default)
//   - "sqlite": SQLite database file (requires the sqlite build tag)
//
// Example:
//
//	"store": { "driver": "file", "path": "./data/schedule.json" }
type StoreConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type SettingsConfig struct {
	// Path of the user settings file (created with defaults on first run).
	Path string `json:"path"`
}

// NotifierConfig controls optional Telegram notifications for capture outcomes.
// If the section is omitted, notifications are disabled.
type NotifierConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  int64  `json:"chat_id"`
	// MinLevel: "all" sends every capture outcome, "errors" only failures.
	MinLevel   string `json:"min_level,omitempty"`
	RatePerMin int    `json:"rate_per_min,omitempty"`
}

// WithDefaults fills zero-valued fields that have sane defaults.
func (c *Config) WithDefaults() *Config {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:8750"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "file"
	}
	if c.Store.Path == "" {
		c.Store.Path = "./data/schedule.json"
	}
	if c.Settings.Path == "" {
		c.Settings.Path = "./data/settings.json"
	}
	return c
}
