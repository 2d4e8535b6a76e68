package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"timeglobe/internal/timeseq"
)

// LayerSpec describes one configured time-series layer.
type LayerSpec struct {
	Name          string   `json:"name"`
	BasePath      string   `json:"basePath"`               // prefix for per-slot data paths
	Start         string   `json:"start"`                  // RFC 3339
	End           string   `json:"end"`                    // RFC 3339
	Interval      string   `json:"interval"`               // ISO 8601 duration, e.g. "PT3H"
	Opacity       float64  `json:"opacity"`                // [0, 1]
	DetailControl *float64 `json:"detailControl,omitempty"`
	Enabled       bool     `json:"enabled"`
}

// Settings represents persistent configuration.
type Settings struct {
	Layers []LayerSpec `json:"layers"`

	// Cache settings
	CacheMaxSizeMB int `json:"cacheMaxSizeMB"`

	// Fetch settings
	FetchWorkers        int `json:"fetchWorkers"`
	FetchTimeoutSeconds int `json:"fetchTimeoutSeconds"`
	CoolDownMinutes     int `json:"coolDownMinutes"` // absent-resource suppression window

	// Server settings
	ListenAddr string `json:"listenAddr"` // empty = loopback with a random port
}

// DefaultSettings returns default configuration with a sample weather layer.
func DefaultSettings() *Settings {
	return &Settings{
		Layers: []LayerSpec{
			{
				Name:     "cloud-cover",
				BasePath: "https://data.example.com/globe/cloud-cover/",
				Start:    "2016-07-12T00:00:00Z",
				End:      "2016-07-18T00:00:00Z",
				Interval: "PT3H",
				Opacity:  1.0,
				Enabled:  true,
			},
		},
		CacheMaxSizeMB:      512,
		FetchWorkers:        8,
		FetchTimeoutSeconds: 60,
		CoolDownMinutes:     10,
		ListenAddr:          "",
	}
}

// settingsPath can be overridden in tests.
var settingsPath string

// GetSettingsPath returns the settings file path.
func GetSettingsPath() string {
	if settingsPath != "" {
		return settingsPath
	}
	homeDir, _ := os.UserHomeDir()
	baseDir := filepath.Join(homeDir, ".timeglobe", "settings")
	os.MkdirAll(baseDir, 0755)
	return filepath.Join(baseDir, "settings.json")
}

// LoadSettings loads configuration from disk, falling back to defaults for
// a missing file or missing fields.
func LoadSettings() (*Settings, error) {
	path := GetSettingsPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultSettings(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	// Merge with defaults for any missing fields
	defaults := DefaultSettings()
	if settings.CacheMaxSizeMB == 0 {
		settings.CacheMaxSizeMB = defaults.CacheMaxSizeMB
	}
	if settings.FetchWorkers == 0 {
		settings.FetchWorkers = defaults.FetchWorkers
	}
	if settings.FetchTimeoutSeconds == 0 {
		settings.FetchTimeoutSeconds = defaults.FetchTimeoutSeconds
	}
	if settings.CoolDownMinutes == 0 {
		settings.CoolDownMinutes = defaults.CoolDownMinutes
	}

	return &settings, nil
}

// SaveSettings writes configuration to disk.
func SaveSettings(settings *Settings) error {
	path := GetSettingsPath()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}

// ValidateLayerSpec checks a layer specification for obvious
// misconfiguration before the sequence itself is built.
func ValidateLayerSpec(spec *LayerSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("layer name is required")
	}
	if spec.BasePath == "" {
		return fmt.Errorf("layer basePath is required")
	}
	start, err := time.Parse(time.RFC3339, spec.Start)
	if err != nil {
		return fmt.Errorf("invalid start time %q: %w", spec.Start, err)
	}
	end, err := time.Parse(time.RFC3339, spec.End)
	if err != nil {
		return fmt.Errorf("invalid end time %q: %w", spec.End, err)
	}
	if start.After(end) {
		return fmt.Errorf("start %q is after end %q", spec.Start, spec.End)
	}
	if spec.Interval == "" {
		return fmt.Errorf("layer interval is required")
	}
	if _, err := timeseq.ParseInterval(spec.Interval); err != nil {
		return err
	}
	if spec.Opacity < 0 || spec.Opacity > 1 {
		return fmt.Errorf("opacity %f out of range [0, 1]", spec.Opacity)
	}
	return nil
}

// FetchTimeout returns the per-fetch timeout as a duration.
func (s *Settings) FetchTimeout() time.Duration {
	return time.Duration(s.FetchTimeoutSeconds) * time.Second
}

// CoolDown returns the absent-resource cool-down window as a duration.
func (s *Settings) CoolDown() time.Duration {
	return time.Duration(s.CoolDownMinutes) * time.Minute
}
