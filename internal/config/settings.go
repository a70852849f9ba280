package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Settings holds user-configurable application settings.
type Settings struct {
	General GeneralSettings `json:"general"`
	Network NetworkSettings `json:"network"`
	Retry   RetrySettings   `json:"retry"`
}

// GeneralSettings contains application behavior settings.
type GeneralSettings struct {
	DefaultDownloadDir string `json:"default_download_dir"`
	AutoResume         bool   `json:"auto_resume"`
	Theme              int    `json:"theme"`
}

const (
	ThemeAdaptive = 0
	ThemeLight    = 1
	ThemeDark     = 2
)

// NetworkSettings contains network parameters applied to new tasks.
type NetworkSettings struct {
	Segments  int    `json:"segments"`
	UserAgent string `json:"user_agent"`
}

// RetrySettings are the manager-level retry defaults; tasks may override
// them with per-task values (-1 on the task means inherit these).
type RetrySettings struct {
	MaxRetries int `json:"max_retries"`
	DelaySec   int `json:"delay_sec"`
}

// DefaultSettings returns a Settings instance with sensible defaults.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	return &Settings{
		General: GeneralSettings{
			DefaultDownloadDir: filepath.Join(homeDir, "Downloads"),
			AutoResume:         false,
			Theme:              ThemeAdaptive,
		},
		Network: NetworkSettings{
			Segments:  8,
			UserAgent: "raad/1.0",
		},
		Retry: RetrySettings{
			MaxRetries: 3,
			DelaySec:   10,
		},
	}
}

// GetRaadDir returns the application data directory.
func GetRaadDir() string {
	if dir := os.Getenv("RAAD_DIR"); dir != "" {
		return dir
	}
	base, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		base = home
	}
	return filepath.Join(base, "raad")
}

// GetSettingsPath returns the path to the settings JSON file.
func GetSettingsPath() string {
	return filepath.Join(GetRaadDir(), "settings.json")
}

// GetSessionPath returns the path to the persisted session file.
func GetSessionPath() string {
	return filepath.Join(GetRaadDir(), "downloads.json")
}

// GetHistoryPath returns the path to the completed-downloads database.
func GetHistoryPath() string {
	return filepath.Join(GetRaadDir(), "history.db")
}

// GetLockPath returns the single-instance lock file path.
func GetLockPath() string {
	return filepath.Join(GetRaadDir(), "raad.lock")
}

// LoadSettings loads settings from disk. Returns defaults if the file
// doesn't exist; unknown fields are ignored, missing fields keep defaults.
func LoadSettings() (*Settings, error) {
	data, err := os.ReadFile(GetSettingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// SaveSettings saves settings to disk atomically.
func SaveSettings(s *Settings) error {
	path := GetSettingsPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, path)
}
