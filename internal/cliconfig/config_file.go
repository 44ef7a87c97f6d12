package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Dir                    string `toml:"dir"`
	Backend                string `toml:"backend"`
	SQLitePath             string `toml:"sqlite_path"`
	Creator                string `toml:"creator"`
	LogLevel               string `toml:"log_level"`
	LogFormat              string `toml:"log_format"`
	LoadOriginalCalculator *bool  `toml:"load_original_calculator"`
	WatchDir               string `toml:"watch_dir"`
	DebounceDelay          string `toml:"debounce_delay"`
	ImportExisting         *bool  `toml:"import_existing"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.scistore/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".scistore", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("dir", fc.Dir, &cfg.Dir)
	s.setString("backend", fc.Backend, &cfg.Backend)
	s.setString("sqlite-path", fc.SQLitePath, &cfg.SQLitePath)
	s.setString("creator", fc.Creator, &cfg.Creator)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)
	s.setString("watch-dir", fc.WatchDir, &cfg.WatchDir)

	if err := s.setDuration("debounce", fc.DebounceDelay, &cfg.DebounceDelay); err != nil {
		return err
	}

	s.setBool("original-calculator", fc.LoadOriginalCalculator, &cfg.LoadOriginalCalculator)
	s.setBool("import-existing", fc.ImportExisting, &cfg.ImportExisting)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
