package cliconfig

import (
	"github.com/caarlos0/env/v11"
)

// EnvConfig lists the SCISTORE_* environment variables.
type EnvConfig struct {
	Dir                    string `env:"SCISTORE_DIR"`
	Backend                string `env:"SCISTORE_BACKEND"`
	SQLitePath             string `env:"SCISTORE_SQLITE_PATH"`
	Creator                string `env:"SCISTORE_CREATOR"`
	LogLevel               string `env:"SCISTORE_LOG_LEVEL"`
	LogFormat              string `env:"SCISTORE_LOG_FORMAT"`
	LoadOriginalCalculator string `env:"SCISTORE_LOAD_ORIGINAL_CALCULATOR"`
	WatchDir               string `env:"SCISTORE_WATCH_DIR"`
	DebounceDelay          string `env:"SCISTORE_DEBOUNCE_DELAY"`
	ImportExisting         string `env:"SCISTORE_IMPORT_EXISTING"`
}

// LoadEnvConfig reads the SCISTORE_* environment variables.
func LoadEnvConfig() (EnvConfig, error) {
	var ec EnvConfig
	if err := env.Parse(&ec); err != nil {
		return ec, err
	}
	return ec, nil
}

// ApplyEnvConfig applies SCISTORE_* environment variables to cfg. They
// override the config file but not flags that have been explicitly set.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	ec, err := LoadEnvConfig()
	if err != nil {
		return err
	}
	s := newConfigSetter(changed)

	s.setString("dir", ec.Dir, &cfg.Dir)
	s.setString("backend", ec.Backend, &cfg.Backend)
	s.setString("sqlite-path", ec.SQLitePath, &cfg.SQLitePath)
	s.setString("creator", ec.Creator, &cfg.Creator)
	s.setString("log-level", ec.LogLevel, &cfg.LogLevel)
	s.setString("log-format", ec.LogFormat, &cfg.LogFormat)
	s.setString("watch-dir", ec.WatchDir, &cfg.WatchDir)

	if err := s.setDuration("debounce", ec.DebounceDelay, &cfg.DebounceDelay); err != nil {
		return err
	}

	s.setBoolFromString("original-calculator", ec.LoadOriginalCalculator, &cfg.LoadOriginalCalculator)
	s.setBoolFromString("import-existing", ec.ImportExisting, &cfg.ImportExisting)

	return nil
}
