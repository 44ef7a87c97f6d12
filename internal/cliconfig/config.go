package cliconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/bft-labs/scistore"
)

// Config holds CLI configuration for scistore.
type Config struct {
	Dir        string
	Backend    string
	SQLitePath string
	Creator    string

	LogLevel  string
	LogFormat string

	LoadOriginalCalculator bool

	WatchDir       string
	DebounceDelay  time.Duration
	ImportExisting bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	d := scistore.DefaultConfig()
	return Config{
		Backend:       d.Backend,
		Creator:       d.Creator,
		LogLevel:      d.LogLevel,
		LogFormat:     d.LogFormat,
		DebounceDelay: d.DebounceDelay,
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.Dir == "" && c.SQLitePath == "" && !strings.EqualFold(c.Backend, scistore.BackendMemory) {
		return fmt.Errorf("dir is required")
	}
	if c.DebounceDelay <= 0 {
		return fmt.Errorf("debounce delay must be positive")
	}
	sc := c.Store()
	sc.SetDefaults()
	if err := sc.Validate(); err != nil {
		return err
	}
	c.Backend = sc.Backend
	c.SQLitePath = sc.SQLitePath
	return nil
}

// Store converts c to the library configuration.
func (c Config) Store() scistore.Config {
	return scistore.Config{
		Backend:                c.Backend,
		Dir:                    c.Dir,
		SQLitePath:             c.SQLitePath,
		Creator:                c.Creator,
		LogLevel:               c.LogLevel,
		LogFormat:              c.LogFormat,
		LoadOriginalCalculator: c.LoadOriginalCalculator,
		WatchDir:               c.WatchDir,
		DebounceDelay:          c.DebounceDelay,
	}
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
