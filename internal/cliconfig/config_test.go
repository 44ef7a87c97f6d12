package cliconfig

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/bft-labs/scistore"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Backend != scistore.BackendSQLite {
		t.Errorf("Backend = %v, want sqlite", cfg.Backend)
	}
	if cfg.DebounceDelay != 200*time.Millisecond {
		t.Errorf("DebounceDelay = %v, want 200ms", cfg.DebounceDelay)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name           string
		config         Config
		wantErr        bool
		wantBackend    string
		wantSQLitePath string
	}{
		{
			name: "sqlite under dir",
			config: Config{
				Dir:           "/tmp/archive",
				DebounceDelay: time.Second,
			},
			wantBackend:    scistore.BackendSQLite,
			wantSQLitePath: filepath.Join("/tmp/archive", scistore.DefaultDBName),
		},
		{
			name: "explicit sqlite path",
			config: Config{
				SQLitePath:    "/var/db/objects.db",
				DebounceDelay: time.Second,
			},
			wantBackend:    scistore.BackendSQLite,
			wantSQLitePath: "/var/db/objects.db",
		},
		{
			name: "memory needs no dir",
			config: Config{
				Backend:       "Memory",
				DebounceDelay: time.Second,
			},
			wantBackend: scistore.BackendMemory,
		},
		{
			name: "missing dir",
			config: Config{
				Backend:       scistore.BackendFS,
				DebounceDelay: time.Second,
			},
			wantErr: true,
		},
		{
			name: "unknown backend",
			config: Config{
				Dir:           "/tmp/archive",
				Backend:       "s3",
				DebounceDelay: time.Second,
			},
			wantErr: true,
		},
		{
			name: "zero debounce",
			config: Config{
				Dir: "/tmp/archive",
			},
			wantErr: true,
		},
		{
			name: "bad log level",
			config: Config{
				Dir:           "/tmp/archive",
				LogLevel:      "chatty",
				DebounceDelay: time.Second,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if tt.config.Backend != tt.wantBackend {
				t.Errorf("Backend = %v, want %v", tt.config.Backend, tt.wantBackend)
			}
			if tt.config.SQLitePath != tt.wantSQLitePath {
				t.Errorf("SQLitePath = %v, want %v", tt.config.SQLitePath, tt.wantSQLitePath)
			}
		})
	}
}

func TestConfig_Store(t *testing.T) {
	cfg := Config{
		Dir:                    "/archive",
		Backend:                scistore.BackendFS,
		Creator:                "me",
		LoadOriginalCalculator: true,
		WatchDir:               "/inbox",
		DebounceDelay:          time.Second,
	}
	sc := cfg.Store()
	if sc.Dir != cfg.Dir || sc.Backend != cfg.Backend || sc.Creator != cfg.Creator {
		t.Errorf("Store() = %+v", sc)
	}
	if !sc.LoadOriginalCalculator || sc.WatchDir != "/inbox" || sc.DebounceDelay != time.Second {
		t.Errorf("Store() = %+v", sc)
	}
}
