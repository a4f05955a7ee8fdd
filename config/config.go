// Package config loads the coin ledger's runtime settings from the environment.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config holds the settings shared by the ledger tools. Command-line flags
// override these values.
type Config struct {
	// Dir is the base directory of the record store.
	Dir string `env:"COINLEDGER_DIR" envDefault:"./data"`

	// Index is the SQLite index file. Relative paths resolve against Dir.
	// "off" disables the index.
	Index string `env:"COINLEDGER_INDEX" envDefault:"index.db"`

	LogPrefix string `env:"COINLEDGER_LOG_PREFIX" envDefault:"coinledger: "`

	// NumberAttempts bounds the retries when a generated account number is
	// already taken.
	NumberAttempts int `env:"COINLEDGER_NUMBER_ATTEMPTS" envDefault:"1000"`
}

// Load reads Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.NumberAttempts < 1 {
		return Config{}, fmt.Errorf("parse env: COINLEDGER_NUMBER_ATTEMPTS must be positive, got %d", cfg.NumberAttempts)
	}
	return cfg, nil
}

// IndexDisabled is the Index value that turns the index off.
const IndexDisabled = "off"

// IndexPath returns the resolved index path, or "" when the index is off.
func (c Config) IndexPath() string {
	if c.Index == IndexDisabled {
		return ""
	}
	if c.Index == "" || filepath.IsAbs(c.Index) {
		return c.Index
	}
	return filepath.Join(c.Dir, c.Index)
}
