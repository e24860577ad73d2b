package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	GenesisFile    string `toml:"GenesisFile"`
	Environment    string `toml:"Environment"`
	LogLevel       string `toml:"LogLevel"`
	LogFile        string `toml:"LogFile"`
	// IdempotencyDB is the SQLite file caching submit responses. Empty
	// disables idempotent replay.
	IdempotencyDB string `toml:"IdempotencyDB"`

	Registry    Registry       `toml:"registry"`
	Escrow      Escrow         `toml:"escrow"`
	Arbitration Arbitration    `toml:"arbitration"`
	RPC         RPC            `toml:"rpc"`
	Telemetry   Telemetry      `toml:"telemetry"`
	Genesis     []GenesisAlloc `toml:"genesis"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the stock local configuration.
func Default() *Config {
	cfg := &Config{
		RPCAddress:     ":8545",
		MetricsAddress: ":9100",
		DataDir:        "./accord-data",
		Environment:    "local",
		LogLevel:       "info",
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./accord-data"
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	c.Registry.applyDefaults()
	c.Arbitration.applyDefaults()
	c.RPC.applyDefaults()
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
