package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"smartfast/internal/builtins"
	"smartfast/internal/dependency"
)

// ConfigFileName is looked up from the working directory upwards.
const ConfigFileName = ".smartfast.yaml"

type Config struct {
	// RecursionPasses is the number of extra summary passes a recursive
	// call cycle gets.
	RecursionPasses int `yaml:"recursionPasses"`
	// ReentrancyPhis redefines the contract's state after external calls.
	ReentrancyPhis bool `yaml:"reentrancyPhis"`
	// Builtins is a YAML overrides file for the builtins table. Relative
	// paths are resolved against the config file's directory.
	Builtins  string `yaml:"builtins"`
	Verbosity int    `yaml:"verbosity"`
}

func DefaultConfig() Config {
	return Config{
		RecursionPasses: dependency.DefaultRecursionPasses,
		ReentrancyPhis:  true,
	}
}

// LoadConfig searches startDir and its parents for ConfigFileName and
// returns the defaults overlaid with its content, along with the file's
// path. A missing file is not an error; the path is then "".
func LoadConfig(startDir string) (Config, string, error) {
	cfg := DefaultConfig()
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return cfg, "", err
	}
	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			cfg, err := ReadConfig(candidate)
			return cfg, candidate, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return cfg, "", nil
}

// ReadConfig parses one config file.
func ReadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	if cfg.RecursionPasses < 0 {
		return cfg, fmt.Errorf("invalid config %s: recursionPasses must not be negative", path)
	}
	if cfg.Builtins != "" && !filepath.IsAbs(cfg.Builtins) {
		cfg.Builtins = filepath.Join(filepath.Dir(path), cfg.Builtins)
	}
	return cfg, nil
}

// Table returns the builtins table the config selects.
func (c Config) Table() (*builtins.Table, error) {
	if c.Builtins == "" {
		return builtins.Default(), nil
	}
	return builtins.Load(c.Builtins)
}
