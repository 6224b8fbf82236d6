package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the rnxtab settings. All fields are optional, command-line
// flags override the file values.
type Config struct {
	// OutDir is the directory the converted files are written to.
	OutDir string `yaml:"outdir"`

	// SatSys restricts the output to the given satellite systems, e.g. "GRE".
	// Empty means all systems.
	SatSys string `yaml:"satsys"`

	// Summary also writes a plain-text observation summary per input file.
	Summary bool `yaml:"summary"`
}

func defaultConfig() *Config {
	return &Config{OutDir: "."}
}

// loadConfig reads the YAML config file at path.
func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}
