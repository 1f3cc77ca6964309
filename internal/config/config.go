// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads daemon configuration with file < environment
// precedence: the optional YAML file sets the base, CLIPVEIL_* variables
// override it, and defaults fill whatever remains.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration.
type Config struct {
	// Tools
	FFmpegBin     string `yaml:"ffmpegBin"`
	FFprobeBin    string `yaml:"ffprobeBin"`
	CascadePath   string `yaml:"cascadePath"`
	WatermarkPath string `yaml:"watermarkPath"`

	// Processing
	WorkDir       string `yaml:"workDir"`
	MaxConcurrent int    `yaml:"maxConcurrent"`

	// Encoder supervision
	KillGrace    time.Duration `yaml:"killGrace"`
	StartTimeout time.Duration `yaml:"startTimeout"`
	StallTimeout time.Duration `yaml:"stallTimeout"`

	// Logging
	LogLevel string `yaml:"logLevel"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		FFmpegBin:     "ffmpeg",
		FFprobeBin:    "ffprobe",
		WorkDir:       os.TempDir(),
		MaxConcurrent: 2,
		KillGrace:     5 * time.Second,
		StartTimeout:  30 * time.Second,
		StallTimeout:  60 * time.Second,
		LogLevel:      "info",
	}
}

// Load resolves the configuration. path may be empty; a missing file at an
// explicitly given path is an error, defaults plus environment are not.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run.
func (c Config) Validate() error {
	var errs []error
	if c.FFmpegBin == "" {
		errs = append(errs, errors.New("ffmpegBin must not be empty"))
	}
	if c.FFprobeBin == "" {
		errs = append(errs, errors.New("ffprobeBin must not be empty"))
	}
	if c.WorkDir == "" {
		errs = append(errs, errors.New("workDir must not be empty"))
	}
	if c.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("maxConcurrent must be >= 1, got %d", c.MaxConcurrent))
	}
	if c.KillGrace <= 0 {
		errs = append(errs, errors.New("killGrace must be positive"))
	}
	if c.StartTimeout <= 0 {
		errs = append(errs, errors.New("startTimeout must be positive"))
	}
	if c.StallTimeout <= 0 {
		errs = append(errs, errors.New("stallTimeout must be positive"))
	}
	return errors.Join(errs...)
}
