// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the astvalidate configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/astvalidation/pkg/logging"
	"github.com/AleutianAI/astvalidation/services/validation/telemetry"
)

// DefaultFileName is the configuration file looked up in the working
// directory when no path is given.
const DefaultFileName = ".astvalidation.yaml"

// Store backends.
const (
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// ErrInvalidConfig is returned when the configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the astvalidate configuration.
type Config struct {
	// RulesFile is the rule registry file.
	RulesFile string `yaml:"rules_file" validate:"required"`

	// Repositories are the enabled repositories in run order. Empty enables
	// every repository of the rules file.
	Repositories []string `yaml:"repositories" validate:"dive,required"`

	// Workers is the worker pool size. 0 uses runtime.NumCPU().
	Workers int `yaml:"workers" validate:"gte=0,lte=1024"`

	Store     StoreConfig      `yaml:"store"`
	Log       LogConfig        `yaml:"log"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Watch     WatchConfig      `yaml:"watch"`
}

// StoreConfig selects the marker store.
type StoreConfig struct {
	// Backend is "badger" or "memory".
	Backend string `yaml:"backend" validate:"required,oneof=badger memory"`

	// Path is the Badger directory. Required for the badger backend.
	Path string `yaml:"path" validate:"required_if=Backend badger"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" validate:"loglevel"`

	// JSON switches stderr output to JSON.
	JSON bool `yaml:"json"`

	// Dir enables daily JSON log files in this directory.
	Dir string `yaml:"dir"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	// Debounce is the quiet period before a batch of changes is validated.
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
}

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	_ = configValidate.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		_, ok := logging.ParseLevel(fl.Field().String())
		return ok
	})
}

// Default returns the built-in configuration.
func Default() Config {
	tel := telemetry.DefaultConfig()
	return Config{
		RulesFile:    "rules.yaml",
		Repositories: nil,
		Workers:      0,
		Store: StoreConfig{
			Backend: BackendBadger,
			Path:    filepath.Join(".astvalidation", "markers"),
		},
		Log:       LogConfig{Level: "info"},
		Telemetry: tel,
		Watch:     WatchConfig{Debounce: 200 * time.Millisecond},
	}
}

// Validate checks c against its struct tags.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Load reads the configuration file at path over Default().
//
// Description:
//
//	Fields missing from the file keep their default values. Relative
//	rules_file and store.path values are resolved against the directory of
//	the configuration file. An empty path tries DefaultFileName in the
//	working directory and falls back to Default() when it does not exist.
//
// Inputs:
//
//	path - Configuration file, or "".
//
// Outputs:
//
//	Config - The loaded, validated configuration.
//	error - Read, YAML or ErrInvalidConfig errors.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}

	base := filepath.Dir(path)
	cfg.RulesFile = resolve(base, cfg.RulesFile)
	cfg.Store.Path = resolve(base, cfg.Store.Path)
	if cfg.Log.Dir != "" {
		cfg.Log.Dir = resolve(base, cfg.Log.Dir)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Write stores c as YAML at path, creating parent directories.
func Write(path string, c Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LogLevel returns the parsed log level, LevelInfo when unset.
func (c Config) LogLevel() logging.Level {
	level, _ := logging.ParseLevel(c.Log.Level)
	return level
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
