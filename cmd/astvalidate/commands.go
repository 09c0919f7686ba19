// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/astvalidation/pkg/ux"
	"github.com/AleutianAI/astvalidation/services/validation/config"
	"github.com/AleutianAI/astvalidation/services/validation/telemetry"
)

// =============================================================================
// GLOBAL FLAGS
// =============================================================================

var (
	configPath  string
	reposFlag   []string
	storeFlag   string
	workersFlag int
	logLevel    string
	logJSON     bool
	outputStyle string

	// current is set by the root PersistentPreRunE.
	current *app
)

// =============================================================================
// ROOT COMMAND
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "astvalidate",
	Short: "Validate Java sources against rule repositories",
	Long: `astvalidate parses Java sources once, runs every enabled rule repository
over them and stores each finding as a marker.

Configuration is read from --config, or .astvalidation.yaml in the working
directory when present. Flags override configuration values.

Examples:
  astvalidate init
  astvalidate validate src/
  astvalidate validate --json --fail-on-error
  astvalidate markers list src/main/java
  astvalidate watch . --metrics-addr :9464`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "",
		"Configuration file (default: ./"+config.DefaultFileName+" if present)")
	flags.StringSliceVar(&reposFlag, "repos", nil,
		"Comma-separated repositories to run, in order (default: all)")
	flags.StringVar(&storeFlag, "store", "",
		"Marker store directory; \"memory\" keeps markers in memory only")
	flags.IntVar(&workersFlag, "workers", 0,
		"Worker pool size (default: number of CPUs)")
	flags.StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn or error")
	flags.BoolVar(&logJSON, "log-json", false,
		"Write logs to stderr as JSON")
	flags.StringVar(&outputStyle, "output", "",
		"Output style: standard, minimal or machine (default: detect terminal)")

	rootCmd.AddCommand(initCmd, validateCmd, markersCmd, rulesCmd, watchCmd)
}

// setup resolves configuration and builds the shared app.
func setup(cmd *cobra.Command, _ []string) error {
	// init writes configuration; it must not require one to exist.
	if cmd == initCmd {
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ux.InitPersonality()
	if outputStyle != "" {
		ux.SetPersonalityLevel(ux.ParsePersonalityLevel(outputStyle))
	}

	a, err := newApp(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	current = a
	return nil
}

// applyFlags copies explicitly set flags over cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("repos") {
		cfg.Repositories = reposFlag
	}
	if flags.Changed("store") {
		if storeFlag == config.BackendMemory {
			cfg.Store = config.StoreConfig{Backend: config.BackendMemory}
		} else {
			cfg.Store = config.StoreConfig{Backend: config.BackendBadger, Path: storeFlag}
		}
	}
	if flags.Changed("workers") {
		cfg.Workers = workersFlag
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON = logJSON
	}
	if cmd == watchCmd {
		if flags.Changed("metrics-addr") {
			cfg.Telemetry.PrometheusAddr = watchMetricsAddr
		}
		if flags.Changed("debounce") {
			cfg.Watch.Debounce = watchDebounce
		}
		if cfg.Telemetry.PrometheusAddr != "" &&
			(cfg.Telemetry.MetricExporter == "" || cfg.Telemetry.MetricExporter == telemetry.ExporterNone) {
			cfg.Telemetry.MetricExporter = telemetry.ExporterPrometheus
		}
	}
}

func teardown(_ *cobra.Command, _ []string) error {
	if current == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := current.Close(ctx)
	current = nil
	return err
}
