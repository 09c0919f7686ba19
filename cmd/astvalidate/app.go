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
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/AleutianAI/astvalidation/pkg/logging"
	"github.com/AleutianAI/astvalidation/pkg/ux"
	"github.com/AleutianAI/astvalidation/services/validation/ast"
	"github.com/AleutianAI/astvalidation/services/validation/config"
	"github.com/AleutianAI/astvalidation/services/validation/engine"
	"github.com/AleutianAI/astvalidation/services/validation/markers"
	"github.com/AleutianAI/astvalidation/services/validation/problem"
	"github.com/AleutianAI/astvalidation/services/validation/rules"
	"github.com/AleutianAI/astvalidation/services/validation/rules/builtin"
	storagebadger "github.com/AleutianAI/astvalidation/services/validation/storage/badger"
	"github.com/AleutianAI/astvalidation/services/validation/telemetry"
	"github.com/AleutianAI/astvalidation/services/validation/units"
)

// errMemoryStore is returned by commands that need persisted markers.
var errMemoryStore = errors.New("the memory store backend does not persist markers; set store.backend to badger")

// app holds what every command needs once configuration is resolved.
type app struct {
	cfg    config.Config
	logger *logging.Logger
	out    io.Writer
	errOut io.Writer

	shutdownTelemetry func(context.Context) error
}

// newApp builds the logger and installs telemetry for cfg.
func newApp(ctx context.Context, cfg config.Config, out, errOut io.Writer) (*app, error) {
	logger := logging.New(logging.Config{
		Level:   cfg.LogLevel(),
		Service: "astvalidate",
		JSON:    cfg.Log.JSON,
		LogDir:  cfg.Log.Dir,
		Output:  errOut,
	})

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	return &app{
		cfg:               cfg,
		logger:            logger,
		out:               out,
		errOut:            errOut,
		shutdownTelemetry: shutdown,
	}, nil
}

// Close flushes telemetry and the logger.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.shutdownTelemetry != nil {
		errs = append(errs, a.shutdownTelemetry(ctx))
	}
	errs = append(errs, a.logger.Close())
	return errors.Join(errs...)
}

func (a *app) slog() *slog.Logger {
	return a.logger.Slog()
}

func (a *app) printer() *ux.Printer {
	return ux.NewPrinter(a.out)
}

// registry loads the configured rules file against the builtin catalog.
func (a *app) registry() (*rules.Registry, error) {
	return rules.LoadRegistry(a.cfg.RulesFile, builtin.Catalog())
}

// repositories returns the enabled repositories in run order.
func (a *app) repositories(reg *rules.Registry) []*rules.Repository {
	return reg.Repositories(a.cfg.Repositories...)
}

// openStore opens the configured marker store. The returned close function
// must be called.
func (a *app) openStore() (markers.Store, func() error, error) {
	switch a.cfg.Store.Backend {
	case config.BackendMemory:
		s := markers.NewMemoryStore()
		return s, s.Close, nil
	default:
		bcfg := storagebadger.DefaultConfig()
		bcfg.Path = a.cfg.Store.Path
		bcfg.Logger = a.slog()
		s, err := markers.OpenBadgerStore(bcfg, a.slog())
		if err != nil {
			return nil, nil, fmt.Errorf("open marker store %s: %w", a.cfg.Store.Path, err)
		}
		return s, s.Close, nil
	}
}

// persistentStore opens the store for commands that only read or clear
// existing markers.
func (a *app) persistentStore() (markers.Store, func() error, error) {
	if a.cfg.Store.Backend == config.BackendMemory {
		return nil, nil, errMemoryStore
	}
	return a.openStore()
}

// newEngine creates an engine over files with the configured repositories.
func (a *app) newEngine(files []*units.FileUnit, reg *rules.Registry, store markers.Store) (*engine.Engine, error) {
	return engine.New(
		units.AsSourceUnits(files),
		a.cfg.Repositories,
		reg,
		ast.NewJavaParser(ast.WithParserLogger(a.slog())),
		store,
		engine.WithLogger(a.slog()),
		engine.WithWorkers(a.cfg.Workers),
	)
}

// collectMarkers returns the markers of every enabled repository on files.
func collectMarkers(ctx context.Context, store markers.Store, repos []*rules.Repository, files []*units.FileUnit) ([]problem.Marker, error) {
	var out []problem.Marker
	for _, f := range files {
		for _, repo := range repos {
			ms, err := store.FindMarkers(ctx, f.Resource(), repo.MarkerType, markers.DepthZero)
			if err != nil {
				return nil, fmt.Errorf("find markers on %s: %w", f.Resource(), err)
			}
			out = append(out, ms...)
		}
	}
	return out, nil
}

// findings converts markers for ux output.
func findings(ms []problem.Marker) []ux.Finding {
	out := make([]ux.Finding, len(ms))
	for i, m := range ms {
		out[i] = ux.Finding{
			Resource: m.Resource,
			Line:     m.Line,
			Column:   m.Column,
			Severity: m.Severity.String(),
			RuleID:   m.RuleID,
			Message:  m.Message,
		}
	}
	return out
}

// countSeverities fills the severity fields of c from ms.
func countSeverities(c *ux.Counts, ms []problem.Marker) {
	for _, m := range ms {
		switch m.Severity {
		case problem.SeverityError:
			c.Errors++
		case problem.SeverityWarning:
			c.Warnings++
		default:
			c.Infos++
		}
	}
}
