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
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/astvalidation/services/validation/markers"
	"github.com/AleutianAI/astvalidation/services/validation/rules"
	"github.com/AleutianAI/astvalidation/services/validation/telemetry"
	"github.com/AleutianAI/astvalidation/services/validation/units"
	"github.com/AleutianAI/astvalidation/services/validation/watch"
)

var (
	watchMetricsAddr string
	watchDebounce    time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch [root]",
	Short: "Re-validate Java sources as they change",
	Long: `Validate every .java file under root, then watch the tree and re-validate
changed files after each quiet period. Markers of deleted files are removed.

With --metrics-addr (or telemetry.prometheus_addr), Prometheus metrics are
served on /metrics at that address.

Examples:
  astvalidate watch
  astvalidate watch src --debounce 500ms
  astvalidate watch . --metrics-addr :9464`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) == 1 {
			root = args[0]
		}
		return runWatch(cmd.Context(), current, root, nil)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address (e.g. :9464)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0,
		"Quiet period before changes are validated (default from config)")
}

// watchSession validates batches of changed files for one watch run.
type watchSession struct {
	a     *app
	root  string
	reg   *rules.Registry
	store markers.Store
}

// validate runs the engine over files and prints their findings.
func (s *watchSession) validate(ctx context.Context, files []*units.FileUnit) error {
	if len(files) == 0 {
		return nil
	}
	eng, err := s.a.newEngine(files, s.reg, s.store)
	if err != nil {
		return err
	}
	report, err := eng.Execute(ctx, nil)
	if err != nil {
		return err
	}
	ms, err := collectMarkers(context.WithoutCancel(ctx), s.store, s.a.repositories(s.reg), files)
	if err != nil {
		return err
	}

	p := s.a.printer()
	p.Findings(findings(ms))
	p.Info(fmt.Sprintf("validated %d files, %d markers, %d rule failures",
		report.UnitsValidated, len(ms), report.RuleFailures))
	return nil
}

// forget removes every enabled repository's markers from a deleted file.
func (s *watchSession) forget(ctx context.Context, resource string) error {
	for _, repo := range s.a.repositories(s.reg) {
		if err := s.store.DeleteMarkers(ctx, resource, repo.MarkerType, markers.DepthZero); err != nil {
			return err
		}
	}
	return nil
}

// handle is the watch.Handler for a batch of changes.
func (s *watchSession) handle(ctx context.Context, changes []watch.Change) {
	logger := s.a.slog()
	var files []*units.FileUnit
	for _, c := range changes {
		u := units.NewFileUnit(s.root, c.Path)
		if c.Op == watch.OpRemove && !u.Exists() {
			if err := s.forget(ctx, u.Resource()); err != nil {
				logger.Error("failed to clear markers", slog.String("resource", u.Resource()), slog.String("error", err.Error()))
			}
			continue
		}
		files = append(files, u)
	}
	if err := s.validate(ctx, files); err != nil {
		logger.Error("validation failed", slog.Int("files", len(files)), slog.String("error", err.Error()))
	}
}

// runWatch validates root, then re-validates on change until ctx ends.
// ready, when non-nil, receives the watcher once it is running.
func runWatch(ctx context.Context, a *app, root string, ready chan<- *watch.Watcher) error {
	reg, err := a.registry()
	if err != nil {
		return err
	}
	store, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	s := &watchSession{a: a, root: root, reg: reg, store: store}

	stopMetrics, err := serveMetrics(a, a.cfg.Telemetry.PrometheusAddr)
	if err != nil {
		return err
	}
	defer stopMetrics()

	files, err := units.Discover(root)
	if err != nil {
		return err
	}
	if err := s.validate(ctx, files); err != nil {
		return err
	}

	w, err := watch.New(root, s.handle, watch.Options{
		Debounce: a.cfg.Watch.Debounce,
		Logger:   a.slog(),
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	a.printer().Info(fmt.Sprintf("watching %s (ctrl-c to stop)", root))
	if ready != nil {
		ready <- w
	}
	<-ctx.Done()
	return nil
}

// serveMetrics starts the /metrics endpoint when addr is set.
func serveMetrics(a *app, addr string) (stop func(), err error) {
	if addr == "" {
		return func() {}, nil
	}
	handler := telemetry.MetricsHandler()
	if handler == nil {
		return nil, errors.New("metrics endpoint requires telemetry.metric_exporter: prometheus")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.slog().Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	a.slog().Info("serving metrics", slog.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
