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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/astvalidation/pkg/ux"
	"github.com/AleutianAI/astvalidation/services/validation/config"
	"github.com/AleutianAI/astvalidation/services/validation/problem"
	"github.com/AleutianAI/astvalidation/services/validation/rules"
	"github.com/AleutianAI/astvalidation/services/validation/rules/builtin"
	"github.com/AleutianAI/astvalidation/services/validation/telemetry"
	"github.com/AleutianAI/astvalidation/services/validation/watch"
)

const dirtyJava = `package demo;

public class A {
    void run() {
        System.out.println("hi");
        try {
            work();
        } catch (Exception e) {
        }
    }

    void work() throws Exception {}
}
`

const cleanJava = `package demo;

public class A {
    void run() {
        work();
    }

    void work() {}
}
`

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// project writes a Java project with the example rules and returns its root.
func project(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "A.java"), []byte(dirtyJava), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "B.java"), []byte(cleanJava), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "rules.yaml"), exampleRules, 0o644))
	return root
}

func testConfig(root, backend string) config.Config {
	cfg := config.Default()
	cfg.RulesFile = filepath.Join(root, "rules.yaml")
	cfg.Store = config.StoreConfig{Backend: backend}
	if backend == config.BackendBadger {
		cfg.Store.Path = filepath.Join(root, ".astvalidation", "markers")
	}
	cfg.Telemetry.TraceExporter = telemetry.ExporterNone
	cfg.Telemetry.MetricExporter = telemetry.ExporterNone
	cfg.Log.Level = "error"
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config) (*app, *syncBuffer) {
	t.Helper()
	orig := ux.GetPersonalityLevel()
	ux.SetPersonalityLevel(ux.PersonalityMachine)
	t.Cleanup(func() { ux.SetPersonalityLevel(orig) })

	out := &syncBuffer{}
	a, err := newApp(context.Background(), cfg, out, &syncBuffer{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a, out
}

func ruleIDs(ms []problem.Marker) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.RuleID
	}
	return out
}

func TestValidate_TextOutput(t *testing.T) {
	root := project(t)
	a, out := newTestApp(t, testConfig(root, config.BackendBadger))

	res, err := runValidate(context.Background(), a, validateOptions{Root: root})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Report.UnitsValidated)
	assert.ElementsMatch(t, []string{"empty-catch", "no-system-out"}, ruleIDs(res.Markers))

	text := out.String()
	assert.Contains(t, text, "src/A.java:5:9\twarning\tno-system-out\t")
	assert.Contains(t, text, "\terror\tempty-catch\t")
	assert.Contains(t, text, "SUMMARY: units=2 errors=1 warnings=1 infos=0 rule_failures=0")
}

func TestValidate_JSONAndFailOnError(t *testing.T) {
	root := project(t)
	a, out := newTestApp(t, testConfig(root, config.BackendMemory))

	_, err := runValidate(context.Background(), a, validateOptions{Root: root, JSON: true, FailOnError: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, errErrorMarkers)
	assert.Equal(t, 1, exitCode(err))

	var decoded validateOutput
	require.NoError(t, json.Unmarshal([]byte(out.String()), &decoded))
	assert.Equal(t, 2, decoded.Report.UnitsTotal)
	require.Len(t, decoded.Markers, 2)
	for _, m := range decoded.Markers {
		assert.Equal(t, "src/A.java", m.Resource)
	}
}

func TestValidate_RepositoryFilterAndSinglePath(t *testing.T) {
	root := project(t)
	cfg := testConfig(root, config.BackendMemory)
	cfg.Repositories = []string{"style"}
	a, _ := newTestApp(t, cfg)

	res, err := runValidate(context.Background(), a, validateOptions{
		Root:  root,
		Paths: []string{filepath.Join(root, "src", "A.java")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.UnitsTotal)
	assert.Equal(t, []string{"no-system-out"}, ruleIDs(res.Markers))
}

func TestValidate_FixedFileLosesMarkers(t *testing.T) {
	root := project(t)
	a, _ := newTestApp(t, testConfig(root, config.BackendBadger))
	ctx := context.Background()

	res, err := runValidate(ctx, a, validateOptions{Root: root})
	require.NoError(t, err)
	require.Len(t, res.Markers, 2)

	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "A.java"), []byte(cleanJava), 0o644))
	res, err = runValidate(ctx, a, validateOptions{Root: root})
	require.NoError(t, err)
	assert.Empty(t, res.Markers)

	listed, err := runMarkersList(ctx, a, root, nil, "", false)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestMarkers_ListAndClear(t *testing.T) {
	root := project(t)
	a, out := newTestApp(t, testConfig(root, config.BackendBadger))
	ctx := context.Background()

	_, err := runValidate(ctx, a, validateOptions{Root: root})
	require.NoError(t, err)

	all, err := runMarkersList(ctx, a, root, nil, "", false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	style, err := runMarkersList(ctx, a, root, []string{filepath.Join(root, "src")}, "style", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"no-system-out"}, ruleIDs(style))

	out.Reset()
	_, err = runMarkersList(ctx, a, root, nil, "", true)
	require.NoError(t, err)
	var decoded []problem.Marker
	require.NoError(t, json.Unmarshal([]byte(out.String()), &decoded))
	assert.Len(t, decoded, 2)

	require.NoError(t, runMarkersClear(ctx, a, root, []string{filepath.Join(root, "src", "A.java")}, "style"))
	remaining, err := runMarkersList(ctx, a, root, nil, "", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"empty-catch"}, ruleIDs(remaining))

	require.NoError(t, runMarkersClear(ctx, a, root, nil, ""))
	remaining, err = runMarkersList(ctx, a, root, nil, "", false)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestMarkers_MemoryBackendRejected(t *testing.T) {
	root := project(t)
	a, _ := newTestApp(t, testConfig(root, config.BackendMemory))

	_, err := runMarkersList(context.Background(), a, root, nil, "", false)
	assert.ErrorIs(t, err, errMemoryStore)
	assert.ErrorIs(t, runMarkersClear(context.Background(), a, root, nil, ""), errMemoryStore)
}

func TestRulesList(t *testing.T) {
	root := project(t)
	cfg := testConfig(root, config.BackendMemory)
	a, out := newTestApp(t, cfg)

	require.NoError(t, runRulesList(a, false))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "correctness\tcorrectness\tsyntax\tsyntax-error\terror", lines[0])
	assert.Equal(t, "style\tstyle\tmethod-length\tmethod-length\tinfo", lines[3])

	out.Reset()
	require.NoError(t, runRulesList(a, true))
	assert.Equal(t, strings.Join(builtin.Catalog().Kinds(), "\n")+"\n", out.String())
}

func TestInit_WritesLoadableFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "proj")
	var out bytes.Buffer
	require.NoError(t, runInit(&out, dir, false))

	cfg, err := config.Load(filepath.Join(dir, config.DefaultFileName))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rules.yaml"), cfg.RulesFile)

	reg, err := rules.LoadRegistry(cfg.RulesFile, builtin.Catalog())
	require.NoError(t, err)
	assert.Equal(t, []string{"correctness", "style"}, reg.Names())

	require.NoError(t, os.WriteFile(cfg.RulesFile, []byte("custom"), 0o644))
	require.NoError(t, runInit(&out, dir, false))
	data, err := os.ReadFile(cfg.RulesFile)
	require.NoError(t, err)
	assert.Equal(t, "custom", string(data), "existing files kept")

	require.NoError(t, runInit(&out, dir, true))
	data, err = os.ReadFile(cfg.RulesFile)
	require.NoError(t, err)
	assert.Equal(t, exampleRules, data)
}

func TestWatch_RevalidatesChangedFiles(t *testing.T) {
	root := project(t)
	cfg := testConfig(root, config.BackendMemory)
	cfg.Watch.Debounce = 50 * time.Millisecond
	a, out := newTestApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan *watch.Watcher, 1)
	done := make(chan error, 1)
	go func() { done <- runWatch(ctx, a, root, ready) }()

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("watch exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not start")
	}
	assert.Contains(t, out.String(), "src/A.java:5:9")

	cPath := filepath.Join(root, "src", "C.java")
	require.NoError(t, os.WriteFile(cPath, []byte(strings.ReplaceAll(dirtyJava, "class A", "class C")), 0o644))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "src/C.java:5:9")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestServeMetrics(t *testing.T) {
	root := project(t)
	cfg := testConfig(root, config.BackendMemory)
	cfg.Telemetry.MetricExporter = telemetry.ExporterPrometheus
	a, _ := newTestApp(t, cfg)

	stop, err := serveMetrics(a, "")
	require.NoError(t, err)
	stop()

	stop, err = serveMetrics(a, "127.0.0.1:0")
	require.NoError(t, err)
	stop()

	_, err = serveMetrics(a, "256.0.0.1:bad")
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.Join(errors.New("x"), errErrorMarkers)))
	assert.Equal(t, 2, exitCode(errors.New("boom")))
}

func TestRootCommand_ValidateWithConfigFile(t *testing.T) {
	root := project(t)
	var initOut bytes.Buffer
	require.NoError(t, runInit(&initOut, root, false))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{
		"--config", filepath.Join(root, config.DefaultFileName),
		"--store", "memory",
		"--repos", "correctness",
		"--output", "machine",
		"--log-level", "error",
		"validate", "--root", root, "--json",
	})
	orig := ux.GetPersonalityLevel()
	t.Cleanup(func() {
		ux.SetPersonalityLevel(orig)
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	require.NoError(t, teardown(nil, nil))
	require.NoError(t, err)

	var decoded validateOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, []string{"empty-catch"}, ruleIDs(decoded.Markers))
}
