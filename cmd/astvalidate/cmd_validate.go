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
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/astvalidation/pkg/ux"
	"github.com/AleutianAI/astvalidation/services/validation/engine"
	"github.com/AleutianAI/astvalidation/services/validation/problem"
	"github.com/AleutianAI/astvalidation/services/validation/units"
)

// errErrorMarkers is returned by validate --fail-on-error when error
// markers exist. main maps it to exit code 1.
var errErrorMarkers = errors.New("error markers found")

var (
	validateJSON        bool
	validateFailOnError bool
	validateRoot        string
	validateSession     map[string]string
)

var validateCmd = &cobra.Command{
	Use:   "validate [paths...]",
	Short: "Validate Java sources and store findings as markers",
	Long: `Discover .java files under the given paths (default: the project root),
run every enabled repository over them and replace each repository's markers
on each file with the new findings.

Examples:
  astvalidate validate
  astvalidate validate src/main/java/com/acme/Foo.java
  astvalidate validate --repos style --json
  astvalidate validate --session profile=strict --fail-on-error`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runValidate(cmd.Context(), current, validateOptions{
			Root:        validateRoot,
			Paths:       args,
			JSON:        validateJSON,
			FailOnError: validateFailOnError,
			Session:     validateSession,
		})
		return err
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false,
		"Print the report and markers as JSON")
	validateCmd.Flags().BoolVar(&validateFailOnError, "fail-on-error", false,
		"Exit with status 1 when error-severity markers exist")
	validateCmd.Flags().StringVar(&validateRoot, "root", ".",
		"Project root; marker resources are relative to it")
	validateCmd.Flags().StringToStringVar(&validateSession, "session", nil,
		"Session values visible to every rule (key=value,...)")
}

// validateOptions are the inputs of one validate run.
type validateOptions struct {
	Root        string
	Paths       []string
	JSON        bool
	FailOnError bool
	Session     map[string]string
}

// validateOutput is the JSON form of a validate run.
type validateOutput struct {
	Report  *engine.Report   `json:"report"`
	Markers []problem.Marker `json:"markers"`
}

// runValidate runs the engine over the selected files and prints results.
//
// Outputs:
//
//	*validateOutput - The report and resulting markers.
//	error - Setup or store errors from the run, or errErrorMarkers.
func runValidate(ctx context.Context, a *app, opts validateOptions) (*validateOutput, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	files, err := units.Collect(root, opts.Paths...)
	if err != nil {
		return nil, err
	}

	reg, err := a.registry()
	if err != nil {
		return nil, err
	}
	store, closeStore, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer closeStore()

	eng, err := a.newEngine(files, reg, store)
	if err != nil {
		return nil, err
	}
	if len(opts.Session) > 0 {
		values := make(map[string]any, len(opts.Session))
		for k, v := range opts.Session {
			values[k] = v
		}
		eng.WithSession(values)
	}

	progress, stopProgress := a.progress(fmt.Sprintf("validating %d files", len(files)))
	report, execErr := eng.Execute(ctx, progress)
	stopProgress()

	// Markers written before an interruption are still reported.
	ms, err := collectMarkers(context.WithoutCancel(ctx), store, a.repositories(reg), files)
	if err != nil {
		return nil, errors.Join(execErr, err)
	}
	out := &validateOutput{Report: report, Markers: ms}

	counts := ux.Counts{Units: len(files), Failures: report.RuleFailures}
	countSeverities(&counts, ms)

	if opts.JSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return out, err
		}
	} else {
		p := a.printer()
		p.Findings(findings(ms))
		if report.Interrupted {
			p.Warning("validation interrupted, results are partial")
		}
		p.Summary(counts)
	}

	if execErr != nil {
		return out, execErr
	}
	if opts.FailOnError && counts.Errors > 0 {
		return out, fmt.Errorf("%w: %d", errErrorMarkers, counts.Errors)
	}
	return out, nil
}

// progress returns a spinner on interactive terminals and a debug-log sink
// otherwise. The stop function must be called after Execute.
func (a *app) progress(message string) (engine.Progress, func()) {
	if ux.GetPersonalityLevel() == ux.PersonalityMachine || a.errOut != os.Stderr || !ux.IsTerminal(os.Stderr) {
		return engine.LogProgress{Logger: a.slog()}, func() {}
	}
	spin := ux.NewSpinner(a.errOut, message)
	spin.Start()
	return spin, spin.Stop
}
