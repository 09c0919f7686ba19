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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/astvalidation/services/validation/markers"
	"github.com/AleutianAI/astvalidation/services/validation/problem"
	"github.com/AleutianAI/astvalidation/services/validation/units"
)

var (
	markersType string
	markersRoot string
	markersJSON bool
)

var markersCmd = &cobra.Command{
	Use:   "markers",
	Short: "Inspect or clear persisted markers",
	Long: `Commands for the markers stored by previous validate runs.

Paths select resources recursively; with no path every marker is selected.

Examples:
  astvalidate markers list
  astvalidate markers list src/main/java --type style
  astvalidate markers clear src/legacy`,
}

var markersListCmd = &cobra.Command{
	Use:   "list [paths...]",
	Short: "List stored markers",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runMarkersList(cmd.Context(), current, markersRoot, args, markersType, markersJSON)
		return err
	},
}

var markersClearCmd = &cobra.Command{
	Use:   "clear [paths...]",
	Short: "Delete stored markers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMarkersClear(cmd.Context(), current, markersRoot, args, markersType)
	},
}

func init() {
	markersCmd.PersistentFlags().StringVar(&markersType, "type", "",
		"Only markers of this type (default: all types)")
	markersCmd.PersistentFlags().StringVar(&markersRoot, "root", ".",
		"Project root the paths are relative to")
	markersListCmd.Flags().BoolVar(&markersJSON, "json", false,
		"Print markers as JSON")

	markersCmd.AddCommand(markersListCmd, markersClearCmd)
}

// markerResources maps path arguments to store resources.
func markerResources(root string, paths []string) []string {
	if len(paths) == 0 {
		return []string{"."}
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = units.NewFileUnit(root, p).Resource()
	}
	return out
}

func runMarkersList(ctx context.Context, a *app, root string, paths []string, markerType string, asJSON bool) ([]problem.Marker, error) {
	store, closeStore, err := a.persistentStore()
	if err != nil {
		return nil, err
	}
	defer closeStore()

	seen := make(map[string]struct{})
	var all []problem.Marker
	for _, res := range markerResources(root, paths) {
		ms, err := store.FindMarkers(ctx, res, markerType, markers.DepthInfinite)
		if err != nil {
			return nil, err
		}
		for _, m := range ms {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			all = append(all, m)
		}
	}

	if asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		if all == nil {
			all = []problem.Marker{}
		}
		return all, enc.Encode(all)
	}

	p := a.printer()
	if len(all) == 0 {
		p.Success("no markers")
		return all, nil
	}
	p.Findings(findings(all))
	p.Info(fmt.Sprintf("%d markers", len(all)))
	return all, nil
}

func runMarkersClear(ctx context.Context, a *app, root string, paths []string, markerType string) error {
	store, closeStore, err := a.persistentStore()
	if err != nil {
		return err
	}
	defer closeStore()

	resources := markerResources(root, paths)
	for _, res := range resources {
		if err := store.DeleteMarkers(ctx, res, markerType, markers.DepthInfinite); err != nil {
			return err
		}
	}
	a.printer().Success(fmt.Sprintf("cleared markers on %d paths", len(resources)))
	return nil
}
