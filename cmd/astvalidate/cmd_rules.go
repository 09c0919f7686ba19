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
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/astvalidation/pkg/ux"
	"github.com/AleutianAI/astvalidation/services/validation/rules/builtin"
)

var rulesKinds bool

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Show configured rule repositories",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enabled repositories and their rules",
	Long: `List the repositories enabled by --repos (or the configuration) in run
order, with each rule's id, kind, severity and globs.

With --kinds, list the builtin rule kinds usable in a rules file instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runRulesList(current, rulesKinds)
	},
}

func init() {
	rulesListCmd.Flags().BoolVar(&rulesKinds, "kinds", false,
		"List builtin rule kinds")
	rulesCmd.AddCommand(rulesListCmd)
}

func runRulesList(a *app, kinds bool) error {
	p := a.printer()
	machine := p.Level() == ux.PersonalityMachine

	if kinds {
		for _, k := range builtin.Catalog().Kinds() {
			fmt.Fprintln(a.out, k)
		}
		return nil
	}

	reg, err := a.registry()
	if err != nil {
		return err
	}
	repos := a.repositories(reg)
	if len(repos) == 0 {
		p.Warning("no repositories enabled")
		return nil
	}

	for _, repo := range repos {
		if machine {
			for _, d := range repo.Descriptors {
				fmt.Fprintf(a.out, "%s\t%s\t%s\t%s\t%s\n", repo.Name, repo.MarkerType, d.ID, d.Kind, d.Severity)
			}
			continue
		}
		p.Title(fmt.Sprintf("%s (markers: %s)", repo.Name, repo.MarkerType))
		for _, d := range repo.Descriptors {
			line := fmt.Sprintf("%s %s  %s  %s", ux.SeverityIcon(d.Severity.String()).Render(), d.ID,
				ux.Styles.Muted.Render(d.Kind), d.Description)
			if len(d.Include) > 0 {
				line += ux.Styles.Muted.Render("  include=" + strings.Join(d.Include, ","))
			}
			if len(d.Exclude) > 0 {
				line += ux.Styles.Muted.Render("  exclude=" + strings.Join(d.Exclude, ","))
			}
			fmt.Fprintln(a.out, "  "+line)
		}
	}
	return nil
}
