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
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/astvalidation/pkg/ux"
	"github.com/AleutianAI/astvalidation/services/validation/config"
)

//go:embed rules.example.yaml
var exampleRules []byte

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a starter configuration and rules file",
	Long: `Write ` + config.DefaultFileName + ` and rules.yaml into dir (default: the
working directory). Existing files are kept unless --force is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		ux.InitPersonality()
		return runInit(cmd.OutOrStdout(), dir, initForce)
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
}

// runInit writes the starter files into dir.
func runInit(out io.Writer, dir string, force bool) error {
	p := ux.NewPrinter(out)

	cfgPath := filepath.Join(dir, config.DefaultFileName)
	rulesPath := filepath.Join(dir, "rules.yaml")

	wrote, err := writeIfAbsent(cfgPath, force, func() error {
		return config.Write(cfgPath, config.Default())
	})
	if err != nil {
		return err
	}
	report(p, cfgPath, wrote)

	wrote, err = writeIfAbsent(rulesPath, force, func() error {
		return os.WriteFile(rulesPath, exampleRules, 0o644)
	})
	if err != nil {
		return err
	}
	report(p, rulesPath, wrote)
	return nil
}

func writeIfAbsent(path string, force bool, write func() error) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return false, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	if err := write(); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

func report(p *ux.Printer, path string, wrote bool) {
	if wrote {
		p.Success("wrote " + path)
		return
	}
	p.Info(path + " exists, kept")
}
