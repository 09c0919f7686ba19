// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// PersonalityLevel defines how rich CLI output is.
type PersonalityLevel string

const (
	// PersonalityStandard enables colors, icons and boxes.
	PersonalityStandard PersonalityLevel = "standard"

	// PersonalityMinimal uses icons and basic formatting only.
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine outputs plain tab-separated text for scripts.
	PersonalityMachine PersonalityLevel = "machine"
)

// EnvPersonality overrides terminal detection.
const EnvPersonality = "ASTVALIDATE_OUTPUT"

var (
	currentLevel  = PersonalityStandard
	personalityMu sync.RWMutex
)

// GetPersonalityLevel returns the current output level.
func GetPersonalityLevel() PersonalityLevel {
	personalityMu.RLock()
	defer personalityMu.RUnlock()
	return currentLevel
}

// SetPersonalityLevel updates the output level.
func SetPersonalityLevel(level PersonalityLevel) {
	personalityMu.Lock()
	defer personalityMu.Unlock()
	currentLevel = level
}

// ParsePersonalityLevel converts a string to PersonalityLevel.
// Unknown values map to PersonalityStandard.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(s) {
	case "standard", "std", "s", "full":
		return PersonalityStandard
	case "minimal", "min", "m":
		return PersonalityMinimal
	case "machine", "plain", "quiet", "q":
		return PersonalityMachine
	default:
		return PersonalityStandard
	}
}

// InitPersonality picks the level from the environment, falling back to
// machine output when stdout is not a terminal.
func InitPersonality() {
	if env := os.Getenv(EnvPersonality); env != "" {
		SetPersonalityLevel(ParsePersonalityLevel(env))
		return
	}
	if !IsTerminal(os.Stdout) {
		SetPersonalityLevel(PersonalityMachine)
		return
	}
	SetPersonalityLevel(PersonalityStandard)
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
