// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"errors"
	"fmt"
)

// Construction errors.
var (
	// ErrNilSource is returned when no rule source is given.
	ErrNilSource = errors.New("rule source must not be nil")

	// ErrNilParser is returned when no parser is given.
	ErrNilParser = errors.New("parser must not be nil")

	// ErrNilStore is returned when no marker store is given.
	ErrNilStore = errors.New("marker store must not be nil")
)

// RuleError describes one isolated rule failure.
//
// Rule failures are logged and recorded in the Report; they are never
// returned from Execute.
type RuleError struct {
	// RuleID is the descriptor id.
	RuleID string `json:"rule_id"`

	// RuleType is the Go type of the rule, or the descriptor kind when the
	// rule could not be instantiated.
	RuleType string `json:"rule_type"`

	// Unit is the unit name.
	Unit string `json:"unit"`

	// Resource is the unit resource.
	Resource string `json:"resource"`

	// Panicked is true when the rule panicked rather than returned an error.
	Panicked bool `json:"panicked"`

	// Err is the underlying failure.
	Err error `json:"-"`
}

// Error implements error.
func (e *RuleError) Error() string {
	verb := "failed"
	if e.Panicked {
		verb = "panicked"
	}
	return fmt.Sprintf("rule %s (%s) %s on %s: %v", e.RuleID, e.RuleType, verb, e.Unit, e.Err)
}

// Unwrap returns the underlying failure.
func (e *RuleError) Unwrap() error {
	return e.Err
}
