// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package problem defines validation findings and their persisted form.
//
// A Problem is what a rule reports while walking a parse tree. A Marker is
// the persisted record of a Problem, attached to a resource and scoped by a
// marker type so that rule repositories never clobber each other's findings.
package problem

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SEVERITY
// =============================================================================

// Severity represents the severity level of a finding.
type Severity int

const (
	// SeverityInfo is informational; never fails a build.
	SeverityInfo Severity = iota

	// SeverityWarning should be looked at but does not fail a build.
	SeverityWarning

	// SeverityError fails the build when the CLI runs with --fail-on-error.
	SeverityError
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// SeverityFromString parses a severity string.
//
// Description:
//
//	Accepts the common spellings used in rule files. Unknown values
//	default to SeverityWarning.
//
// Inputs:
//
//	s - Severity string (e.g., "error", "warning", "info")
//
// Outputs:
//
//	Severity - The parsed severity level
func SeverityFromString(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "err", "fatal", "critical":
		return SeverityError
	case "warning", "warn":
		return SeverityWarning
	case "info", "note", "style", "hint":
		return SeverityInfo
	default:
		return SeverityWarning
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	*s = SeverityFromString(string(text))
	return nil
}

// =============================================================================
// PROBLEM
// =============================================================================

// Problem is one validation finding reported by a rule.
//
// Thread Safety: Immutable after creation.
type Problem struct {
	// RuleID identifies the rule that reported the problem.
	RuleID string

	// Severity is the severity level of the problem.
	Severity Severity

	// Message is the human-readable description.
	Message string

	// Line is the 1-indexed line where the problem starts.
	Line int

	// Column is the 1-indexed column where the problem starts. 0 if unknown.
	Column int

	// StartOffset is the byte offset of the first offending byte.
	StartOffset int

	// EndOffset is the byte offset one past the last offending byte.
	EndOffset int
}

// Location returns "line:col" or "line" when the column is unknown.
func (p Problem) Location() string {
	if p.Column > 0 {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%d", p.Line)
}

// ToMarker converts the problem into a marker of the given type on resource.
//
// Description:
//
//	Assigns a fresh marker ID and creation time. The marker is not persisted
//	here; hand it to a marker store.
//
// Inputs:
//
//	markerType - Namespace of the owning rule repository.
//	resource - Resource path the marker is attached to.
//
// Outputs:
//
//	Marker - The marker ready to be stored.
func (p Problem) ToMarker(markerType, resource string) Marker {
	return Marker{
		ID:          uuid.NewString(),
		Type:        markerType,
		Resource:    resource,
		RuleID:      p.RuleID,
		Severity:    p.Severity,
		Message:     p.Message,
		Line:        p.Line,
		Column:      p.Column,
		CharStart:   p.StartOffset,
		CharEnd:     p.EndOffset,
		CreatedAtMs: time.Now().UnixMilli(),
	}
}

// =============================================================================
// MARKER
// =============================================================================

// Marker is the persisted form of a Problem.
//
// Thread Safety: Immutable after creation.
type Marker struct {
	// ID uniquely identifies the marker within its store.
	ID string `json:"id"`

	// Type is the marker namespace (one per rule repository).
	Type string `json:"type"`

	// Resource is the path of the resource the marker is attached to.
	Resource string `json:"resource"`

	// RuleID is the rule that produced the underlying problem.
	RuleID string `json:"rule_id,omitempty"`

	// Severity is the severity of the underlying problem.
	Severity Severity `json:"severity"`

	// Message is the human-readable description.
	Message string `json:"message"`

	// Line is the 1-indexed line number.
	Line int `json:"line"`

	// Column is the 1-indexed column, 0 if unknown.
	Column int `json:"column,omitempty"`

	// CharStart is the start byte offset.
	CharStart int `json:"char_start"`

	// CharEnd is the end byte offset (exclusive).
	CharEnd int `json:"char_end"`

	// CreatedAtMs is the creation time in Unix milliseconds.
	CreatedAtMs int64 `json:"created_at_ms"`
}

// Location returns a formatted location string (resource:line:col).
func (m Marker) Location() string {
	if m.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", m.Resource, m.Line, m.Column)
	}
	return fmt.Sprintf("%s:%d", m.Resource, m.Line)
}
