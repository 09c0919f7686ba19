// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rules defines validation rules and the repositories that group them.
//
// # Description
//
// A Rule inspects one parsed compilation unit and accumulates problems. Rules
// are grouped into named repositories; each repository owns a marker type so
// that its markers can be replaced without touching other repositories'.
//
// Rules are materialized per (unit, descriptor) execution by the descriptor's
// factory. A rule instance is never reused across units.
//
// # Thread Safety
//
// Rule instances are used by one goroutine at a time. Repositories, the
// Registry and the Catalog are safe for concurrent use after construction.
// The Session is shared by every rule of a run and is internally synchronized.
package rules

import (
	"context"
	"fmt"
	"strconv"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/astvalidation/services/validation/ast"
	"github.com/AleutianAI/astvalidation/services/validation/problem"
)

// Rule is a pluggable traversal over a parse tree.
type Rule interface {
	// SetSession injects the run's shared session before Check.
	SetSession(session *Session)

	// Check inspects tree and records problems. An error means the rule
	// itself failed, not that problems were found.
	Check(ctx context.Context, tree *ast.ParseTree) error

	// Problems returns the problems recorded by Check.
	Problems() []problem.Problem
}

// Factory materializes a fresh rule from its descriptor settings.
type Factory func(settings Settings) (Rule, error)

// Settings carries per-descriptor configuration into a Factory.
type Settings struct {
	// RuleID is the descriptor id; reported problems carry it.
	RuleID string

	// Severity is the configured severity for reported problems.
	Severity problem.Severity

	// Params are rule-specific parameters from the registry file.
	Params map[string]any
}

// Int returns the integer parameter key, or def when absent.
//
// Accepts YAML integers, floats with no fractional part and numeric strings.
func (s Settings) Int(key string, def int) (int, error) {
	v, ok := s.Params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("param %q: %v is not an integer", key, n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("param %q: %w", key, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("param %q: unsupported type %T", key, v)
	}
}

// String returns the string parameter key, or def when absent.
func (s Settings) String(key, def string) string {
	v, ok := s.Params[key]
	if !ok || v == nil {
		return def
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// =============================================================================
// Base
// =============================================================================

// Base implements the bookkeeping half of Rule. Embed it and implement Check.
//
// Example:
//
//	type noPrint struct{ rules.Base }
//
//	func (r *noPrint) Check(ctx context.Context, tree *ast.ParseTree) error {
//	    for _, n := range tree.FindAll("method_invocation") {
//	        r.ReportNode(tree, n, "no printing")
//	    }
//	    return nil
//	}
type Base struct {
	settings Settings
	session  *Session
	problems []problem.Problem
}

// NewBase creates a Base from factory settings.
func NewBase(settings Settings) Base {
	return Base{settings: settings}
}

// SetSession implements Rule.
func (b *Base) SetSession(session *Session) {
	b.session = session
}

// Session returns the injected session, or nil before SetSession.
func (b *Base) Session() *Session {
	return b.session
}

// Settings returns the factory settings.
func (b *Base) Settings() Settings {
	return b.settings
}

// Problems implements Rule.
func (b *Base) Problems() []problem.Problem {
	return b.problems
}

// Report records p. An empty RuleID is filled from the settings.
func (b *Base) Report(p problem.Problem) {
	if p.RuleID == "" {
		p.RuleID = b.settings.RuleID
	}
	b.problems = append(b.problems, p)
}

// ReportNode records a problem spanning node at the configured severity.
func (b *Base) ReportNode(tree *ast.ParseTree, node *sitter.Node, message string) {
	line, col := tree.Position(node)
	b.Report(problem.Problem{
		Severity:    b.settings.Severity,
		Message:     message,
		Line:        line,
		Column:      col,
		StartOffset: int(node.StartByte()),
		EndOffset:   int(node.EndByte()),
	})
}
