// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package builtin

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/astvalidation/services/validation/ast"
	"github.com/AleutianAI/astvalidation/services/validation/rules"
)

// =============================================================================
// system-out
// =============================================================================

// SystemOut reports calls through System.out and System.err.
type SystemOut struct {
	rules.Base
}

// NewSystemOut is the factory for KindSystemOut.
func NewSystemOut(s rules.Settings) (rules.Rule, error) {
	return &SystemOut{Base: rules.NewBase(s)}, nil
}

// Check implements rules.Rule.
func (r *SystemOut) Check(ctx context.Context, tree *ast.ParseTree) error {
	for _, call := range tree.FindAll("method_invocation") {
		if err := ctx.Err(); err != nil {
			return err
		}
		object := call.ChildByFieldName("object")
		if object == nil {
			continue
		}
		target := strings.Join(strings.Fields(tree.Text(object)), "")
		switch target {
		case "System.out", "System.err", "java.lang.System.out", "java.lang.System.err":
			name := tree.Text(call.ChildByFieldName("name"))
			r.ReportNode(tree, call, fmt.Sprintf("avoid %s.%s, use a logger", target, name))
		}
	}
	return nil
}

// =============================================================================
// empty-catch
// =============================================================================

// EmptyCatch reports catch clauses whose block has no statements.
//
// A block holding only a comment counts as handled: the comment is the
// author's explanation for swallowing the exception.
type EmptyCatch struct {
	rules.Base
}

// NewEmptyCatch is the factory for KindEmptyCatch.
func NewEmptyCatch(s rules.Settings) (rules.Rule, error) {
	return &EmptyCatch{Base: rules.NewBase(s)}, nil
}

// Check implements rules.Rule.
func (r *EmptyCatch) Check(ctx context.Context, tree *ast.ParseTree) error {
	for _, clause := range tree.FindAll("catch_clause") {
		if err := ctx.Err(); err != nil {
			return err
		}
		body := clause.ChildByFieldName("body")
		if body == nil || body.NamedChildCount() > 0 {
			continue
		}
		param := ""
		for i := 0; i < int(clause.NamedChildCount()); i++ {
			if c := clause.NamedChild(i); c.Type() == "catch_formal_parameter" {
				param = strings.Join(strings.Fields(tree.Text(c)), " ")
				break
			}
		}
		r.ReportNode(tree, clause, fmt.Sprintf("empty catch block swallows %s", param))
	}
	return nil
}

// =============================================================================
// method-length
// =============================================================================

// DefaultMaxMethodLines is the method-length limit when params.max is unset.
const DefaultMaxMethodLines = 50

// MethodLength reports methods and constructors spanning more than max lines.
type MethodLength struct {
	rules.Base
	limit int
}

// NewMethodLength is the factory for KindMethodLength.
func NewMethodLength(s rules.Settings) (rules.Rule, error) {
	limit, err := s.Int("max", DefaultMaxMethodLines)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("param \"max\" must be positive, got %d", limit)
	}
	return &MethodLength{Base: rules.NewBase(s), limit: limit}, nil
}

// Check implements rules.Rule.
func (r *MethodLength) Check(ctx context.Context, tree *ast.ParseTree) error {
	for _, decl := range tree.FindAll("method_declaration", "constructor_declaration") {
		if err := ctx.Err(); err != nil {
			return err
		}
		lines := int(decl.EndPoint().Row-decl.StartPoint().Row) + 1
		if lines <= r.limit {
			continue
		}
		name := tree.Text(decl.ChildByFieldName("name"))
		r.ReportNode(tree, nameOr(decl), fmt.Sprintf("%s is %d lines long (max %d)", name, lines, r.limit))
	}
	return nil
}

// nameOr returns the declaration's name node so the marker lands on the
// identifier rather than spanning the whole body.
func nameOr(decl *sitter.Node) *sitter.Node {
	if n := decl.ChildByFieldName("name"); n != nil {
		return n
	}
	return decl
}

// =============================================================================
// todo-comment
// =============================================================================

var todoPattern = regexp.MustCompile(`\b(TODO|FIXME|XXX)\b[:\s]*(.*)`)

// TodoComment reports comments carrying TODO, FIXME or XXX tags.
type TodoComment struct {
	rules.Base
}

// NewTodoComment is the factory for KindTodoComment.
func NewTodoComment(s rules.Settings) (rules.Rule, error) {
	return &TodoComment{Base: rules.NewBase(s)}, nil
}

// Check implements rules.Rule.
func (r *TodoComment) Check(ctx context.Context, tree *ast.ParseTree) error {
	for _, c := range tree.FindAll("line_comment", "block_comment", "comment") {
		if err := ctx.Err(); err != nil {
			return err
		}
		m := todoPattern.FindStringSubmatch(tree.Text(c))
		if m == nil {
			continue
		}
		note := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(m[2]), "*/"))
		msg := m[1] + " comment"
		if note != "" {
			msg += ": " + note
		}
		r.ReportNode(tree, c, msg)
	}
	return nil
}

// =============================================================================
// syntax-error
// =============================================================================

// maxSyntaxErrors caps reports on heavily malformed input.
const maxSyntaxErrors = 50

// SyntaxError reports ERROR and MISSING nodes.
type SyntaxError struct {
	rules.Base
}

// NewSyntaxError is the factory for KindSyntaxError.
func NewSyntaxError(s rules.Settings) (rules.Rule, error) {
	return &SyntaxError{Base: rules.NewBase(s)}, nil
}

// Check implements rules.Rule.
func (r *SyntaxError) Check(ctx context.Context, tree *ast.ParseTree) error {
	if !tree.HasErrors() {
		return nil
	}
	count := 0
	tree.Walk(func(n *sitter.Node, _ int) bool {
		if count >= maxSyntaxErrors {
			return false
		}
		switch {
		case n.IsMissing():
			r.ReportNode(tree, n, fmt.Sprintf("missing %s", n.Type()))
			count++
			return false
		case n.IsError():
			text := tree.Text(n)
			msg := "syntax error"
			if text != "" && len(text) <= 50 {
				msg = fmt.Sprintf("unexpected %q", strings.TrimSpace(text))
			}
			r.ReportNode(tree, n, msg)
			count++
			return false
		}
		return n.HasError()
	})
	return ctx.Err()
}
