// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package builtin provides the Java rules shipped with astvalidation.
//
// Rule kinds:
//
//   - system-out: calls through System.out / System.err
//   - empty-catch: catch clauses with an empty body
//   - method-length: methods and constructors longer than params.max lines
//   - todo-comment: comments containing TODO, FIXME or XXX
//   - syntax-error: ERROR and MISSING nodes left by parser recovery
package builtin

import (
	"fmt"

	"github.com/AleutianAI/astvalidation/services/validation/rules"
)

// Rule kind names as used in rules files.
const (
	KindSystemOut    = "system-out"
	KindEmptyCatch   = "empty-catch"
	KindMethodLength = "method-length"
	KindTodoComment  = "todo-comment"
	KindSyntaxError  = "syntax-error"
)

// Register adds every builtin rule kind to catalog.
func Register(catalog *rules.Catalog) error {
	factories := []struct {
		kind    string
		factory rules.Factory
	}{
		{KindSystemOut, NewSystemOut},
		{KindEmptyCatch, NewEmptyCatch},
		{KindMethodLength, NewMethodLength},
		{KindTodoComment, NewTodoComment},
		{KindSyntaxError, NewSyntaxError},
	}
	for _, f := range factories {
		if err := catalog.Register(f.kind, f.factory); err != nil {
			return fmt.Errorf("register builtin rules: %w", err)
		}
	}
	return nil
}

// Catalog returns a new catalog holding the builtin rules.
func Catalog() *rules.Catalog {
	c := rules.NewCatalog()
	if err := Register(c); err != nil {
		// Only possible if the kind list above has a duplicate.
		panic(err)
	}
	return c
}
