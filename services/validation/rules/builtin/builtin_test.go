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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/astvalidation/services/validation/ast"
	"github.com/AleutianAI/astvalidation/services/validation/problem"
	"github.com/AleutianAI/astvalidation/services/validation/rules"
)

const sample = `package demo;

public class Sample {
    public void run() {
        System.out.println("start");
        System.err.print("oops");
        logger.info("fine");
        // TODO: replace with a proper retry
        try {
            work();
        } catch (IOException e) {
        }
        try {
            work();
        } catch (RuntimeException e) {
            // ignored on purpose
        }
    }
}
`

// runRule parses src and runs the factory's rule over it.
func runRule(t *testing.T, factory rules.Factory, params map[string]any, src string) []problem.Problem {
	t.Helper()
	tree, err := ast.NewJavaParser().Parse(context.Background(), []byte(src), "demo/Sample.java")
	require.NoError(t, err)
	t.Cleanup(tree.Close)

	r, err := factory(rules.Settings{RuleID: "test-rule", Severity: problem.SeverityWarning, Params: params})
	require.NoError(t, err)
	r.SetSession(rules.NewSession())
	require.NoError(t, r.Check(context.Background(), tree))
	return r.Problems()
}

func TestSystemOut(t *testing.T) {
	ps := runRule(t, NewSystemOut, nil, sample)
	require.Len(t, ps, 2)
	assert.Equal(t, 5, ps[0].Line)
	assert.Equal(t, 9, ps[0].Column)
	assert.Contains(t, ps[0].Message, "System.out.println")
	assert.Equal(t, 6, ps[1].Line)
	assert.Contains(t, ps[1].Message, "System.err.print")
	assert.Equal(t, "test-rule", ps[0].RuleID)
	assert.Greater(t, ps[0].EndOffset, ps[0].StartOffset)
}

func TestEmptyCatch(t *testing.T) {
	ps := runRule(t, NewEmptyCatch, nil, sample)
	require.Len(t, ps, 1, "comment-only catch is not reported")
	assert.Equal(t, 11, ps[0].Line)
	assert.Contains(t, ps[0].Message, "IOException e")
}

func TestTodoComment(t *testing.T) {
	ps := runRule(t, NewTodoComment, nil, sample+"/* FIXME */\n")
	require.Len(t, ps, 2)
	assert.Equal(t, "TODO comment: replace with a proper retry", ps[0].Message)
	assert.Equal(t, 8, ps[0].Line)
	assert.Equal(t, "FIXME comment", ps[1].Message)
}

func TestMethodLength(t *testing.T) {
	long := "class L {\n    void big() {\n" + strings.Repeat("        x();\n", 10) + "    }\n    L() {}\n}\n"

	ps := runRule(t, NewMethodLength, map[string]any{"max": 5}, long)
	require.Len(t, ps, 1)
	assert.Equal(t, 2, ps[0].Line)
	assert.Equal(t, 10, ps[0].Column, "anchored on the method name")
	assert.Contains(t, ps[0].Message, "big is 12 lines long (max 5)")

	assert.Empty(t, runRule(t, NewMethodLength, nil, long), "default limit is 50")

	_, err := NewMethodLength(rules.Settings{Params: map[string]any{"max": 0}})
	assert.Error(t, err)
	_, err = NewMethodLength(rules.Settings{Params: map[string]any{"max": "many"}})
	assert.Error(t, err)
}

func TestSyntaxError(t *testing.T) {
	assert.Empty(t, runRule(t, NewSyntaxError, nil, sample))

	ps := runRule(t, NewSyntaxError, nil, "class Broken {\n    void a() { int x = ; }\n}\n")
	require.NotEmpty(t, ps)
	assert.Equal(t, 2, ps[0].Line)
}

func TestRegisterAndCatalog(t *testing.T) {
	c := Catalog()
	assert.Equal(t, []string{KindEmptyCatch, KindMethodLength, KindSyntaxError, KindSystemOut, KindTodoComment}, c.Kinds())

	assert.Error(t, Register(c), "second registration collides")
}

func TestBuiltin_FromRegistryFile(t *testing.T) {
	reg, err := rules.ParseRegistry([]byte(`
repositories:
  - name: style
    marker_type: astvalidation.style
    rules:
      - {id: no-system-out, rule: system-out, severity: error}
      - {id: long-methods, rule: method-length, params: {max: 80}}
`), Catalog())
	require.NoError(t, err)

	repo := reg.Repositories("style")[0]
	require.Len(t, repo.Descriptors, 2)
	r, err := repo.Descriptors[1].NewRule()
	require.NoError(t, err)
	assert.Equal(t, 80, r.(*MethodLength).limit)
}
