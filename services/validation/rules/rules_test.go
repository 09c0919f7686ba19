// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/astvalidation/services/validation/ast"
	"github.com/AleutianAI/astvalidation/services/validation/problem"
)

// fakeUnit satisfies units.SourceUnit for RulesFor.
type fakeUnit struct{ resource string }

func (u fakeUnit) Name() string             { return filepath.Base(u.resource) }
func (u fakeUnit) Resource() string         { return u.resource }
func (u fakeUnit) Exists() bool             { return true }
func (u fakeUnit) Content() ([]byte, error) { return nil, nil }

// classRule reports every class declaration.
type classRule struct{ Base }

func (r *classRule) Check(_ context.Context, tree *ast.ParseTree) error {
	for _, n := range tree.FindAll("class_declaration") {
		r.ReportNode(tree, n, "class found")
	}
	return nil
}

func newClassRule(s Settings) (Rule, error) {
	return &classRule{Base: NewBase(s)}, nil
}

func testCatalog(t *testing.T) *Catalog {
	c := NewCatalog()
	require.NoError(t, c.Register("class", newClassRule))
	require.NoError(t, c.Register("noop", newClassRule))
	return c
}

const sampleRegistry = `
repositories:
  - name: style
    marker_type: astvalidation.style
    rules:
      - id: classes
        rule: class
        description: Find classes
        severity: error
        include: ["src/**/*.java"]
        exclude: ["**/generated/**"]
        params: {max: 10}
      - id: off
        rule: noop
        enabled: false
  - name: security
    marker_type: astvalidation.security
    rules:
      - id: classes
        rule: class
`

func TestParseRegistry(t *testing.T) {
	reg, err := ParseRegistry([]byte(sampleRegistry), testCatalog(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"style", "security"}, reg.Names())

	style := reg.Repositories("style")
	require.Len(t, style, 1)
	assert.Equal(t, "astvalidation.style", style[0].MarkerType)
	require.Len(t, style[0].Descriptors, 1, "disabled rule dropped")

	d := style[0].Descriptors[0]
	assert.Equal(t, "classes", d.ID)
	assert.Equal(t, "class", d.Kind)
	assert.Equal(t, problem.SeverityError, d.Severity)
	limit, err := Settings{Params: d.Params}.Int("max", 0)
	require.NoError(t, err)
	assert.Equal(t, 10, limit)

	sec := reg.Repositories("security")[0].Descriptors[0]
	assert.Equal(t, problem.SeverityWarning, sec.Severity, "default severity")
	assert.Equal(t, "classes", sec.Description, "description defaults to id")
}

func TestParseRegistry_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"unknown kind", `
repositories:
  - name: r
    marker_type: t
    rules: [{id: a, rule: missing}]
`, ErrUnknownRule},
		{"duplicate repository", `
repositories:
  - {name: r, marker_type: t}
  - {name: r, marker_type: t2}
`, ErrDuplicateRepository},
		{"shared marker type", `
repositories:
  - {name: a, marker_type: shared}
  - {name: b, marker_type: shared}
`, ErrDuplicateMarkerType},
		{"duplicate rule", `
repositories:
  - name: r
    marker_type: t
    rules: [{id: a, rule: class}, {id: a, rule: noop}]
`, ErrDuplicateRule},
		{"missing marker type", `
repositories:
  - name: r
`, ErrInvalidRegistry},
		{"bad severity", `
repositories:
  - name: r
    marker_type: t
    rules: [{id: a, rule: class, severity: loud}]
`, ErrInvalidRegistry},
		{"bad glob", `
repositories:
  - name: r
    marker_type: t
    rules: [{id: a, rule: class, include: ["[unclosed"]}]
`, ErrInvalidRegistry},
		{"no repositories", `repositories: []`, ErrInvalidRegistry},
		{"not yaml", `:::`, ErrInvalidRegistry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRegistry([]byte(tt.yaml), testCatalog(t))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRegistry), 0o644))

	reg, err := LoadRegistry(path, testCatalog(t))
	require.NoError(t, err)
	assert.Len(t, reg.Repositories(), 2)

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml"), testCatalog(t))
	assert.Error(t, err)
}

func TestRegistry_RepositoriesOrderAndFilter(t *testing.T) {
	reg, err := NewRegistry(
		&Repository{Name: "a", MarkerType: "ta"},
		&Repository{Name: "b", MarkerType: "tb"},
		&Repository{Name: "c", MarkerType: "tc"},
	)
	require.NoError(t, err)

	names := func(rs []*Repository) []string {
		out := make([]string, len(rs))
		for i, r := range rs {
			out[i] = r.Name
		}
		return out
	}

	assert.Equal(t, []string{"a", "b", "c"}, names(reg.Repositories()))
	assert.Equal(t, []string{"c", "a"}, names(reg.Repositories("c", "unknown", "a", "c")))
	assert.Empty(t, reg.Repositories("nope"))
}

func TestNewRegistry_SharedMarkerType(t *testing.T) {
	_, err := NewRegistry(
		&Repository{Name: "a", MarkerType: "shared"},
		&Repository{Name: "b", MarkerType: "shared"},
	)
	require.ErrorIs(t, err, ErrDuplicateMarkerType)
	assert.Contains(t, err.Error(), "used by a and b")
}

func TestRepository_RulesFor(t *testing.T) {
	repo := &Repository{
		Name: "r",
		Descriptors: []*Descriptor{
			{ID: "all"},
			{ID: "src-only", Include: []string{"src/**"}},
			{ID: "no-tests", Exclude: []string{"**/*Test.java"}},
		},
	}

	ids := func(ds []*Descriptor) []string {
		out := make([]string, len(ds))
		for i, d := range ds {
			out[i] = d.ID
		}
		return out
	}

	assert.Equal(t, []string{"all", "src-only", "no-tests"}, ids(repo.RulesFor(fakeUnit{"src/a/A.java"})))
	assert.Equal(t, []string{"all", "src-only"}, ids(repo.RulesFor(fakeUnit{"src/a/ATest.java"})))
	assert.Equal(t, []string{"all", "no-tests"}, ids(repo.RulesFor(fakeUnit{"lib/B.java"})))
}

func TestDescriptor_NewRule(t *testing.T) {
	d := &Descriptor{ID: "x"}
	_, err := d.NewRule()
	assert.ErrorIs(t, err, ErrNilFactory)

	d.Factory = newClassRule
	d.Severity = problem.SeverityError
	r1, err := d.NewRule()
	require.NoError(t, err)
	r2, err := d.NewRule()
	require.NoError(t, err)
	assert.NotSame(t, r1, r2, "fresh instance per call")
}

func TestBase_ReportNode(t *testing.T) {
	tree, err := ast.NewJavaParser().Parse(context.Background(), []byte("class A {}\nclass B {}\n"), "A.java")
	require.NoError(t, err)
	defer tree.Close()

	r, err := newClassRule(Settings{RuleID: "classes", Severity: problem.SeverityError})
	require.NoError(t, err)
	session := NewSession()
	r.SetSession(session)
	require.NoError(t, r.Check(context.Background(), tree))

	ps := r.Problems()
	require.Len(t, ps, 2)
	assert.Equal(t, "classes", ps[0].RuleID)
	assert.Equal(t, problem.SeverityError, ps[0].Severity)
	assert.Equal(t, 1, ps[0].Line)
	assert.Equal(t, 2, ps[1].Line)
	assert.Equal(t, 0, ps[0].StartOffset)
	assert.Same(t, session, r.(*classRule).Session())
}

func TestSettings_Int(t *testing.T) {
	s := Settings{Params: map[string]any{"a": 5, "b": "7", "c": 3.0, "d": 2.5, "e": []int{1}, "f": "x"}}

	for key, want := range map[string]int{"a": 5, "b": 7, "c": 3, "missing": 42} {
		got, err := s.Int(key, 42)
		require.NoError(t, err, key)
		assert.Equal(t, want, got, key)
	}
	for _, key := range []string{"d", "e", "f"} {
		_, err := s.Int(key, 0)
		assert.Error(t, err, key)
	}
	assert.Equal(t, "7", s.String("b", ""))
	assert.Equal(t, "5", s.String("a", ""))
	assert.Equal(t, "dflt", s.String("missing", "dflt"))
}

func TestSession(t *testing.T) {
	s := NewSession()
	s.Set("a", 1)
	s.Replace(map[string]any{"b": 2, "c": 3})

	_, ok := s.Get("a")
	assert.False(t, ok, "replace clears old keys")
	v, ok := s.Get("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, s.Len())

	snap := s.Snapshot()
	snap["z"] = 0
	assert.Equal(t, 2, s.Len(), "snapshot is a copy")

	s.Delete("b")
	assert.Equal(t, 1, s.Len())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Set("k", i)
			s.Get("k")
			s.Snapshot()
		}(i)
	}
	wg.Wait()
}

func TestCatalog(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register("b", newClassRule))
	require.NoError(t, c.Register("a", newClassRule))
	assert.ErrorIs(t, c.Register("a", newClassRule), ErrDuplicateKind)
	assert.ErrorIs(t, c.Register("n", nil), ErrNilFactory)
	assert.Error(t, c.Register("", newClassRule))
	assert.Equal(t, []string{"a", "b"}, c.Kinds())

	_, ok := c.Lookup("a")
	assert.True(t, ok)
	assert.Panics(t, func() { c.MustRegister("a", newClassRule) })
}
