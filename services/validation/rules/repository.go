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
	"errors"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/AleutianAI/astvalidation/services/validation/problem"
	"github.com/AleutianAI/astvalidation/services/validation/units"
)

// ErrNilFactory is returned when a descriptor has no factory.
var ErrNilFactory = errors.New("rule descriptor has no factory")

// Descriptor describes one configured rule inside a repository.
type Descriptor struct {
	// ID is the stable rule id, unique within its repository.
	ID string

	// Kind is the catalog name the factory was resolved from.
	Kind string

	// Description is shown in progress messages and `rules list`.
	Description string

	// Severity is passed to the rule through Settings.
	Severity problem.Severity

	// Include are doublestar globs over the unit resource. Empty matches all.
	Include []string

	// Exclude are doublestar globs over the unit resource.
	Exclude []string

	// Params are handed to the factory.
	Params map[string]any

	// Factory materializes a fresh rule.
	Factory Factory
}

// NewRule materializes a fresh rule instance for one execution.
func (d *Descriptor) NewRule() (Rule, error) {
	if d.Factory == nil {
		return nil, fmt.Errorf("rule %s: %w", d.ID, ErrNilFactory)
	}
	return d.Factory(Settings{
		RuleID:   d.ID,
		Severity: d.Severity,
		Params:   d.Params,
	})
}

// AppliesTo reports whether the descriptor's globs select resource.
func (d *Descriptor) AppliesTo(resource string) bool {
	if len(d.Include) > 0 && !matchAny(d.Include, resource) {
		return false
	}
	return !matchAny(d.Exclude, resource)
}

func matchAny(patterns []string, resource string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, resource); ok {
			return true
		}
	}
	return false
}

func validGlobs(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid glob %q", p)
		}
	}
	return nil
}

// Repository is a named group of rule descriptors sharing a marker type.
//
// Thread Safety: Immutable after construction.
type Repository struct {
	// Name is the repository name used to enable it.
	Name string

	// MarkerType scopes marker deletion and creation for this repository.
	MarkerType string

	// Descriptors are the rules in definition order.
	Descriptors []*Descriptor
}

// RulesFor returns the descriptors applicable to unit, in definition order.
func (r *Repository) RulesFor(unit units.SourceUnit) []*Descriptor {
	resource := unit.Resource()
	out := make([]*Descriptor, 0, len(r.Descriptors))
	for _, d := range r.Descriptors {
		if d.AppliesTo(resource) {
			out = append(out, d)
		}
	}
	return out
}

// Source resolves enabled repository names into repositories.
type Source interface {
	// Repositories returns the repositories named, in the order named.
	// Unknown names are ignored. No names selects every repository.
	Repositories(names ...string) []*Repository
}
