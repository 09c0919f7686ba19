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
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/astvalidation/services/validation/problem"
)

// Registry load errors.
var (
	// ErrUnknownRule is returned when a rule references a kind missing from the catalog.
	ErrUnknownRule = errors.New("unknown rule kind")

	// ErrDuplicateRepository is returned when two repositories share a name.
	ErrDuplicateRepository = errors.New("duplicate repository")

	// ErrDuplicateRule is returned when two rules in one repository share an id.
	ErrDuplicateRule = errors.New("duplicate rule id")

	// ErrDuplicateMarkerType is returned when two repositories share a marker
	// type. Each repository clears its own type, so a shared type would let
	// one repository delete the other's markers.
	ErrDuplicateMarkerType = errors.New("duplicate marker type")

	// ErrInvalidRegistry is returned when the registry file fails validation.
	ErrInvalidRegistry = errors.New("invalid rule registry")
)

// =============================================================================
// File Format
// =============================================================================

// registryFile is the YAML layout of a rules file.
type registryFile struct {
	Repositories []repositorySpec `yaml:"repositories" validate:"required,min=1,dive"`
}

type repositorySpec struct {
	Name       string     `yaml:"name" validate:"required"`
	MarkerType string     `yaml:"marker_type" validate:"required"`
	Rules      []ruleSpec `yaml:"rules" validate:"dive"`
}

type ruleSpec struct {
	ID          string         `yaml:"id" validate:"required"`
	Rule        string         `yaml:"rule" validate:"required"`
	Description string         `yaml:"description"`
	Severity    string         `yaml:"severity" validate:"omitempty,severity"`
	Enabled     *bool          `yaml:"enabled"`
	Include     []string       `yaml:"include"`
	Exclude     []string       `yaml:"exclude"`
	Params      map[string]any `yaml:"params"`
}

// registryValidate is the validator instance for rule files.
var registryValidate *validator.Validate

func init() {
	registryValidate = validator.New()
	_ = registryValidate.RegisterValidation("severity", validateSeverity)
}

// validateSeverity accepts only spellings SeverityFromString maps on purpose,
// so a typo does not silently become a warning.
func validateSeverity(fl validator.FieldLevel) bool {
	switch strings.ToLower(strings.TrimSpace(fl.Field().String())) {
	case "error", "err", "fatal", "critical", "warning", "warn", "info", "note", "style", "hint":
		return true
	default:
		return false
	}
}

// =============================================================================
// Registry
// =============================================================================

// Registry is a Source backed by a fixed list of repositories.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Registry struct {
	repos  []*Repository
	byName map[string]*Repository
}

// NewRegistry creates a registry from repositories, in definition order.
func NewRegistry(repos ...*Repository) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Repository, len(repos))}
	owner := make(map[string]string, len(repos))
	for _, repo := range repos {
		if repo == nil {
			continue
		}
		if _, dup := r.byName[repo.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRepository, repo.Name)
		}
		if other, dup := owner[repo.MarkerType]; dup {
			return nil, fmt.Errorf("%w: %s used by %s and %s", ErrDuplicateMarkerType, repo.MarkerType, other, repo.Name)
		}
		owner[repo.MarkerType] = repo.Name
		seen := make(map[string]struct{}, len(repo.Descriptors))
		for _, d := range repo.Descriptors {
			if _, dup := seen[d.ID]; dup {
				return nil, fmt.Errorf("%w: %s in repository %s", ErrDuplicateRule, d.ID, repo.Name)
			}
			seen[d.ID] = struct{}{}
		}
		r.byName[repo.Name] = repo
		r.repos = append(r.repos, repo)
	}
	return r, nil
}

// Repositories implements Source.
func (r *Registry) Repositories(names ...string) []*Repository {
	if len(names) == 0 {
		out := make([]*Repository, len(r.repos))
		copy(out, r.repos)
		return out
	}

	out := make([]*Repository, 0, len(names))
	taken := make(map[string]struct{}, len(names))
	for _, name := range names {
		repo, ok := r.byName[name]
		if !ok {
			continue
		}
		if _, dup := taken[name]; dup {
			continue
		}
		taken[name] = struct{}{}
		out = append(out, repo)
	}
	return out
}

// Names returns every repository name in definition order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.repos))
	for i, repo := range r.repos {
		out[i] = repo.Name
	}
	return out
}

// LoadRegistry reads a YAML rules file and resolves rule kinds via catalog.
func LoadRegistry(path string, catalog *Catalog) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	reg, err := ParseRegistry(data, catalog)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return reg, nil
}

// ParseRegistry parses YAML rules data.
//
// Description:
//
//	Decodes the file, validates required fields, resolves each rule's kind
//	against catalog and drops rules with enabled: false. Rules default to
//	enabled and warning severity.
//
// Inputs:
//
//	data - YAML content.
//	catalog - Rule kinds available to the file.
//
// Outputs:
//
//	*Registry - The resolved registry.
//	error - ErrInvalidRegistry, ErrUnknownRule, ErrDuplicateRepository,
//	ErrDuplicateMarkerType or ErrDuplicateRule (wrapped).
func ParseRegistry(data []byte, catalog *Catalog) (*Registry, error) {
	if catalog == nil {
		return nil, errors.New("catalog must not be nil")
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}
	if err := registryValidate.Struct(file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}

	repos := make([]*Repository, 0, len(file.Repositories))
	for _, rs := range file.Repositories {
		repo := &Repository{Name: rs.Name, MarkerType: rs.MarkerType}
		for _, spec := range rs.Rules {
			if spec.Enabled != nil && !*spec.Enabled {
				continue
			}
			factory, ok := catalog.Lookup(spec.Rule)
			if !ok {
				return nil, fmt.Errorf("%w: %q (rule %s in repository %s)", ErrUnknownRule, spec.Rule, spec.ID, rs.Name)
			}
			if err := validGlobs(append(append([]string{}, spec.Include...), spec.Exclude...)); err != nil {
				return nil, fmt.Errorf("%w: rule %s: %v", ErrInvalidRegistry, spec.ID, err)
			}

			description := spec.Description
			if description == "" {
				description = spec.ID
			}
			repo.Descriptors = append(repo.Descriptors, &Descriptor{
				ID:          spec.ID,
				Kind:        spec.Rule,
				Description: description,
				Severity:    problem.SeverityFromString(spec.Severity),
				Include:     spec.Include,
				Exclude:     spec.Exclude,
				Params:      spec.Params,
				Factory:     factory,
			})
		}
		repos = append(repos, repo)
	}

	return NewRegistry(repos...)
}
