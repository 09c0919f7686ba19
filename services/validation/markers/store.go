// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package markers persists validation markers per resource.
//
// Resources are slash-separated paths. Markers carry a type (namespace) so
// that deleting one rule repository's findings leaves another repository's
// markers on the same file untouched.
//
// Two stores are provided:
//
//   - MemoryStore: process-local, used by tests and one-shot runs.
//   - BadgerStore: embedded BadgerDB, survives between runs.
//
// Store errors are the fatal class of the validation engine: a store that
// cannot be written aborts the unit being validated and is reported to the
// caller of Execute.
package markers

import (
	"context"
	"errors"
	"path"
	"sort"
	"strings"

	"github.com/AleutianAI/astvalidation/services/validation/problem"
)

// Sentinel errors for store operations.
var (
	// ErrStoreClosed is returned by any operation on a closed store.
	ErrStoreClosed = errors.New("marker store is closed")

	// ErrEmptyResource is returned when the resource path is empty.
	ErrEmptyResource = errors.New("resource must not be empty")

	// ErrEmptyMarkerType is returned when creating a marker without a type.
	ErrEmptyMarkerType = errors.New("marker type must not be empty")
)

// Depth selects which resources a lookup or deletion covers.
type Depth int

const (
	// DepthZero covers the resource itself only.
	DepthZero Depth = iota

	// DepthOne covers the resource and its direct children.
	DepthOne

	// DepthInfinite covers the resource and all descendants.
	DepthInfinite
)

// String returns the string representation of the depth.
func (d Depth) String() string {
	switch d {
	case DepthZero:
		return "zero"
	case DepthOne:
		return "one"
	case DepthInfinite:
		return "infinite"
	default:
		return "unknown"
	}
}

// Store persists markers attached to resources.
//
// An empty markerType in DeleteMarkers or FindMarkers matches every type.
//
// Thread Safety: Implementations must be safe for concurrent use; the engine
// writes to different resources from different goroutines.
type Store interface {
	// DeleteMarkers removes markers of markerType on resource at depth.
	DeleteMarkers(ctx context.Context, resource, markerType string, depth Depth) error

	// CreateMarker stores m on resource and returns the stored marker.
	CreateMarker(ctx context.Context, resource string, m problem.Marker) (problem.Marker, error)

	// FindMarkers returns markers of markerType on resource at depth,
	// ordered by resource, line, column.
	FindMarkers(ctx context.Context, resource, markerType string, depth Depth) ([]problem.Marker, error)
}

// normalizeResource cleans a resource path into the canonical store form.
func normalizeResource(resource string) string {
	resource = strings.ReplaceAll(resource, "\\", "/")
	if resource == "" {
		return ""
	}
	return path.Clean(resource)
}

// withinDepth reports whether candidate is covered by base at depth.
func withinDepth(base, candidate string, depth Depth) bool {
	if candidate == base {
		return true
	}
	switch depth {
	case DepthOne:
		return path.Dir(candidate) == base
	case DepthInfinite:
		if base == "/" {
			return strings.HasPrefix(candidate, "/")
		}
		if base == "." {
			return !strings.HasPrefix(candidate, "/") && !strings.HasPrefix(candidate, "../")
		}
		return strings.HasPrefix(candidate, base+"/")
	default:
		return false
	}
}

func matchesType(markerType, candidate string) bool {
	return markerType == "" || markerType == candidate
}

func sortMarkers(ms []problem.Marker) {
	sort.SliceStable(ms, func(i, j int) bool {
		a, b := ms[i], ms[j]
		if a.Resource != b.Resource {
			return a.Resource < b.Resource
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		return a.ID < b.ID
	})
}

func prepareMarker(resource string, m problem.Marker) (problem.Marker, error) {
	if m.Type == "" {
		return m, ErrEmptyMarkerType
	}
	m.Resource = resource
	if m.ID == "" {
		// Markers built by hand rather than via Problem.ToMarker.
		m = problem.Problem{
			RuleID:      m.RuleID,
			Severity:    m.Severity,
			Message:     m.Message,
			Line:        m.Line,
			Column:      m.Column,
			StartOffset: m.CharStart,
			EndOffset:   m.CharEnd,
		}.ToMarker(m.Type, resource)
	}
	return m, nil
}
