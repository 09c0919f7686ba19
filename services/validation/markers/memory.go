// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package markers

import (
	"context"
	"sync"

	"github.com/AleutianAI/astvalidation/services/validation/problem"
)

// MemoryStore keeps markers in a map keyed by resource.
//
// Thread Safety: Safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	byRes  map[string][]problem.Marker
	closed bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byRes: make(map[string][]problem.Marker)}
}

// DeleteMarkers implements Store.
func (s *MemoryStore) DeleteMarkers(ctx context.Context, resource, markerType string, depth Depth) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	base := normalizeResource(resource)
	if base == "" {
		return ErrEmptyResource
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	for res, ms := range s.byRes {
		if !withinDepth(base, res, depth) {
			continue
		}
		kept := ms[:0]
		for _, m := range ms {
			if !matchesType(markerType, m.Type) {
				kept = append(kept, m)
			}
		}
		if len(kept) == 0 {
			delete(s.byRes, res)
		} else {
			s.byRes[res] = kept
		}
	}
	return nil
}

// CreateMarker implements Store.
func (s *MemoryStore) CreateMarker(ctx context.Context, resource string, m problem.Marker) (problem.Marker, error) {
	if err := ctx.Err(); err != nil {
		return problem.Marker{}, err
	}
	res := normalizeResource(resource)
	if res == "" {
		return problem.Marker{}, ErrEmptyResource
	}
	m, err := prepareMarker(res, m)
	if err != nil {
		return problem.Marker{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return problem.Marker{}, ErrStoreClosed
	}
	s.byRes[res] = append(s.byRes[res], m)
	return m, nil
}

// FindMarkers implements Store.
func (s *MemoryStore) FindMarkers(ctx context.Context, resource, markerType string, depth Depth) ([]problem.Marker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := normalizeResource(resource)
	if base == "" {
		return nil, ErrEmptyResource
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var out []problem.Marker
	for res, ms := range s.byRes {
		if !withinDepth(base, res, depth) {
			continue
		}
		for _, m := range ms {
			if matchesType(markerType, m.Type) {
				out = append(out, m)
			}
		}
	}
	sortMarkers(out)
	return out, nil
}

// Count returns the total number of markers held.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, ms := range s.byRes {
		n += len(ms)
	}
	return n
}

// Close marks the store closed; subsequent operations fail with ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
