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
	"maps"
	"sync"
)

// Session is the run-scoped key/value context shared by every rule.
//
// One Session is handed by reference to all rules of a validation run,
// across all workers, so a value written by one rule is visible to rules
// that run after it.
//
// Thread Safety: Safe for concurrent use.
type Session struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{values: make(map[string]any)}
}

// Get returns the value for key.
func (s *Session) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
}

// Delete removes key.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
}

// Replace clears the session and copies values in, as one atomic step.
func (s *Session) Replace(values map[string]any) {
	s.mu.Lock()
	clear(s.values)
	maps.Copy(s.values, values)
	s.mu.Unlock()
}

// Snapshot returns a copy of the current contents.
func (s *Session) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// Len returns the number of keys.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
