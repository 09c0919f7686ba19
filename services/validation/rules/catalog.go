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
	"sort"
	"sync"
)

// ErrDuplicateKind is returned when a rule kind is registered twice.
var ErrDuplicateKind = errors.New("rule kind already registered")

// Catalog maps rule kind names to factories.
//
// Thread Safety: Safe for concurrent use.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds a factory under kind.
func (c *Catalog) Register(kind string, factory Factory) error {
	if kind == "" {
		return errors.New("rule kind must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("rule kind %s: %w", kind, ErrNilFactory)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.factories[kind]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, kind)
	}
	c.factories[kind] = factory
	return nil
}

// MustRegister is Register that panics on error. For package init code.
func (c *Catalog) MustRegister(kind string, factory Factory) {
	if err := c.Register(kind, factory); err != nil {
		panic(err)
	}
}

// Lookup returns the factory for kind.
func (c *Catalog) Lookup(kind string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[kind]
	return f, ok
}

// Kinds returns the registered kind names, sorted.
func (c *Catalog) Kinds() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.factories))
	for k := range c.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
