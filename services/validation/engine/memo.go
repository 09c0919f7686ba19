// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"fmt"
	"sync"
)

// memo is a compute-once cell. The first Get runs fn; every later Get
// returns the same value and error without running fn again.
//
// A panic in fn is converted into the cached error.
//
// Thread Safety: Safe for concurrent use.
type memo[T any] struct {
	mu   sync.Mutex
	fn   func() (T, error)
	done bool
	val  T
	err  error
}

func newMemo[T any](fn func() (T, error)) *memo[T] {
	return &memo[T]{fn: fn}
}

// Get returns the memoized value, computing it on first call.
func (m *memo[T]) Get() (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.done {
		m.val, m.err = m.compute()
		m.done = true
	}
	return m.val, m.err
}

func (m *memo[T]) compute() (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			val, err = zero, fmt.Errorf("panic: %v", r)
		}
	}()
	return m.fn()
}

// Peek returns the value if Get has already computed it without error.
func (m *memo[T]) Peek() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.val, m.done && m.err == nil
}
