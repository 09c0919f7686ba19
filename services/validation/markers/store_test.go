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
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storagebadger "github.com/AleutianAI/astvalidation/services/validation/storage/badger"
	"github.com/AleutianAI/astvalidation/services/validation/problem"
)

type closableStore interface {
	Store
	Close() error
}

// storeFactories runs each contract test against both implementations.
func storeFactories(t *testing.T) map[string]func() closableStore {
	return map[string]func() closableStore{
		"memory": func() closableStore { return NewMemoryStore() },
		"badger": func() closableStore {
			s, err := OpenBadgerStore(storagebadger.InMemoryConfig(), nil)
			require.NoError(t, err)
			return s
		},
	}
}

func marker(typ, rule string, line int) problem.Marker {
	return problem.Problem{
		RuleID:   rule,
		Severity: problem.SeverityWarning,
		Message:  rule + " finding",
		Line:     line,
		Column:   1,
	}.ToMarker(typ, "")
}

func TestWithinDepth(t *testing.T) {
	tests := []struct {
		base, cand string
		depth      Depth
		want       bool
	}{
		{"src/A.java", "src/A.java", DepthZero, true},
		{"src", "src/A.java", DepthZero, false},
		{"src", "src/A.java", DepthOne, true},
		{"src", "src/pkg/A.java", DepthOne, false},
		{"src", "src/pkg/A.java", DepthInfinite, true},
		{"src", "srcgen/A.java", DepthInfinite, false},
		{".", "src/A.java", DepthInfinite, true},
		{"/", "/abs/A.java", DepthInfinite, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%s_%s", tt.base, tt.cand, tt.depth), func(t *testing.T) {
			assert.Equal(t, tt.want, withinDepth(tt.base, tt.cand, tt.depth))
		})
	}
}

func TestStore_CreateAndFind(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			defer s.Close()
			ctx := context.Background()

			created, err := s.CreateMarker(ctx, "src/A.java", marker("style", "r1", 10))
			require.NoError(t, err)
			assert.Equal(t, "src/A.java", created.Resource)
			assert.NotEmpty(t, created.ID)

			_, err = s.CreateMarker(ctx, "src/A.java", marker("style", "r2", 2))
			require.NoError(t, err)
			_, err = s.CreateMarker(ctx, "src/A.java", marker("security", "r3", 5))
			require.NoError(t, err)

			got, err := s.FindMarkers(ctx, "src/A.java", "style", DepthZero)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, 2, got[0].Line, "ordered by line")
			assert.Equal(t, 10, got[1].Line)

			all, err := s.FindMarkers(ctx, "src/A.java", "", DepthZero)
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestStore_DeleteScopedByType(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			defer s.Close()
			ctx := context.Background()

			for _, typ := range []string{"style", "security"} {
				_, err := s.CreateMarker(ctx, "src/A.java", marker(typ, "r", 1))
				require.NoError(t, err)
			}

			require.NoError(t, s.DeleteMarkers(ctx, "src/A.java", "style", DepthZero))

			got, err := s.FindMarkers(ctx, "src/A.java", "", DepthZero)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "security", got[0].Type)
		})
	}
}

func TestStore_DeleteDepth(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			defer s.Close()
			ctx := context.Background()

			for _, res := range []string{"src/A.java", "src/A.java2", "src/pkg/B.java", "other/C.java"} {
				_, err := s.CreateMarker(ctx, res, marker("style", "r", 1))
				require.NoError(t, err)
			}

			require.NoError(t, s.DeleteMarkers(ctx, "src/A.java", "style", DepthZero))
			left, err := s.FindMarkers(ctx, ".", "", DepthInfinite)
			require.NoError(t, err)
			assert.Len(t, left, 3, "A.java2 must not be prefix-matched")

			require.NoError(t, s.DeleteMarkers(ctx, "src", "", DepthInfinite))
			left, err = s.FindMarkers(ctx, ".", "", DepthInfinite)
			require.NoError(t, err)
			require.Len(t, left, 1)
			assert.Equal(t, "other/C.java", left[0].Resource)
		})
	}
}

func TestStore_Validation(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			ctx := context.Background()

			_, err := s.CreateMarker(ctx, "", marker("style", "r", 1))
			assert.ErrorIs(t, err, ErrEmptyResource)

			_, err = s.CreateMarker(ctx, "a.java", problem.Marker{Message: "no type"})
			assert.ErrorIs(t, err, ErrEmptyMarkerType)

			m, err := s.CreateMarker(ctx, "a.java", problem.Marker{Type: "style", Message: "hand built", Line: 4})
			require.NoError(t, err)
			assert.NotEmpty(t, m.ID)

			require.NoError(t, s.Close())
			assert.ErrorIs(t, s.DeleteMarkers(ctx, "a.java", "style", DepthZero), ErrStoreClosed)
			_, err = s.FindMarkers(ctx, "a.java", "", DepthZero)
			assert.ErrorIs(t, err, ErrStoreClosed)
		})
	}
}

func TestStore_ConcurrentWriters(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			defer s.Close()
			ctx := context.Background()

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					res := fmt.Sprintf("src/F%d.java", i)
					for j := 0; j < 10; j++ {
						_, err := s.CreateMarker(ctx, res, marker("style", "r", j))
						assert.NoError(t, err)
					}
					assert.NoError(t, s.DeleteMarkers(ctx, res, "style", DepthZero))
					_, err := s.CreateMarker(ctx, res, marker("style", "r", 99))
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()

			all, err := s.FindMarkers(ctx, "src", "style", DepthOne)
			require.NoError(t, err)
			assert.Len(t, all, 8)
		})
	}
}

func TestBadgerStore_Persists(t *testing.T) {
	cfg := storagebadger.DefaultConfig()
	cfg.Path = t.TempDir()
	ctx := context.Background()

	s, err := OpenBadgerStore(cfg, nil)
	require.NoError(t, err)
	_, err = s.CreateMarker(ctx, "src/A.java", marker("style", "r", 3))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := OpenBadgerStore(cfg, nil)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.FindMarkers(ctx, "src/A.java", "style", DepthZero)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Line)
	assert.Equal(t, problem.SeverityWarning, got[0].Severity)
}

func TestNewBadgerStore_NilDB(t *testing.T) {
	_, err := NewBadgerStore(nil, nil)
	assert.ErrorIs(t, err, storagebadger.ErrNilDB)
}
