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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	storagebadger "github.com/AleutianAI/astvalidation/services/validation/storage/badger"
	"github.com/AleutianAI/astvalidation/services/validation/problem"
)

// =============================================================================
// Key Schema
// =============================================================================
//
//	m/<resource>\x00<marker type>\x00<marker id>  -> JSON(problem.Marker)
//
// The NUL separators keep "src/A.java" from prefix-matching "src/A.java2",
// and a DepthZero operation is a single prefix scan on "m/<resource>\x00".

const keyPrefix = "m/"

func resourcePrefix(resource string) []byte {
	return []byte(keyPrefix + resource + "\x00")
}

func markerKey(m problem.Marker) []byte {
	return []byte(keyPrefix + m.Resource + "\x00" + m.Type + "\x00" + m.ID)
}

// splitKey returns the resource and marker type encoded in key.
func splitKey(key []byte) (resource, markerType string, ok bool) {
	rest := bytes.TrimPrefix(key, []byte(keyPrefix))
	parts := bytes.SplitN(rest, []byte{0}, 3)
	if len(parts) != 3 {
		return "", "", false
	}
	return string(parts[0]), string(parts[1]), true
}

// scanPrefixFor picks the narrowest key prefix covering resource at depth.
func scanPrefixFor(resource string, depth Depth) []byte {
	if depth == DepthZero {
		return resourcePrefix(resource)
	}
	if resource == "." || resource == "/" {
		return []byte(keyPrefix)
	}
	return []byte(keyPrefix + resource)
}

// =============================================================================
// BadgerStore
// =============================================================================

// BadgerStore persists markers in an embedded BadgerDB.
//
// Thread Safety: Safe for concurrent use. Badger transactions serialize
// conflicting writes; the engine only writes one resource per goroutine.
type BadgerStore struct {
	db     *storagebadger.DB
	owned  bool
	closed atomic.Bool
	logger *slog.Logger
}

// NewBadgerStore wraps an already opened database. The caller keeps
// ownership of db; Close on the store does not close it.
func NewBadgerStore(db *storagebadger.DB, logger *slog.Logger) (*BadgerStore, error) {
	if db == nil {
		return nil, storagebadger.ErrNilDB
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

// OpenBadgerStore opens a database at cfg and returns a store that owns it.
func OpenBadgerStore(cfg storagebadger.Config, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	db, err := storagebadger.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open marker store: %w", err)
	}
	return &BadgerStore{db: db, owned: true, logger: logger}, nil
}

// DeleteMarkers implements Store. All matching keys are deleted in one
// transaction.
func (s *BadgerStore) DeleteMarkers(ctx context.Context, resource, markerType string, depth Depth) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	base := normalizeResource(resource)
	if base == "" {
		return ErrEmptyResource
	}

	var deleted int
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		n, err := storagebadger.DeleteKeys(txn, scanPrefixFor(base, depth), func(key []byte) bool {
			res, typ, ok := splitKey(key)
			return ok && withinDepth(base, res, depth) && matchesType(markerType, typ)
		})
		deleted = n
		return err
	})
	if err != nil {
		return fmt.Errorf("delete markers on %s: %w", base, err)
	}

	if deleted > 0 {
		s.logger.Debug("markers deleted",
			slog.String("resource", base),
			slog.String("marker_type", markerType),
			slog.String("depth", depth.String()),
			slog.Int("count", deleted))
	}
	return nil
}

// CreateMarker implements Store.
func (s *BadgerStore) CreateMarker(ctx context.Context, resource string, m problem.Marker) (problem.Marker, error) {
	if s.closed.Load() {
		return problem.Marker{}, ErrStoreClosed
	}
	res := normalizeResource(resource)
	if res == "" {
		return problem.Marker{}, ErrEmptyResource
	}
	m, err := prepareMarker(res, m)
	if err != nil {
		return problem.Marker{}, err
	}

	data, err := json.Marshal(m)
	if err != nil {
		return problem.Marker{}, fmt.Errorf("encode marker: %w", err)
	}

	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(markerKey(m), data)
	})
	if err != nil {
		return problem.Marker{}, fmt.Errorf("create marker on %s: %w", res, err)
	}
	return m, nil
}

// FindMarkers implements Store.
func (s *BadgerStore) FindMarkers(ctx context.Context, resource, markerType string, depth Depth) ([]problem.Marker, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	base := normalizeResource(resource)
	if base == "" {
		return nil, ErrEmptyResource
	}

	var out []problem.Marker
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return storagebadger.ScanPrefix(txn, scanPrefixFor(base, depth), func(key, value []byte) error {
			res, typ, ok := splitKey(key)
			if !ok || !withinDepth(base, res, depth) || !matchesType(markerType, typ) {
				return nil
			}
			var m problem.Marker
			if err := json.Unmarshal(value, &m); err != nil {
				return fmt.Errorf("decode marker %q: %w", key, err)
			}
			out = append(out, m)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("find markers on %s: %w", base, err)
	}

	sortMarkers(out)
	return out, nil
}

// Close closes the store, and the database if the store opened it.
func (s *BadgerStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.owned {
		return s.db.Close()
	}
	return nil
}
