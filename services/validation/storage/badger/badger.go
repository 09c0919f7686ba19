// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger opens and manages the embedded BadgerDB that backs the
// persistent marker store.
//
// Markers survive between CLI invocations so that `astvalidate markers list`
// can show the findings of the last run, and so that a later run can replace
// them. An in-memory mode is provided for tests.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNilDB is returned when a nil database is handed to a helper.
var ErrNilDB = errors.New("db must not be nil")

// Config holds configuration for a BadgerDB instance.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. Nil disables them.
	Logger *slog.Logger

	// GCInterval is how often value log GC runs. 0 disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the garbage ratio that triggers a rewrite.
	GCDiscardRatio float64
}

// DefaultConfig returns settings for an on-disk marker database.
//
// Description:
//
//	Markers are rewritten on every run, so the value log accumulates
//	garbage quickly; GC runs every 5 minutes for long-lived processes
//	(watch mode). Single CLI runs close before GC ever fires.
//
// Outputs:
//
//	Config - Ready-to-use configuration (Path still has to be set).
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration for tests.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// DB wraps a BadgerDB instance with GC lifecycle management.
//
// Thread Safety: Safe for concurrent use.
type DB struct {
	*badger.DB
	gcStop   chan struct{}
	gcDone   chan struct{}
	path     string
	inMemory bool
	logger   *slog.Logger
}

// Open opens a BadgerDB with the given configuration.
//
// Description:
//
//	Creates the directory if needed, opens the database and starts the
//	value log GC loop when GCInterval is set for an on-disk database.
//
// Inputs:
//
//	cfg - Database configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*DB - The opened database. Caller must call Close().
//	error - Non-nil if the path is missing or the database cannot be opened.
func Open(cfg Config) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	db := &DB{
		DB:       bdb,
		path:     cfg.Path,
		inMemory: cfg.InMemory,
		logger:   cfg.Logger,
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		if cfg.GCDiscardRatio <= 0 || cfg.GCDiscardRatio >= 1 {
			bdb.Close()
			return nil, errors.New("gc discard ratio must be between 0 and 1")
		}
		db.gcStop = make(chan struct{})
		db.gcDone = make(chan struct{})
		go db.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}

	return db, nil
}

// OpenInMemory opens an in-memory database. Data is lost on Close.
func OpenInMemory() (*DB, error) {
	return Open(InMemoryConfig())
}

func (d *DB) runGC(interval time.Duration, ratio float64) {
	defer close(d.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.gcStop:
			return
		case <-ticker.C:
			err := d.DB.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && d.logger != nil {
				d.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}

// Close stops GC and closes the database.
func (d *DB) Close() error {
	if d.gcStop != nil {
		close(d.gcStop)
		<-d.gcDone
		d.gcStop = nil
	}
	return d.DB.Close()
}

// Path returns the database path, or "" for in-memory databases.
func (d *DB) Path() string {
	return d.path
}

// InMemory returns true if this is an in-memory database.
func (d *DB) InMemory() bool {
	return d.inMemory
}

// WithTxn runs fn in a read-write transaction and commits if fn returns nil.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := d.DB.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// WithReadTxn runs fn in a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := d.DB.NewTransaction(false)
	defer txn.Discard()

	return fn(txn)
}

// ScanPrefix calls fn for every key/value pair under prefix, in key order.
//
// Description:
//
//	The key and value slices are only valid during the callback; copy them
//	to retain. Returning an error from fn stops the scan.
//
// Inputs:
//
//	txn - Transaction to read in.
//	prefix - Key prefix.
//	fn - Callback per item.
//
// Outputs:
//
//	error - First error from fn or from reading a value.
func ScanPrefix(txn *badger.Txn, prefix []byte, fn func(key, value []byte) error) error {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 64})
	defer it.Close()

	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		err := item.Value(func(val []byte) error {
			return fn(item.Key(), val)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteKeys deletes keys selected by match under prefix within txn.
//
// Description:
//
//	Keys are collected first and deleted after iteration, since Badger does
//	not allow mutating while an iterator is open on the same transaction.
//
// Inputs:
//
//	txn - Read-write transaction.
//	prefix - Key prefix to scan.
//	match - Selects keys to delete. Nil deletes every key under prefix.
//
// Outputs:
//
//	int - Number of keys deleted.
//	error - Non-nil if a delete fails (e.g., transaction too big).
func DeleteKeys(txn *badger.Txn, prefix []byte, match func(key []byte) bool) (int, error) {
	var keys [][]byte

	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: false})
	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		key := it.Item().KeyCopy(nil)
		if match == nil || match(key) {
			keys = append(keys, key)
		}
	}
	it.Close()

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return 0, fmt.Errorf("delete key: %w", err)
		}
	}
	return len(keys), nil
}
