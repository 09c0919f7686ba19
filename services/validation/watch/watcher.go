// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch re-triggers validation when Java sources change on disk.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/astvalidation/services/validation/units"
)

// ErrNilHandler is returned by New when no handler is given.
var ErrNilHandler = errors.New("watch handler must not be nil")

// Op is the kind of file change.
type Op int

const (
	// OpCreate indicates a file was created.
	OpCreate Op = iota

	// OpWrite indicates a file was modified.
	OpWrite

	// OpRemove indicates a file was deleted or renamed away.
	OpRemove
)

// String returns the operation name.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Change is one debounced file change.
type Change struct {
	// Path is the path of the changed file as reported by the OS.
	Path string

	// Op is the last operation observed for Path within the batch.
	Op Op

	// Time is when the change was detected.
	Time time.Time
}

// Handler receives a deduplicated batch of changes. It is called from a
// single goroutine; a slow handler delays the next batch.
type Handler func(ctx context.Context, changes []Change)

// Options configures a Watcher.
type Options struct {
	// Debounce is how long to wait for more changes before flushing.
	// Default: 200ms
	Debounce time.Duration

	// IgnoreDirs are directory base names that are not watched.
	// Default: units.DefaultIgnoreDirs
	IgnoreDirs []string

	// Extensions are the file extensions that produce changes.
	// Default: [".java"]
	Extensions []string

	// BufferSize is the capacity of the pending change channel.
	// Default: 1024
	BufferSize int

	// Logger receives watcher errors. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Debounce:   200 * time.Millisecond,
		IgnoreDirs: slices.Clone(units.DefaultIgnoreDirs),
		Extensions: []string{units.JavaExtension},
		BufferSize: 1024,
	}
}

// Watcher watches a directory tree and delivers debounced batches of source
// changes to a handler.
//
// # Description
//
// Every directory under the root is watched, except those named in
// IgnoreDirs. Directories created while watching are added. Events for
// files without a matching extension are dropped. Changes are buffered until
// Debounce passes with no new event, then deduplicated by path and handed to
// the handler.
//
// # Thread Safety
//
// Start and Stop are safe for concurrent use. The handler is called from a
// single goroutine.
type Watcher struct {
	root    string
	fsw     *fsnotify.Watcher
	handler Handler
	opts    Options
	logger  *slog.Logger

	changes  chan Change
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu       sync.Mutex
	watching bool
}

// New creates a watcher for root. Call Start to begin watching.
//
// Inputs:
//
//	root - Directory to watch recursively.
//	handler - Receives change batches. Must not be nil.
//	opts - Options; zero fields take DefaultOptions values.
//
// Outputs:
//
//	*Watcher - The watcher.
//	error - ErrNilHandler, or the fsnotify creation error.
func New(root string, handler Handler, opts Options) (*Watcher, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	defaults := DefaultOptions()
	if opts.Debounce <= 0 {
		opts.Debounce = defaults.Debounce
	}
	if opts.IgnoreDirs == nil {
		opts.IgnoreDirs = defaults.IgnoreDirs
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = defaults.Extensions
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaults.BufferSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:    root,
		fsw:     fsw,
		handler: handler,
		opts:    opts,
		logger:  logger.With(slog.String("component", "watcher")),
		changes: make(chan Change, opts.BufferSize),
		done:    make(chan struct{}),
	}, nil
}

// Start adds the directory tree to the watch list and starts the event and
// debounce goroutines. Calling Start on a running watcher is a no-op.
//
// Both goroutines exit when Stop is called or ctx is cancelled; pending
// changes are flushed to the handler before exit.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watching {
		return nil
	}

	info, err := os.Stat(w.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "watch", Path: w.root, Err: errors.New("not a directory")}
	}
	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	w.watching = true

	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	w.logger.Info("watching for changes",
		slog.String("root", w.root),
		slog.Duration("debounce", w.opts.Debounce))
	return nil
}

// Stop stops watching and waits for the goroutines to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("closing fsnotify watcher", slog.String("error", err.Error()))
		}
	})
	w.wg.Wait()

	w.mu.Lock()
	w.watching = false
	w.mu.Unlock()
}

// IsWatching reports whether Start has run and Stop has not.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, the root itself is not.
			if p == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && w.ignoredDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

func (w *Watcher) ignoredDir(name string) bool {
	return slices.Contains(w.opts.IgnoreDirs, name)
}

// ignoredPath reports whether any directory component of p below the root
// is ignored.
func (w *Watcher) ignoredPath(p string) bool {
	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return false
	}
	dir := filepath.Dir(rel)
	for dir != "." && dir != string(filepath.Separator) && dir != "" {
		if w.ignoredDir(filepath.Base(dir)) {
			return true
		}
		dir = filepath.Dir(dir)
	}
	return false
}

func (w *Watcher) matchesExtension(p string) bool {
	return slices.Contains(w.opts.Extensions, filepath.Ext(p))
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if w.ignoredPath(event.Name) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if w.ignoredDir(info.Name()) {
				return
			}
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory",
					slog.String("path", event.Name),
					slog.String("error", err.Error()))
			}
			w.enqueueExisting(event.Name)
			return
		}
	}

	if !w.matchesExtension(event.Name) {
		return
	}
	w.enqueue(Change{Path: event.Name, Op: convertOp(event.Op), Time: time.Now()})
}

// enqueueExisting reports files already present in a directory that
// appeared after Start, since their create events may predate the watch.
func (w *Watcher) enqueueExisting(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != dir && w.ignoredDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.matchesExtension(p) {
			w.enqueue(Change{Path: p, Op: OpCreate, Time: time.Now()})
		}
		return nil
	})
}

func (w *Watcher) enqueue(c Change) {
	select {
	case w.changes <- c:
	default:
		w.logger.Warn("change buffer full, dropping event", slog.String("path", c.Path))
	}
}

func convertOp(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpRemove
	case op.Has(fsnotify.Create):
		return OpCreate
	default:
		return OpWrite
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()

	var (
		batch  []Change
		timer  *time.Timer
		timerC <-chan time.Time
	)

	flush := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
		if len(batch) == 0 {
			return
		}
		deduped := Dedupe(batch)
		batch = batch[:0]
		w.handler(ctx, deduped)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case c := <-w.changes:
			batch = append(batch, c)
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.Debounce)
			}
		case <-timerC:
			timer, timerC = nil, nil
			flush()
		}
	}
}

// Dedupe collapses changes to one per path, keeping the position of the
// first occurrence and the operation of the last.
func Dedupe(changes []Change) []Change {
	seen := make(map[string]int, len(changes))
	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		if i, ok := seen[c.Path]; ok {
			out[i] = c
			continue
		}
		seen[c.Path] = len(out)
		out = append(out, c)
	}
	return out
}
