// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package units provides the source units the validation engine runs over.
package units

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// JavaExtension is the file extension of Java compilation units.
const JavaExtension = ".java"

// ErrNotJava is returned when an explicitly named file is not a Java source.
var ErrNotJava = errors.New("not a java source file")

// SourceUnit is a handle to one compilable source file.
//
// Implementations must be immutable for the duration of a validation run.
type SourceUnit interface {
	// Name is the element name used in logs and progress ("Hello.java").
	Name() string

	// Resource is the slash-separated path markers are attached to.
	Resource() string

	// Exists reports whether the underlying file is still present.
	Exists() bool

	// Content returns the bytes to parse.
	Content() ([]byte, error)
}

// FileUnit is a SourceUnit backed by a file on disk.
type FileUnit struct {
	path     string
	resource string
}

// NewFileUnit creates a unit for the file at path. The resource is path
// relative to root, or path itself when root is empty or not a parent.
func NewFileUnit(root, path string) *FileUnit {
	return &FileUnit{path: path, resource: resourceFor(root, path)}
}

// Name implements SourceUnit.
func (u *FileUnit) Name() string {
	return filepath.Base(u.path)
}

// Resource implements SourceUnit.
func (u *FileUnit) Resource() string {
	return u.resource
}

// Path returns the filesystem path of the unit.
func (u *FileUnit) Path() string {
	return u.path
}

// Exists implements SourceUnit. A nil unit does not exist.
func (u *FileUnit) Exists() bool {
	if u == nil {
		return false
	}
	info, err := os.Stat(u.path)
	return err == nil && info.Mode().IsRegular()
}

// Content implements SourceUnit.
func (u *FileUnit) Content() ([]byte, error) {
	data, err := os.ReadFile(u.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u.resource, err)
	}
	return data, nil
}

// String returns the resource path.
func (u *FileUnit) String() string {
	return u.resource
}

func resourceFor(root, path string) string {
	if root != "" {
		if rel, err := filepath.Rel(root, path); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(filepath.Clean(path))
}

// =============================================================================
// Discovery
// =============================================================================

// DefaultIgnoreDirs are directory names skipped during discovery.
var DefaultIgnoreDirs = []string{".git", ".idea", ".gradle", ".astvalidation", "node_modules", "build", "target", "out"}

// Discover returns a unit for every .java file under root, sorted by resource.
//
// Description:
//
//	Directories listed in DefaultIgnoreDirs are skipped. Unreadable
//	subdirectories are skipped rather than failing the walk; a missing or
//	unreadable root is an error.
//
// Inputs:
//
//	root - Directory to walk. Resources are relative to it.
//
// Outputs:
//
//	[]*FileUnit - Units in resource order.
//	error - Non-nil if root cannot be read.
func Discover(root string) ([]*FileUnit, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("discover %s: not a directory", root)
	}

	ignore := make(map[string]struct{}, len(DefaultIgnoreDirs))
	for _, d := range DefaultIgnoreDirs {
		ignore[d] = struct{}{}
	}

	var out []*FileUnit
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if _, skip := ignore[d.Name()]; skip && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if IsJava(path) {
			out = append(out, NewFileUnit(root, path))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", root, err)
	}

	sortUnits(out)
	return out, nil
}

// Collect resolves CLI arguments into units. Directories are discovered
// recursively; files must be Java sources. Duplicates are removed.
func Collect(root string, paths ...string) ([]*FileUnit, error) {
	if len(paths) == 0 {
		return Discover(root)
	}

	seen := make(map[string]struct{})
	var out []*FileUnit
	add := func(u *FileUnit) {
		if _, dup := seen[u.resource]; dup {
			return
		}
		seen[u.resource] = struct{}{}
		out = append(out, u)
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("collect %s: %w", p, err)
		}
		if info.IsDir() {
			found, err := Discover(p)
			if err != nil {
				return nil, err
			}
			for _, u := range found {
				add(NewFileUnit(root, u.path))
			}
			continue
		}
		if !IsJava(p) {
			return nil, fmt.Errorf("collect %s: %w", p, ErrNotJava)
		}
		add(NewFileUnit(root, p))
	}

	sortUnits(out)
	return out, nil
}

// IsJava reports whether path names a Java source file.
func IsJava(path string) bool {
	return strings.EqualFold(filepath.Ext(path), JavaExtension)
}

// AsSourceUnits converts file units to the engine's interface slice.
func AsSourceUnits(files []*FileUnit) []SourceUnit {
	out := make([]SourceUnit, len(files))
	for i, f := range files {
		// Keep nil entries untyped so a nil check on the interface sees them.
		if f != nil {
			out[i] = f
		}
	}
	return out
}

func sortUnits(us []*FileUnit) {
	sort.Slice(us, func(i, j int) bool { return us[i].resource < us[j].resource })
}
