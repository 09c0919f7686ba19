// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// maxWalkDepth bounds recursion on pathologically nested input.
const maxWalkDepth = 2000

// ParseTree is the parsed form of one compilation unit.
//
// Description:
//
//	A ParseTree is built once per unit per validation run and handed to
//	every rule that runs on the unit. Rules must treat it as read-only.
//
// Thread Safety:
//
//	Read methods are safe for concurrent use. Close must not race with
//	readers.
type ParseTree struct {
	tree      *sitter.Tree
	root      *sitter.Node
	source    []byte
	filePath  string
	hasErrors bool
	nodeCount int

	closeOnce sync.Once
}

func newParseTree(tree *sitter.Tree, root *sitter.Node, source []byte, filePath string) *ParseTree {
	pt := &ParseTree{
		tree:      tree,
		root:      root,
		source:    source,
		filePath:  filePath,
		hasErrors: root.HasError(),
	}
	pt.Walk(func(*sitter.Node, int) bool {
		pt.nodeCount++
		return true
	})
	return pt
}

// Root returns the compilation unit node ("program").
func (t *ParseTree) Root() *sitter.Node {
	return t.root
}

// Source returns the bytes the tree was parsed from.
func (t *ParseTree) Source() []byte {
	return t.source
}

// FilePath returns the path the tree was parsed for.
func (t *ParseTree) FilePath() string {
	return t.filePath
}

// HasErrors reports whether the tree contains ERROR or MISSING nodes.
func (t *ParseTree) HasErrors() bool {
	return t.hasErrors
}

// NodeCount returns the number of nodes in the tree, anonymous tokens included.
func (t *ParseTree) NodeCount() int {
	return t.nodeCount
}

// Text returns the source text covered by node.
func (t *ParseTree) Text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	start, end := node.StartByte(), node.EndByte()
	if end > uint32(len(t.source)) {
		end = uint32(len(t.source))
	}
	if start >= end {
		return ""
	}
	return string(t.source[start:end])
}

// Position returns the 1-indexed line and column where node starts.
func (t *ParseTree) Position(node *sitter.Node) (line, column int) {
	p := node.StartPoint()
	return int(p.Row) + 1, int(p.Column) + 1
}

// Walk visits every node in depth-first pre-order.
//
// Description:
//
//	fn receives the node and its depth (root is 0). Returning false skips
//	the node's children. Anonymous nodes (punctuation, keywords) are
//	visited too so that MISSING tokens are reachable.
func (t *ParseTree) Walk(fn func(node *sitter.Node, depth int) bool) {
	if t.root == nil {
		return
	}
	walk(t.root, 0, fn)
}

func walk(node *sitter.Node, depth int, fn func(*sitter.Node, int) bool) {
	if depth > maxWalkDepth || !fn(node, depth) {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		walk(node.Child(i), depth+1, fn)
	}
}

// FindAll returns every node whose type is one of types, in source order.
func (t *ParseTree) FindAll(types ...string) []*sitter.Node {
	want := make(map[string]struct{}, len(types))
	for _, typ := range types {
		want[typ] = struct{}{}
	}
	var out []*sitter.Node
	t.Walk(func(n *sitter.Node, _ int) bool {
		if _, ok := want[n.Type()]; ok {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Visitor is implemented by rules that prefer a go/ast style traversal.
//
// Visit is called for each node. If it returns a non-nil Visitor w, the
// node's children are visited with w, followed by w.Visit(nil).
type Visitor interface {
	Visit(node *sitter.Node) (w Visitor)
}

// Accept traverses the tree with v.
func (t *ParseTree) Accept(v Visitor) {
	if t.root == nil || v == nil {
		return
	}
	accept(v, t.root, 0)
}

func accept(v Visitor, node *sitter.Node, depth int) {
	if depth > maxWalkDepth {
		return
	}
	w := v.Visit(node)
	if w == nil {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		accept(w, node.Child(i), depth+1)
	}
	w.Visit(nil)
}

// Close releases the tree-sitter tree. Safe to call more than once.
func (t *ParseTree) Close() {
	t.closeOnce.Do(func() {
		if t.tree != nil {
			t.tree.Close()
		}
	})
}
