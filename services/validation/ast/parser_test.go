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
	"context"
	"errors"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloJava = `package demo;

public class Hello {
    public static void main(String[] args) {
        System.out.println("hi");
    }

    int twice(int x) {
        return x * 2;
    }
}
`

func TestJavaParser_Parse(t *testing.T) {
	p := NewJavaParser()
	tree, err := p.Parse(context.Background(), []byte(helloJava), "demo/Hello.java")
	require.NoError(t, err)
	defer tree.Close()

	assert.Equal(t, "program", tree.Root().Type())
	assert.Equal(t, "demo/Hello.java", tree.FilePath())
	assert.False(t, tree.HasErrors())
	assert.Positive(t, tree.NodeCount())
	assert.Equal(t, []byte(helloJava), tree.Source())

	methods := tree.FindAll("method_declaration")
	require.Len(t, methods, 2)
	assert.Equal(t, "main", tree.Text(methods[0].ChildByFieldName("name")))
	assert.Equal(t, "twice", tree.Text(methods[1].ChildByFieldName("name")))

	line, col := tree.Position(methods[1])
	assert.Equal(t, 8, line)
	assert.Equal(t, 5, col)
}

func TestJavaParser_RecoversFromSyntaxErrors(t *testing.T) {
	src := `class Broken {
    void a() { int x = ; }
    void b() { System.out.println("still here"); }
}
`
	tree, err := NewJavaParser().Parse(context.Background(), []byte(src), "Broken.java")
	require.NoError(t, err, "syntax errors are not parse failures")
	defer tree.Close()

	assert.True(t, tree.HasErrors())
	assert.NotEmpty(t, tree.FindAll("method_invocation"), "rest of the tree stays usable")
}

func TestJavaParser_Errors(t *testing.T) {
	t.Run("too large", func(t *testing.T) {
		p := NewJavaParser(WithMaxFileSize(8))
		_, err := p.Parse(context.Background(), []byte(helloJava), "Hello.java")
		assert.ErrorIs(t, err, ErrFileTooLarge)
		assert.True(t, IsParseError(err))
	})

	t.Run("invalid utf8", func(t *testing.T) {
		_, err := NewJavaParser().Parse(context.Background(), []byte{0xff, 0xfe, 0xfd}, "Bin.java")
		assert.ErrorIs(t, err, ErrInvalidContent)

		var pe *ParseError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "Bin.java", pe.FilePath)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewJavaParser().Parse(ctx, []byte(helloJava), "Hello.java")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestParseError_Format(t *testing.T) {
	assert.Equal(t, "A.java:3:4: bad", (&ParseError{FilePath: "A.java", Line: 3, Column: 4, Message: "bad"}).Error())
	assert.Equal(t, "A.java:3: bad", (&ParseError{FilePath: "A.java", Line: 3, Message: "bad"}).Error())
	assert.Equal(t, "A.java: bad", (&ParseError{FilePath: "A.java", Message: "bad"}).Error())

	assert.Nil(t, WrapParseError(nil, "A.java"))
	inner := &ParseError{FilePath: "A.java", Message: "x"}
	assert.Same(t, inner, WrapParseError(inner, "B.java"))
}

// countingVisitor records node types and how many times Visit(nil) closes a scope.
type countingVisitor struct {
	types  map[string]int
	leaves int
}

func (v *countingVisitor) Visit(node *sitter.Node) Visitor {
	if node == nil {
		v.leaves++
		return nil
	}
	v.types[node.Type()]++
	if node.Type() == "block" {
		return nil // don't descend into bodies
	}
	return v
}

func TestParseTree_Accept(t *testing.T) {
	tree, err := NewJavaParser().Parse(context.Background(), []byte(helloJava), "Hello.java")
	require.NoError(t, err)
	defer tree.Close()

	v := &countingVisitor{types: map[string]int{}}
	tree.Accept(v)

	assert.Equal(t, 1, v.types["class_declaration"])
	assert.Equal(t, 2, v.types["method_declaration"])
	assert.Zero(t, v.types["method_invocation"], "block bodies were pruned")
	assert.Positive(t, v.leaves)
}

func TestParseTree_WalkPrune(t *testing.T) {
	tree, err := NewJavaParser().Parse(context.Background(), []byte(helloJava), "Hello.java")
	require.NoError(t, err)
	defer tree.Close()

	var maxDepth int
	tree.Walk(func(n *sitter.Node, depth int) bool {
		if depth > maxDepth {
			maxDepth = depth
		}
		return depth < 2
	})
	assert.Equal(t, 2, maxDepth)
}

func TestParseTree_CloseTwice(t *testing.T) {
	tree, err := NewJavaParser().Parse(context.Background(), []byte("class A {}"), "A.java")
	require.NoError(t, err)
	tree.Close()
	tree.Close()
}
