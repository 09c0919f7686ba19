// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast parses Java compilation units into syntax trees that
// validation rules walk.
//
// Parsing uses the tree-sitter Java grammar. Tree-sitter is error
// recovering: malformed statements become ERROR or MISSING nodes and the
// rest of the tree stays usable, so a single typo does not blind every
// rule to the file. There is no binding or type resolution; rules work on
// syntax only.
package ast

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
)

const (
	// DefaultMaxFileSize is the maximum file size the parser will accept (10MB).
	DefaultMaxFileSize = 10 * 1024 * 1024

	// WarnFileSize is the size above which a warning is logged (1MB).
	WarnFileSize = 1 * 1024 * 1024

	languageJava = "java"
)

// JavaParserOption configures a JavaParser.
type JavaParserOption func(*JavaParser)

// WithMaxFileSize sets the maximum file size the parser will accept.
//
// Example:
//
//	parser := NewJavaParser(WithMaxFileSize(5 * 1024 * 1024)) // 5MB limit
func WithMaxFileSize(bytes int64) JavaParserOption {
	return func(p *JavaParser) {
		p.maxFileSize = bytes
	}
}

// WithParserLogger sets the logger used for parse warnings.
func WithParserLogger(logger *slog.Logger) JavaParserOption {
	return func(p *JavaParser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// JavaParser parses Java source into a ParseTree.
//
// Description:
//
//	A fresh tree-sitter parser is created per call, so one JavaParser can be
//	shared by every worker of the validation engine.
//
// Thread Safety:
//
//	JavaParser instances are safe for concurrent use.
type JavaParser struct {
	maxFileSize int64
	logger      *slog.Logger
}

// NewJavaParser creates a new JavaParser with the given options.
func NewJavaParser(opts ...JavaParserOption) *JavaParser {
	p := &JavaParser{
		maxFileSize: DefaultMaxFileSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses Java source code and returns the syntax tree.
//
// Description:
//
//	Validates size and encoding, then parses with the tree-sitter Java
//	grammar. Syntax errors do not fail the parse: the returned tree reports
//	them through HasErrors and contains ERROR/MISSING nodes at the affected
//	spots.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - content: Raw Java source bytes. Must be valid UTF-8.
//   - filePath: Path used for error reporting.
//
// Outputs:
//   - *ParseTree: The parsed tree. Caller should Close it when done.
//   - error: Non-nil for complete failures:
//   - ErrFileTooLarge: Content exceeds the size limit
//   - ErrInvalidContent: Content is not valid UTF-8
//   - ErrParseFailed: Tree-sitter returned no tree
//   - Context errors: Context was canceled before or during parsing
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (p *JavaParser) Parse(ctx context.Context, content []byte, filePath string) (*ParseTree, error) {
	ctx, span := startParseSpan(ctx, languageJava, filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, languageJava, time.Since(start), false, false)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	if int64(len(content)) > p.maxFileSize {
		recordParseMetrics(ctx, languageJava, time.Since(start), false, false)
		return nil, &ParseError{
			FilePath: filePath,
			Message:  fmt.Sprintf("size %d exceeds limit %d", len(content), p.maxFileSize),
			Cause:    ErrFileTooLarge,
		}
	}

	if len(content) > WarnFileSize {
		p.logger.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		recordParseMetrics(ctx, languageJava, time.Since(start), false, false)
		return nil, &ParseError{
			FilePath: filePath,
			Message:  "content is not valid UTF-8",
			Cause:    ErrInvalidContent,
		}
	}

	parser := sitter.NewParser()
	parser.SetLanguage(java.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics(ctx, languageJava, time.Since(start), false, false)
		return nil, WrapParseError(fmt.Errorf("tree-sitter parse failed: %w", err), filePath)
	}

	root := tree.RootNode()
	if root == nil {
		tree.Close()
		recordParseMetrics(ctx, languageJava, time.Since(start), false, false)
		return nil, &ParseError{FilePath: filePath, Message: "tree-sitter returned nil root node", Cause: ErrParseFailed}
	}

	pt := newParseTree(tree, root, content, filePath)

	setParseSpanResult(span, pt.NodeCount(), pt.HasErrors())
	recordParseMetrics(ctx, languageJava, time.Since(start), pt.HasErrors(), true)

	return pt, nil
}

// Language returns the canonical language name for this parser.
func (p *JavaParser) Language() string {
	return languageJava
}

// Extensions returns the file extensions this parser handles.
func (p *JavaParser) Extensions() []string {
	return []string{".java"}
}
