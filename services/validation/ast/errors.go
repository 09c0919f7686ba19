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
	"errors"
	"fmt"
)

// Sentinel errors for parse failure conditions.
//
// These errors can be checked using errors.Is() to determine the
// category of failure without inspecting error messages.
var (
	// ErrFileTooLarge indicates the content exceeds the parser's size limit.
	ErrFileTooLarge = errors.New("file exceeds maximum size limit")

	// ErrInvalidContent indicates that the provided content cannot be parsed.
	//
	// Common causes:
	//   - Non-UTF-8 encoding
	//   - Binary file content
	ErrInvalidContent = errors.New("invalid content")

	// ErrParseFailed indicates that tree-sitter produced no usable tree.
	//
	// Syntax errors are NOT reported this way: tree-sitter recovers and the
	// resulting tree carries ERROR/MISSING nodes (see ParseTree.HasErrors).
	ErrParseFailed = errors.New("parse failed")
)

// ParseError provides detailed information about a parse failure.
//
// Example:
//
//	tree, err := parser.Parse(ctx, content, "src/A.java")
//	if err != nil {
//	    var parseErr *ParseError
//	    if errors.As(err, &parseErr) {
//	        fmt.Printf("cannot parse %s: %s\n", parseErr.FilePath, parseErr.Message)
//	    }
//	}
type ParseError struct {
	// FilePath is the path to the file where the error occurred.
	FilePath string

	// Line is the 1-indexed line number, 0 if unknown.
	Line int

	// Column is the 1-indexed column, 0 if unknown.
	Column int

	// Message describes the error in human-readable form.
	Message string

	// Cause is the underlying error. May be nil.
	Cause error
}

// Error returns a formatted error message including file location.
//
// Format depends on available location information:
//   - With line and column: "A.java:10:5: unexpected token"
//   - With line only:       "A.java:10: unexpected token"
//   - Without location:     "A.java: unexpected token"
func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.FilePath, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.FilePath, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.FilePath, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// WrapParseError wraps err with file context. ParseErrors are returned
// unchanged; nil stays nil.
func WrapParseError(err error, filePath string) error {
	if err == nil {
		return nil
	}

	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return err
	}

	return &ParseError{
		FilePath: filePath,
		Message:  err.Error(),
		Cause:    err,
	}
}

// IsParseError checks if an error is or wraps a ParseError.
func IsParseError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}
