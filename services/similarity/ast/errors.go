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

// Sentinel errors for common parse failure conditions.
//
// These errors can be checked using errors.Is() to determine the
// category of failure without inspecting error messages.
var (
	// ErrUnsupportedLanguage indicates that no parser is available for the
	// requested language or file extension.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrParseFailed indicates that parsing failed completely and no
	// tree could be produced.
	ErrParseFailed = errors.New("parse failed")

	// ErrInvalidContent indicates that the provided content is not
	// valid UTF-8 or is otherwise unusable.
	ErrInvalidContent = errors.New("invalid content")

	// ErrFileTooLarge indicates the content exceeds the parser's size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrSyntax indicates the source contains syntax errors.
	// Every *SyntaxError matches this sentinel.
	ErrSyntax = errors.New("syntax error")
)

// ParseError provides detailed information about a parse failure.
//
// ParseError wraps an underlying error with additional context about
// where the error occurred in the source file. It implements the
// error interface and can be unwrapped to access the underlying cause.
//
// Example:
//
//	tree, err := parser.Parse(ctx, content, "main.ts")
//	if err != nil {
//	    var parseErr *ParseError
//	    if errors.As(err, &parseErr) {
//	        fmt.Printf("Error at %s:%d:%d: %s\n",
//	            parseErr.FilePath, parseErr.Line, parseErr.Column, parseErr.Message)
//	    }
//	}
type ParseError struct {
	// FilePath is the path to the file where the error occurred.
	FilePath string

	// Line is the 1-indexed line number where the error occurred.
	// May be 0 if the error is not associated with a specific line.
	Line int

	// Column is the 1-indexed column where the error occurred.
	// May be 0 if unknown.
	Column int

	// Message describes the error in human-readable form.
	Message string

	// Cause is the underlying error that triggered this parse error.
	Cause error
}

// Error returns a formatted error message including file location.
//
// Format depends on available location information:
//   - With line and column: "file.ts:10:5: unexpected token"
//   - With line only:       "file.ts:10: unexpected token"
//   - Without location:     "file.ts: unexpected token"
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

// SyntaxError reports malformed source.
//
// # Description
//
// SyntaxError is the distinguished parse failure sub-kind. Callers decide
// whether to surface it; the analyzer hides it by default because broken
// files are routine in real trees. It wraps a ParseError so errors.As
// finds both.
type SyntaxError struct {
	ParseError

	// Count is the number of error or missing nodes found.
	Count int
}

// Error implements error.
func (e *SyntaxError) Error() string {
	return e.ParseError.Error()
}

// Unwrap exposes ErrSyntax and the embedded ParseError.
func (e *SyntaxError) Unwrap() []error {
	return []error{ErrSyntax, &e.ParseError}
}

// NewSyntaxError creates a SyntaxError at the given location.
func NewSyntaxError(filePath string, line, column, count int) *SyntaxError {
	return &SyntaxError{
		ParseError: ParseError{
			FilePath: filePath,
			Line:     line,
			Column:   column,
			Message:  fmt.Sprintf("Parse errors: %d syntax error(s)", count),
		},
		Count: count,
	}
}

// ExtractionError reports a failure to pull units out of a well-formed tree.
type ExtractionError struct {
	FilePath string
	Stage    string
	Cause    error
}

// Error implements error.
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: extract %s: %v", e.FilePath, e.Stage, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// NewParseError creates a new ParseError with the given details.
func NewParseError(filePath string, line, column int, message string) *ParseError {
	return &ParseError{
		FilePath: filePath,
		Line:     line,
		Column:   column,
		Message:  message,
	}
}

// WrapParseError wraps an error with file context.
//
// If the error is already a ParseError, it returns it unchanged.
// Otherwise, it creates a new ParseError wrapping the original error.
//
// Returns nil if err is nil.
func WrapParseError(err error, filePath string) error {
	if err == nil {
		return nil
	}

	// Don't double-wrap ParseErrors
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

// IsSyntaxError checks if an error is or wraps a SyntaxError.
func IsSyntaxError(err error) bool {
	return errors.Is(err, ErrSyntax)
}

// IsUnsupportedLanguage checks if an error indicates an unsupported language.
func IsUnsupportedLanguage(err error) bool {
	return errors.Is(err, ErrUnsupportedLanguage)
}
