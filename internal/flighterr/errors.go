// Package flighterr provides the structured error types used throughout
// the flight encode/decode pipeline.
//
// Failures are classified by where they originate (rendering a component,
// resolving a reference, parsing a wire row) so that callers can convert
// them into inline replacement content close to the failure site instead
// of aborting a whole render.
package flighterr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeRender     ErrorType = "render"
	ErrorTypeReference  ErrorType = "reference"
	ErrorTypeResolution ErrorType = "resolution"
	ErrorTypeParse      ErrorType = "parse"
	ErrorTypeDepth      ErrorType = "depth"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeComponentRender     = "ERR_COMPONENT_RENDER"
	ErrCodeUnresolvedReference = "ERR_UNRESOLVED_REFERENCE"
	ErrCodeEmptyReference      = "ERR_EMPTY_REFERENCE"
	ErrCodePromiseNotFound     = "ERR_PROMISE_NOT_FOUND"
	ErrCodeInvalidResolution   = "ERR_INVALID_RESOLUTION"
	ErrCodeParse               = "ERR_PARSE"
	ErrCodeDepthExceeded       = "ERR_DEPTH_EXCEEDED"
	ErrCodeInternal            = "ERR_INTERNAL"
)

// Error is a structured error with pipeline context.
type Error struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Component   string
	Phase       string
	RowID       int
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	if e.Phase != "" {
		parts = append(parts, "phase:"+e.Phase)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithComponent adds component context.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component

	return e
}

// WithPhase records which pipeline phase the error occurred in
// ("encode", "resolve", "decode", "render").
func (e *Error) WithPhase(phase string) *Error {
	e.Phase = phase

	return e
}

// WithRowID records the wire row the error relates to.
func (e *Error) WithRowID(id int) *Error {
	e.RowID = id

	return e
}

// Error creation functions

// NewRenderError creates an error for a component producer that failed.
// These are always recoverable: the failing subtree is replaced inline.
func NewRenderError(component string, cause error) *Error {
	return &Error{
		Type:        ErrorTypeRender,
		Code:        ErrCodeComponentRender,
		Message:     "component render failed: " + component,
		Cause:       cause,
		Component:   component,
		Recoverable: true,
	}
}

// NewUnresolvedReferenceError creates an error for a client reference
// that could not be mapped to an implementation.
func NewUnresolvedReferenceError(id string) *Error {
	return &Error{
		Type:        ErrorTypeReference,
		Code:        ErrCodeUnresolvedReference,
		Message:     "unresolved client reference: " + id,
		Recoverable: true,
	}
}

// NewEmptyReferenceError creates an error for a client reference whose
// identifier is empty. Kept distinct from "not registered" so the two
// conditions stay diagnosable.
func NewEmptyReferenceError() *Error {
	return &Error{
		Type:        ErrorTypeReference,
		Code:        ErrCodeEmptyReference,
		Message:     "empty client reference",
		Recoverable: true,
	}
}

// NewPromiseNotFoundError creates an error for a deferred value that was
// expected but never registered.
func NewPromiseNotFoundError(rowID int) *Error {
	return &Error{
		Type:        ErrorTypeResolution,
		Code:        ErrCodePromiseNotFound,
		Message:     fmt.Sprintf("no pending work registered for row %d", rowID),
		RowID:       rowID,
		Recoverable: true,
	}
}

// NewInvalidResolutionError creates an error for a deferred value that
// resolved to nothing.
func NewInvalidResolutionError(rowID int) *Error {
	return &Error{
		Type:        ErrorTypeResolution,
		Code:        ErrCodeInvalidResolution,
		Message:     fmt.Sprintf("pending work for row %d resolved to an empty value", rowID),
		RowID:       rowID,
		Recoverable: true,
	}
}

// NewParseError creates an error for a malformed wire row. Parse errors
// never abort the stream: the row is skipped and logged.
func NewParseError(message string, cause error) *Error {
	return &Error{
		Type:        ErrorTypeParse,
		Code:        ErrCodeParse,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewDepthExceededError creates an error for the recursion guard.
func NewDepthExceededError(depth int) *Error {
	return &Error{
		Type:        ErrorTypeDepth,
		Code:        ErrCodeDepthExceeded,
		Message:     fmt.Sprintf("maximum render depth exceeded at level %d", depth),
		Recoverable: true,
	}
}

// NewInternalError creates an error for failures outside any per-node
// guard. These propagate to the top level.
func NewInternalError(message string, cause error) *Error {
	return &Error{
		Type:        ErrorTypeInternal,
		Code:        ErrCodeInternal,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Recoverable
	}

	return false
}

// IsParseError checks if an error is a wire parse error.
func IsParseError(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Type == ErrorTypeParse
	}

	return false
}

// IsDepthExceeded checks if an error is the recursion guard firing.
func IsDepthExceeded(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Type == ErrorTypeDepth
	}

	return false
}
