// Package crystalerrors provides structured error handling for the event
// recording subsystem with error categorization, key/value context and
// captured stack traces.
//
// # Overview
//
// Every fallible operation of the writer, the reader and the supporting
// packages returns an *Error whose Type tells the caller how to react:
//
//   - ErrorTypeConfig: unusable run configuration, reported before any event
//     is recorded. Never retried.
//   - ErrorTypeValidation: a single event was rejected; the row buffer is
//     untouched and the caller may continue with the next event.
//   - ErrorTypeWrite: a flush or close failed; rows may have been lost.
//   - ErrorTypeRead, ErrorTypeNotFound, ErrorTypeSchemaMismatch: the file
//     cannot be trusted and no rows are returned.
//
// # Basic Usage
//
//	if n < 0 {
//	    return crystalerrors.New(crystalerrors.ErrorTypeConfig, "negative channel count").
//	        WithDetail("channels", n)
//	}
//
//	if err := fw.Close(); err != nil {
//	    return crystalerrors.Wrap(err, crystalerrors.ErrorTypeWrite, "failed to close parquet writer").
//	        WithDetail("path", path)
//	}
//
// # Thread Safety
//
// Error instances are not safe for concurrent modification. Add details
// before sharing an error across goroutines.
package crystalerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error, used to decide whether a
// failure concerns one event, the whole run, or a file being read.
type ErrorType string

const (
	// ErrorTypeInternal represents internal errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents rejected input values
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents missing files
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeFile represents file operation errors
	ErrorTypeFile ErrorType = "file"
	// ErrorTypeWrite represents failures while flushing or closing output
	ErrorTypeWrite ErrorType = "write"
	// ErrorTypeRead represents corrupt or unreadable input
	ErrorTypeRead ErrorType = "read"
	// ErrorTypeSchemaMismatch represents a stored column layout that differs
	// from the layout the current configuration produces
	ErrorTypeSchemaMismatch ErrorType = "schema_mismatch"
)

// Error represents a structured error with context.
//
// Fields:
//   - Type: Categorizes the error
//   - Message: Human-readable error description
//   - Cause: The underlying error, if any
//   - Details: Key-value pairs providing additional context
//   - Stack: Call stack at the point of error creation
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface. Details are not part of the
// message; log them with Fields.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, enabling errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. Calls can be chained.
//
// Example:
//
//	err := crystalerrors.New(crystalerrors.ErrorTypeConfig, "unrecognized compression algorithm").
//	    WithDetail("offending", "bogus").
//	    WithDetail("spec", spec)
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Detail returns the detail stored under key.
func (e *Error) Detail(key string) (interface{}, bool) {
	v, ok := e.Details[key]
	return v, ok
}

// New creates a new error with the given type and message, capturing the
// call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context, preserving the
// original error as the cause. If the error is already an *Error its stack
// trace is preserved. Returns nil if err is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType reports whether the outermost *Error in err's chain has the given
// type.
//
// Example:
//
//	if crystalerrors.IsType(err, crystalerrors.ErrorTypeValidation) {
//	    log.Warn("event rejected", zap.Int("event", i), zap.Error(err))
//	    continue
//	}
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// HasType reports whether any *Error in err's chain has the given type.
func HasType(err error, errType ErrorType) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == errType {
			return true
		}
		err = e.Cause
	}
	return false
}

// TypeOf returns the type of the outermost *Error in err's chain, or
// ErrorTypeInternal when err carries no type.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the specified number of frames from the top.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
