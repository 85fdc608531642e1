package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeConfig       ErrorType = "config"
	ErrorTypeConstruction ErrorType = "construction"
	ErrorTypePool         ErrorType = "pool"
	ErrorTypeDispatch     ErrorType = "dispatch"
	ErrorTypeIO           ErrorType = "io"
	ErrorTypeInternal     ErrorType = "internal"
)

// Error codes for the surface subsystem.
const (
	ErrCodeConstruction     = "ERR_CONSTRUCTION"
	ErrCodePoolExhausted    = "ERR_POOL_EXHAUSTED"
	ErrCodeDoubleCheckin    = "ERR_DOUBLE_CHECKIN"
	ErrCodeStaleConsumer    = "ERR_STALE_CONSUMER"
	ErrCodeConsumerUpdate   = "ERR_CONSUMER_UPDATE"
	ErrCodeInvalidConsumer  = "ERR_INVALID_CONSUMER"
	ErrCodeSurfaceConfigure = "ERR_SURFACE_CONFIGURE"
	ErrCodeRuleCycle        = "ERR_RULE_CYCLE"
	ErrCodeInvalidElement   = "ERR_INVALID_ELEMENT"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeFileNotFound     = "ERR_FILE_NOT_FOUND"
	ErrCodeInternalError    = "ERR_INTERNAL"
)

// Sentinels for errors.Is. Matching compares Type and Code only, so a
// SurfaceError carrying extra context still matches its sentinel.
var (
	ErrConstruction   = &SurfaceError{Type: ErrorTypeConstruction, Code: ErrCodeConstruction}
	ErrPoolExhausted  = &SurfaceError{Type: ErrorTypePool, Code: ErrCodePoolExhausted}
	ErrDoubleCheckin  = &SurfaceError{Type: ErrorTypePool, Code: ErrCodeDoubleCheckin}
	ErrStaleConsumer  = &SurfaceError{Type: ErrorTypeDispatch, Code: ErrCodeStaleConsumer}
	ErrConsumerUpdate = &SurfaceError{Type: ErrorTypeDispatch, Code: ErrCodeConsumerUpdate}
	ErrRuleCycle      = &SurfaceError{Type: ErrorTypeConfig, Code: ErrCodeRuleCycle}
	ErrInvalidElement = &SurfaceError{Type: ErrorTypeValidation, Code: ErrCodeInvalidElement}
)

// SurfaceError is a structured error type with context.
type SurfaceError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	Recoverable bool
}

// Error implements the error interface.
func (e *SurfaceError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *SurfaceError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *SurfaceError) Is(target error) bool {
	var t *SurfaceError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *SurfaceError) WithContext(key string, value interface{}) *SurfaceError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithComponent adds component context.
func (e *SurfaceError) WithComponent(component string) *SurfaceError {
	e.Component = component

	return e
}

// Fields flattens the error into key/value pairs for structured logging.
func (e *SurfaceError) Fields() []interface{} {
	fields := []interface{}{"error_type", string(e.Type), "error_code", e.Code}
	for k, v := range e.Context {
		fields = append(fields, k, v)
	}

	return fields
}

// Error creation functions

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *SurfaceError {
	return &SurfaceError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string, cause error) *SurfaceError {
	return &SurfaceError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewConstructionError creates an error for a failed surface construction.
func NewConstructionError(message string, cause error) *SurfaceError {
	return &SurfaceError{
		Type:        ErrorTypeConstruction,
		Code:        ErrCodeConstruction,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewPoolError creates a pool lifecycle error.
func NewPoolError(code, message string) *SurfaceError {
	return &SurfaceError{
		Type:        ErrorTypePool,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewDispatchError creates an error for a failed consumer dispatch.
func NewDispatchError(code, message string, cause error) *SurfaceError {
	return &SurfaceError{
		Type:        ErrorTypeDispatch,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *SurfaceError {
	return &SurfaceError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *SurfaceError {
	return &SurfaceError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// FromPanic converts a recovered panic value into an error. It returns nil
// when nothing was recovered.
func FromPanic(recovered interface{}) error {
	if recovered == nil {
		return nil
	}
	if err, ok := recovered.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}

	return fmt.Errorf("panic: %v", recovered)
}

// Error recovery and handling utilities

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var se *SurfaceError
	if errors.As(err, &se) {
		return se.Recoverable
	}

	return false
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs an error. Recoverable errors, after which the subsystem keeps
// operating, are warnings; everything else is an error.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var se *SurfaceError
	if !errors.As(err, &se) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	if IsRecoverable(se) {
		h.logger.Warn(ctx, se, se.Message, se.Fields()...)
		return
	}
	h.logger.Error(ctx, se, se.Message, se.Fields()...)
}
