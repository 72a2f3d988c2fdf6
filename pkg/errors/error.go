// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories:
//   - General errors (1-99): Unknown and general errors
//   - Input errors (100-199): Invalid configuration, parameters and orders
//   - Bar series errors (200-299): Malformed or unavailable market data
//   - Indicator errors (300-399): Indicator registration and calculation errors
//   - Strategy errors (400-499): Strategy lookup, configuration and runtime errors
//   - Backtest errors (600-699): Backtesting engine and result persistence errors
//   - Callback errors (800-899): Callback execution failures
//
// Input and bar series errors fail a run before any bar is processed. A
// strategy that fails inside Init or Next surfaces as a *StrategyError, which
// carries the strategy name and the bar index.
//
// Usage:
//
//	// Create a new error
//	err := errors.New(errors.ErrCodeInvalidParameter, "invalid parameter value")
//
//	// Wrap an existing error
//	err := errors.Wrap(errors.ErrCodeQueryFailed, "failed to execute query", originalErr)
//
//	// Check error code
//	if errors.HasCode(err, errors.ErrCodeMissingColumn) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard errors.Is function.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard errors.As function.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	var s *StrategyError
	if errors.As(err, &s) {
		return ErrCodeStrategyRuntimeError
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// IsInputError reports whether err is an input error: bad configuration,
// invalid parameters or a malformed bar series.
func IsInputError(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	return IsInputCode(e.Code)
}

// StrategyPhase names the strategy hook that failed.
type StrategyPhase string

const (
	StrategyPhaseInit StrategyPhase = "init"
	StrategyPhaseNext StrategyPhase = "next"
)

// StrategyError is returned when a strategy's Init or Next fails.
// Bar is -1 when the failure happened during Init.
type StrategyError struct {
	Strategy string
	Phase    StrategyPhase
	Bar      int
	Cause    error
}

// NewStrategyError creates a new StrategyError.
func NewStrategyError(strategy string, phase StrategyPhase, bar int, cause error) *StrategyError {
	return &StrategyError{
		Strategy: strategy,
		Phase:    phase,
		Bar:      bar,
		Cause:    cause,
	}
}

// Error implements the error interface.
func (e *StrategyError) Error() string {
	if e.Phase == StrategyPhaseInit {
		return fmt.Sprintf("[%d] strategy %s failed in %s: %v", ErrCodeStrategyRuntimeError, e.Strategy, e.Phase, e.Cause)
	}

	return fmt.Sprintf("[%d] strategy %s failed in %s at bar %d: %v", ErrCodeStrategyRuntimeError, e.Strategy, e.Phase, e.Bar, e.Cause)
}

// Unwrap returns the underlying error cause.
func (e *StrategyError) Unwrap() error {
	return e.Cause
}

// IsStrategyError checks if an error is a StrategyError.
func IsStrategyError(err error) bool {
	var strategyErr *StrategyError

	return errors.As(err, &strategyErr)
}

// InsufficientDataError represents an error when there is not enough data
// for a calculation (e.g., reading an indicator before its warm-up completes).
type InsufficientDataError struct {
	Required int    // Minimum data points required
	Actual   int    // Actual data points available
	Name     string // Optional: indicator or column name
	Message  string // Human-readable message
}

// NewInsufficientDataError creates a new InsufficientDataError.
func NewInsufficientDataError(required, actual int, name, message string) *InsufficientDataError {
	return &InsufficientDataError{
		Required: required,
		Actual:   actual,
		Name:     name,
		Message:  message,
	}
}

// NewInsufficientDataErrorf creates a new InsufficientDataError with a formatted message.
func NewInsufficientDataErrorf(required, actual int, name, format string, args ...any) *InsufficientDataError {
	return &InsufficientDataError{
		Required: required,
		Actual:   actual,
		Name:     name,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface.
func (e *InsufficientDataError) Error() string {
	return e.Message
}

// IsInsufficientDataError checks if an error is an InsufficientDataError.
// It uses errors.As to check the error chain.
func IsInsufficientDataError(err error) bool {
	var insufficientErr *InsufficientDataError

	return errors.As(err, &insufficientErr)
}
