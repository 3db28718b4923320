package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Stage identifies the pipeline stage where a failure occurred.
type Stage string

// Pipeline stages.
const (
	StageResolve  Stage = "resolve"
	StageLoad     Stage = "load"
	StageDiscover Stage = "discover"
	StageEntry    Stage = "entry"
	StageTask     Stage = "task"
	StageCommit   Stage = "commit"
)

// Code classifies a driver failure.
type Code string

// Driver failure codes.
const (
	CodeUnknownFormat       Code = "unknown_format"
	CodeNotFound            Code = "not_found"
	CodeLoadError           Code = "load_error"
	CodeNoEntryPoint        Code = "no_entry_point"
	CodeAmbiguousEntryPoint Code = "ambiguous_entry_point"
	CodeFetchError          Code = "fetch_error"
	CodeExecutionError      Code = "execution_error"
	CodePolicyDenied        Code = "policy_denied"
	CodeCancelled           Code = "cancelled"
)

// DriverError is the driver's structured error type. Every failure surfaced
// by the pipeline carries a code, the stage it occurred in, and optional
// structured details.
type DriverError struct {
	// Code classifies the failure.
	Code Code

	// Stage is the pipeline stage the failure occurred in.
	Stage Stage

	// Message is the human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error

	// Details carries structured context (source, format, candidates, ...).
	Details map[string]any
}

// Error implements the error interface.
func (e *DriverError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DriverError) Unwrap() error { return e.Err }

// WithDetail attaches one structured detail and returns the error.
func (e *DriverError) WithDetail(key string, value any) *DriverError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// NewUnknownFormatError reports that no codec could be resolved for an input
// descriptor.
func NewUnknownFormatError(descriptor string, err error) *DriverError {
	return &DriverError{
		Code:    CodeUnknownFormat,
		Stage:   StageResolve,
		Message: fmt.Sprintf("cannot resolve a format for %q", descriptor),
		Err:     err,
		Details: map[string]any{"descriptor": descriptor},
	}
}

// NewNotFoundError reports a missing local source.
func NewNotFoundError(source string, err error) *DriverError {
	return &DriverError{
		Code:    CodeNotFound,
		Stage:   StageLoad,
		Message: fmt.Sprintf("source %q does not exist", source),
		Err:     err,
		Details: map[string]any{"source": source},
	}
}

// NewLoadError reports a decode failure, naming the format that rejected the
// input bytes.
func NewLoadError(formatID, source string, err error) *DriverError {
	return &DriverError{
		Code:    CodeLoadError,
		Stage:   StageLoad,
		Message: fmt.Sprintf("failed to load %q as %s", source, formatID),
		Err:     err,
		Details: map[string]any{"source": source, "format": formatID},
	}
}

// NewNoEntryPointError reports that no function carries the entry marker.
func NewNoEntryPointError(marker string) *DriverError {
	return &DriverError{
		Code:    CodeNoEntryPoint,
		Stage:   StageDiscover,
		Message: fmt.Sprintf("document declares no function with the @fn(%s) marker", marker),
		Details: map[string]any{"marker": marker},
	}
}

// NewAmbiguousEntryPointError reports multiple marked candidates, naming
// them so the caller can disambiguate with an explicit entry-point selector.
func NewAmbiguousEntryPointError(marker string, candidates []string) *DriverError {
	return &DriverError{
		Code:    CodeAmbiguousEntryPoint,
		Stage:   StageDiscover,
		Message: fmt.Sprintf("multiple @fn(%s) candidates: %s", marker, strings.Join(candidates, ", ")),
		Details: map[string]any{"marker": marker, "candidates": candidates},
	}
}

// NewFetchError reports a remote retrieval failure.
func NewFetchError(url string, err error) *DriverError {
	return &DriverError{
		Code:    CodeFetchError,
		Stage:   StageLoad,
		Message: fmt.Sprintf("failed to fetch %q", url),
		Err:     err,
		Details: map[string]any{"url": url},
	}
}

// NewExecutionError reports a failure inside executing document logic.
func NewExecutionError(stage Stage, name string, err error) *DriverError {
	msg := "execution failed"
	if name != "" {
		msg = fmt.Sprintf("execution of %s failed", name)
	}
	return &DriverError{
		Code:    CodeExecutionError,
		Stage:   stage,
		Message: msg,
		Err:     err,
	}
}

// NewPolicyDeniedError reports a capability request blocked by policy.
func NewPolicyDeniedError(capability string, denials []string) *DriverError {
	return &DriverError{
		Code:    CodePolicyDenied,
		Stage:   StageTask,
		Message: strings.Join(denials, "; "),
		Details: map[string]any{"capability": capability},
	}
}

// NewCancelledError reports that the invocation context was cancelled.
func NewCancelledError(stage Stage, err error) *DriverError {
	return &DriverError{
		Code:    CodeCancelled,
		Stage:   stage,
		Message: "invocation cancelled",
		Err:     err,
	}
}

// CodeOf extracts the failure code from an error chain. Errors that are not
// DriverErrors map to CodeExecutionError.
func CodeOf(err error) Code {
	var de *DriverError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeExecutionError
}

// asDriverError normalizes an arbitrary failure into a DriverError at the
// given stage, preserving structured errors that already carry one.
func asDriverError(stage Stage, name string, err error) *DriverError {
	var de *DriverError
	if errors.As(err, &de) {
		return de
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewCancelledError(stage, err)
	}
	return NewExecutionError(stage, name, err)
}
