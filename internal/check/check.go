// Package check defines the extension point for verification routines.
//
// A Check is registered once at startup and executed on demand with a
// caller-supplied parameter map. It sees the outside world only through
// Context, which can resolve a connection name to a connection string.
package check

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Status is the business outcome of a check run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusFailure Status = "failure"
)

// ParseStatus accepts any letter case.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(s)); st {
	case StatusSuccess, StatusWarning, StatusFailure:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// ParameterDefinition is advisory metadata about one input of a check.
// The framework does not enforce it.
type ParameterDefinition struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Default     *string `json:"default"`
}

// Result is the outcome of one execution.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func Succeeded(message string) Result {
	return Result{Status: StatusSuccess, Message: message}
}

func Warned(message string) Result {
	return Result{Status: StatusWarning, Message: message}
}

func Failed(message string) Result {
	return Result{Status: StatusFailure, Message: message}
}

// WithDetails returns a copy of r carrying details.
func (r Result) WithDetails(details any) Result {
	r.Details = details
	return r
}

// Context is the capability handed to a check during execution.
type Context interface {
	ConnectionString(ctx context.Context, name string) (string, error)
}

// Check is one registered verification routine.
type Check interface {
	// ID is unique within a registry and keys persisted results.
	ID() string
	Description() string
	Parameters() []ParameterDefinition
	// Execute returns exactly one of a Result or an *Error. It must validate
	// its own parameters.
	Execute(ctx context.Context, cc Context, params Params) (Result, error)
}

// ErrorKind classifies why a check could not produce a Result.
type ErrorKind int

const (
	KindConfig ErrorKind = iota + 1
	KindExecution
)

var (
	ErrConfig    = errors.New("configuration error")
	ErrExecution = errors.New("execution error")
)

// Error is a check's failure to complete, as opposed to a Result with
// StatusFailure, which is a completed run with a bad outcome.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Kind == KindConfig {
		return "configuration error: " + e.Detail
	}
	return "execution error: " + e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrConfig:
		return e.Kind == KindConfig
	case ErrExecution:
		return e.Kind == KindExecution
	}
	return false
}

// ConfigError reports a missing or invalid parameter or setup problem.
func ConfigError(detail string) *Error {
	return &Error{Kind: KindConfig, Detail: detail}
}

func ConfigErrorf(format string, args ...any) *Error {
	return ConfigError(fmt.Sprintf(format, args...))
}

// ExecutionError wraps err, which may be nil.
func ExecutionError(detail string, err error) *Error {
	if err != nil {
		detail = fmt.Sprintf("%s: %v", detail, err)
	}
	return &Error{Kind: KindExecution, Detail: detail, Err: err}
}

func ExecutionErrorf(format string, args ...any) *Error {
	err := fmt.Errorf(format, args...)
	return &Error{Kind: KindExecution, Detail: err.Error(), Err: errors.Unwrap(err)}
}
