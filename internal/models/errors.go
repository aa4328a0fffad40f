package models

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType int

const (
	ErrNotFound ErrorType = iota
	ErrMalformedPackage
	ErrConfigSyntax
	ErrInspectionFailure
	ErrInspectionTimeout
	ErrInternalCheck
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrNotFound:
		return "NotFound"
	case ErrMalformedPackage:
		return "MalformedPackage"
	case ErrConfigSyntax:
		return "ConfigSyntax"
	case ErrInspectionFailure:
		return "InspectionFailure"
	case ErrInspectionTimeout:
		return "InspectionTimeout"
	case ErrInternalCheck:
		return "InternalCheck"
	default:
		return "Unknown"
	}
}

// CheckError represents an error raised while checking a target
type CheckError struct {
	Type   ErrorType
	Target string
	Err    error
}

// Error implements the error interface
func (e *CheckError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Target, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Type, e.Err)
}

// Unwrap returns the wrapped error
func (e *CheckError) Unwrap() error {
	return e.Err
}

// IsType reports whether err is (or wraps) a CheckError of the given type.
func IsType(err error, t ErrorType) bool {
	var ce *CheckError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Type == t
}
