package ssdp

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeConfiguration indicates unusable settings (bad netmask, group, port).
	// Always fatal at startup.
	ErrTypeConfiguration ErrorType = iota
	// ErrTypeMalformed indicates a datagram without valid SSDP framing.
	ErrTypeMalformed
	// ErrTypeValidation indicates a well-formed message or record missing
	// required fields (M-SEARCH without ST/MX, record without USN).
	ErrTypeValidation
	// ErrTypeNetwork indicates a socket failure.
	ErrTypeNetwork
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeConfiguration:
		return "Configuration Error"
	case ErrTypeMalformed:
		return "Malformed Message"
	case ErrTypeValidation:
		return "Validation Error"
	case ErrTypeNetwork:
		return "Network Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Error is the error type returned by this package.
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(t ErrorType, msg string, err error) *Error {
	return &Error{Type: t, Message: msg, Err: err}
}

func hasType(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}

// IsConfigurationError reports whether err is a fatal configuration error.
func IsConfigurationError(err error) bool { return hasType(err, ErrTypeConfiguration) }

// IsMalformed reports whether err is a framing error from Parse.
func IsMalformed(err error) bool { return hasType(err, ErrTypeMalformed) }

// IsValidation reports whether err is a missing-field error.
func IsValidation(err error) bool { return hasType(err, ErrTypeValidation) }

// IsNetwork reports whether err is a socket error.
func IsNetwork(err error) bool { return hasType(err, ErrTypeNetwork) }
