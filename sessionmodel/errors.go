package sessionmodel

import (
	"errors"
	"fmt"
)

var (
	ErrNetworkUnreachable = errors.New("network unreachable")
	ErrRejected           = errors.New("rejected by server")
	ErrAuthExpired        = errors.New("authentication expired")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrPartialLoginWrite  = errors.New("login state partially written")
	ErrUnknown            = errors.New("unknown error")
	ErrInvalidInput       = errors.New("invalid input")
)

// NetworkError means no response reached the client. Retrying is up to the user.
type NetworkError struct {
	Op    string
	Cause error
}

func (e *NetworkError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Op, ErrNetworkUnreachable)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrNetworkUnreachable, e.Cause)
}

func (e *NetworkError) Is(target error) bool { return target == ErrNetworkUnreachable }
func (e *NetworkError) Unwrap() error        { return e.Cause }

// RejectedError is an explicit refusal from the server. Message is shown to
// the user as is.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (%d)", ErrRejected, e.Status)
	}
	return fmt.Sprintf("%s (%d): %s", ErrRejected, e.Status, e.Message)
}

func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// AuthExpiredError is returned for an authenticated request the server
// refused with an authentication failure. The local session has already been
// invalidated when the caller sees it.
type AuthExpiredError struct {
	Method string
	URL    string
	Status int
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("%s %s: %s (%d)", e.Method, e.URL, ErrAuthExpired, e.Status)
}

func (e *AuthExpiredError) Is(target error) bool { return target == ErrAuthExpired }

// StorageError reports a failed store or jar operation.
type StorageError struct {
	Op    string
	Key   string
	Cause error
}

func (e *StorageError) Error() string {
	msg := ErrStorageUnavailable.Error() + ": " + e.Op
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }
func (e *StorageError) Unwrap() error        { return e.Cause }

// PartialLoginWriteError means the server accepted the login but one of the
// local writes failed. The session was rolled back and must be treated as a
// failed login.
type PartialLoginWriteError struct {
	Step  string
	Cause error
}

func (e *PartialLoginWriteError) Error() string {
	return fmt.Sprintf("%s at %s: %v", ErrPartialLoginWrite, e.Step, e.Cause)
}

func (e *PartialLoginWriteError) Is(target error) bool { return target == ErrPartialLoginWrite }
func (e *PartialLoginWriteError) Unwrap() error        { return e.Cause }

// User facing copy for each failure class.
const (
	MessageNetworkUnreachable = "Cannot reach the server. Please check your network connection."
	MessageSignInAgain        = "Your session has expired. Please sign in again."
	MessageLoginIncomplete    = "Sign in could not be completed on this device. Please try again."
	MessageMissingInput       = "Please enter both your email and password."
	MessageGeneric            = "Something went wrong while signing in."
)

// UserMessage maps an error to the text the presentation layer shows.
// Server rejections are surfaced verbatim.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var rejected *RejectedError
	switch {
	case errors.As(err, &rejected):
		if rejected.Message != "" {
			return rejected.Message
		}
		return MessageGeneric
	case errors.Is(err, ErrNetworkUnreachable):
		return MessageNetworkUnreachable
	case errors.Is(err, ErrAuthExpired):
		return MessageSignInAgain
	case errors.Is(err, ErrPartialLoginWrite):
		return MessageLoginIncomplete
	case errors.Is(err, ErrInvalidInput):
		return MessageMissingInput
	default:
		return MessageGeneric
	}
}
