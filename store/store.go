// Package store defines the durable, encrypted key-value storage the session
// core persists credentials in. Implementations survive process restarts.
package store

import (
	"context"

	"github.com/jrsteele09/go-campus-session/sessionmodel"
)

// ErrUnavailable is wrapped by every failure a Store reports. Absent keys are
// not failures.
var ErrUnavailable = sessionmodel.ErrStorageUnavailable

// Store is the durable credential store.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set creates or replaces the value for key.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// Op names a store operation in errors and fault injection.
type Op string

const (
	OpGet    Op = "get"
	OpSet    Op = "set"
	OpRemove Op = "remove"
	OpOpen   Op = "open"
)

// Error indicates a store operation failed.
type Error struct {
	Op    Op
	Key   string
	Cause error
}

func (e *Error) Error() string {
	msg := string(e.Op) + " store"
	if e.Key != "" {
		msg += " key " + e.Key
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg + " (" + ErrUnavailable.Error() + ")"
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool { return target == ErrUnavailable }

// Wrap returns nil for a nil cause and an *Error otherwise.
func Wrap(op Op, key string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Op: op, Key: key, Cause: cause}
}
