package errors

import (
	"errors"
	"fmt"
)

// Common error types shared by the session packages
var (
	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrUnknownDriver = errors.New("unknown store driver")

	// Store errors
	ErrCorruptStore = errors.New("corrupt store")
	ErrWrongKey     = errors.New("store key does not match")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Join combines errors, dropping nils
func Join(errs ...error) error {
	return errors.Join(errs...)
}
