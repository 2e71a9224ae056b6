package errors

import (
	"errors"
	"fmt"
)

// Common error types for the PCO OAuth bridge
var (
	// Credential errors
	ErrNotFound         = errors.New("not found")
	ErrNotAuthenticated = errors.New("not authenticated")

	// Upstream errors
	ErrUpstreamUnauthorized = errors.New("upstream rejected the access token")

	// Refresh errors. Transient failures keep the stored credential;
	// invalid failures destroy it and force a new authorization.
	ErrRefreshInvalid   = errors.New("refresh token invalid or revoked")
	ErrRefreshTransient = errors.New("token refresh temporarily unavailable")

	// Identity assertion errors
	ErrVerification = errors.New("identity verification failed")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
