package limiter

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLimit is returned when a limit has a non-positive window or a negative max.
	ErrInvalidLimit = errors.New("limiter: invalid limit")
	// ErrInvalidRoute is returned when a route has no path or its pattern does not compile.
	ErrInvalidRoute = errors.New("limiter: invalid route")
	// ErrInvalidStorage is returned for an unknown storage_type.
	ErrInvalidStorage = errors.New("limiter: invalid storage type")
	// ErrRateLimited is the error form of a Deny decision, see Result.Err.
	// Stores and the Limiter never return it.
	ErrRateLimited = errors.New("limiter: rate limited")
)

// VerificationError reports that a store could not decide on a request
// because of an infrastructure fault (network, script, corrupt state).
// It is never used for a policy deny.
type VerificationError struct {
	Key string
	Err error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("limiter: verification failed for key %s: %v", e.Key, e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// verificationError wraps err unless it already is a *VerificationError.
func verificationError(key string, err error) error {
	var ve *VerificationError
	if errors.As(err, &ve) {
		return err
	}
	return &VerificationError{Key: key, Err: err}
}
