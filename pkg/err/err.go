package errprocess

import (
	"errors"
	"fmt"

	"civic_message_service/pkg/logger"
)

// Error taxonomy for the messaging core. Handlers map these onto transport
// status codes; everything else is treated as internal.
var (
	// ErrInvalidArgument malformed input, never retried
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotAuthorized caller is not a participant / not the sender
	ErrNotAuthorized = errors.New("not authorized")
	// ErrNotFound target missing or soft-deleted for the requester
	ErrNotFound = errors.New("not found")
	// ErrInternal durable store failure, caller should retry the whole call
	ErrInternal = errors.New("internal error")
)

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}

// InvalidArgument log and wrap ErrInvalidArgument
func InvalidArgument(msg string) error {
	logger.Log.Error(msg)
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}

// NotAuthorized log and wrap ErrNotAuthorized
func NotAuthorized(msg string) error {
	logger.Log.Error(msg)
	return fmt.Errorf("%w: %s", ErrNotAuthorized, msg)
}

// NotFound log and wrap ErrNotFound
func NotFound(msg string) error {
	logger.Log.Error(msg)
	return fmt.Errorf("%w: %s", ErrNotFound, msg)
}

// Internal log and wrap ErrInternal with the store error
func Internal(msg string, err error) error {
	logger.Log.Errorf(msg, err)
	return fmt.Errorf("%w: %s: %v", ErrInternal, msg, err)
}
