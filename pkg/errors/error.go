package errors

// ErrorCode represents a specific error code in the system.
type ErrorCode string

const (
	// GeneralInternalServerError represents a generic internal server error.
	GeneralInternalServerError ErrorCode = "general_internal_server_error"
	// GeneralBadRequestError represents a generic bad request error.
	GeneralBadRequestError ErrorCode = "general_bad_request_error"
	// GeneralNotFoundError represents a generic not found error.
	GeneralNotFoundError ErrorCode = "general_not_found_error"
	// GeneralRepositoryError represents a generic repository error.
	GeneralRepositoryError ErrorCode = "general_repository_error"

	// ErrStaleTick represents a tick rejected because its event time is not
	// newer than the last applied tick for the instrument.
	ErrStaleTick ErrorCode = "stale_tick"
	// ErrUnknownInstrument represents a lookup for an instrument that has
	// never been observed on the feed.
	ErrUnknownInstrument ErrorCode = "unknown_instrument"
	// ErrInvalidTick represents a tick that violates basic invariants
	// (non-positive price, negative volume).
	ErrInvalidTick ErrorCode = "invalid_tick"
	// ErrUnknownInterval represents an unsupported candle interval.
	ErrUnknownInterval ErrorCode = "unknown_interval"
	// ErrUnknownRule represents a lookup for an alert rule that does not exist.
	ErrUnknownRule ErrorCode = "unknown_rule"
	// ErrInvalidRule represents an alert rule that fails validation.
	ErrInvalidRule ErrorCode = "invalid_rule"
	// ErrSubscriberGone represents a send to a subscriber that has already
	// been evicted or closed.
	ErrSubscriberGone ErrorCode = "subscriber_gone"

	// RedisConfigError represents an error when the Redis configuration is invalid or nil.
	RedisConfigError ErrorCode = "redis_config_error"
	// RedisConnectionError represents an error when connecting to Redis.
	RedisConnectionError ErrorCode = "redis_connection_error"
	// RedisGetError represents an error when getting a value from Redis.
	RedisGetError ErrorCode = "redis_get_error"
	// RedisSetError represents an error when setting a value in Redis.
	RedisSetError ErrorCode = "redis_set_error"
)

// ErrorDetails represents detailed information about an error.
type ErrorDetails struct {
	// Message (required) is the user-defined error message.
	// E.g. "threshold price must be positive".
	Message string

	// Code (required) is the user-defined error code string.
	// E.g. "invalid_rule".
	Code string

	// Field (optional) is the related field the error occurred on, if any.
	Field string
}

// NewErrorDetails creates a new ErrorDetails struct with the given parameters.
func NewErrorDetails(message, code, field string) *ErrorDetails {
	return &ErrorDetails{
		Message: message,
		Code:    code,
		Field:   field,
	}
}

// Error is used to implement the Golang `error` interface.
func (e *ErrorDetails) Error() string {
	return e.Message
}

// ErrorCodeEquals checks whether a given `error` has a specific code.
func ErrorCodeEquals(err error, code string) bool {
	errDetails, ok := err.(*ErrorDetails)
	if !ok {
		return false
	}

	return errDetails.Code == code
}
