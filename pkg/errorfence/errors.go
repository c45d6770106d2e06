package errorfence

import "errors"

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnknownBackend is returned for a store backend other than memory or redis
	ErrUnknownBackend = errors.New("unknown store backend")
)
