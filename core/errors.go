package core

import "errors"

var (
	// ErrMissingCredential is returned when the request carries no credential
	ErrMissingCredential = errors.New("missing credential")

	// ErrMalformedCredential is returned when the credential is not "Bearer <token>"
	ErrMalformedCredential = errors.New("invalid token format")

	// ErrInvalidCapacity is returned when a policy capacity is not positive
	ErrInvalidCapacity = errors.New("bucket capacity must be positive")

	// ErrInvalidRefillInterval is returned when a policy refill interval is below one millisecond
	ErrInvalidRefillInterval = errors.New("refill interval must be at least 1ms")

	// ErrUnknownExtractor is returned for an identity extractor name that is not supported
	ErrUnknownExtractor = errors.New("unknown identity extractor")
)
