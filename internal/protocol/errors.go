package protocol

import "errors"

// Sentinel errors returned by engine operations. Failed calls leave the
// engine's prior state unchanged.
var (
	// ErrInvalidInput indicates a missing or empty required argument.
	ErrInvalidInput = errors.New("protocol: invalid input")

	// ErrTableFull indicates the state or transition table is at capacity.
	ErrTableFull = errors.New("protocol: table full")

	// ErrMissingRule indicates a pattern registration without a match rule.
	ErrMissingRule = errors.New("protocol: missing match rule")

	// ErrValidationFailed indicates the message could not be validated:
	// the canonical form was truncated, or no accepting pattern matched
	// where the node's governance state required one.
	ErrValidationFailed = errors.New("protocol: validation failed")

	// ErrZeroTrustViolation indicates zero-trust enforcement denied the
	// message because no accepting pattern matched.
	ErrZeroTrustViolation = errors.New("protocol: zero trust violation")

	// ErrUnsupportedFormat indicates an unknown specification export format.
	ErrUnsupportedFormat = errors.New("protocol: unsupported export format")
)
