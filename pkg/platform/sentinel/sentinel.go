package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors.
//
//   - ErrNotFound: no live entry exists for the key
//   - ErrOutOfRange: a positional lookup fell outside the sequence
//   - ErrInvalidState: the requested mutation violates a stored invariant
//   - ErrUnavailable: backing service temporarily unavailable
//
// Validation failures (bad input) use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrOutOfRange   = errors.New("out of range")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
