package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors:
// - ErrNotFound: record does not exist in the store
// - ErrConflict: optimistic version check failed or the id already exists
// - ErrInvalidState: record is in the wrong state for the requested write
// - ErrUnavailable: backing service temporarily unavailable
//
// For caller-facing errors, use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
