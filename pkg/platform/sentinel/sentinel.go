package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors with the right
// code for the caller.
//
// These represent factual states about stored rows, not validation failures:
//   - ErrNotFound: row does not exist
//   - ErrConflict: unique constraint hit (duplicate version, duplicate reference code)
//   - ErrInvalidState: the row's owning document is in the wrong state for the write
//   - ErrUnavailable: backing store temporarily unreachable
//
// For input validation use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
