package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors:
//   - ErrNotFound: row does not exist
//   - ErrAlreadyUsed: a uniqueness constraint rejected the write
//   - ErrConflict: an optimistic write lost to a concurrent writer
//
// Validation failures never use sentinels; build them with pkg/domain-errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrAlreadyUsed = errors.New("already used")
	ErrConflict    = errors.New("conflict")
)
