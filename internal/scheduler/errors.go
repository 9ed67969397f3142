// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scheduler

import "errors"

var (
	// ErrTopologyInconsistent marks a candidate whose source has no input.
	// The candidate is removed; the rebuild continues.
	ErrTopologyInconsistent = errors.New("topology inconsistent")

	// ErrListingsUnavailable aborts a rebuild; the previous store is kept.
	ErrListingsUnavailable = errors.New("listings unavailable")

	// ErrResourceExhausted is reported when a conflict cluster needs more
	// inputs than exist. It is resolved by dropping the lowest-ranked members.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrMalformedCandidate marks a listings entry missing required fields.
	ErrMalformedCandidate = errors.New("malformed candidate")

	// ErrUnknownProgram is returned by queries for ids not in the store.
	ErrUnknownProgram = errors.New("unknown program")
)
