package store

import "errors"

// Sentinel errors returned by repositories. Callers match them with errors.Is.
var (
	// ErrConflict means the slot overlaps an active appointment of the same staff member.
	ErrConflict = errors.New("appointment overlaps an existing booking")
	ErrNotFound = errors.New("appointment not found")
	// ErrIdempotencyConflict means an idempotency key was reused for a different booking.
	ErrIdempotencyConflict = errors.New("idempotency key reused with different booking")
	ErrUnknownParty        = errors.New("unknown client or staff member")
)
