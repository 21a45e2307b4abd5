package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrPreconditionFailed is returned by CompareAndUpdate when the stored
	// ride no longer matches the expected state.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate entity")
)
