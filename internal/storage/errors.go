package storage

import "errors"

// ErrNotFound is returned when the requested entity does not exist.
// Workers treat it as a no-op, not a failure: the entity may have been
// deleted while its job was in flight.
var ErrNotFound = errors.New("storage: entity not found")

// ErrInvalidTransition is returned when a requested status change is not
// a legal edge of the processing state machine (e.g. resetting an entity
// that is not FAILED).
var ErrInvalidTransition = errors.New("storage: invalid status transition")

// ErrConflict is returned when a uniqueness constraint is violated,
// such as duplicate activity names for the same user.
var ErrConflict = errors.New("storage: constraint conflict")

// ErrEmptyContent is returned when an entity is created with empty content.
var ErrEmptyContent = errors.New("storage: content must not be empty")
