package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidQuery indicates a malformed filter, sort, or pagination request.
	// Queries failing with this error are never retried.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrMappingNotFound indicates no index mapping is registered for an entity type
	ErrMappingNotFound = errors.New("index mapping not found")

	// ErrUnknownEntityType indicates no document builder exists for an entity type
	ErrUnknownEntityType = errors.New("unknown entity type")

	// ErrSweepInProgress indicates a reindex sweep for the same reference is already running
	ErrSweepInProgress = errors.New("reindex sweep already in progress")

	// ErrServiceUnavailable indicates the index backend could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")
)
