package resource

import "errors"

// Errors returned by Service. Callers match them with errors.Is.
var (
	// ErrUnknownResource indicates a name outside the allow-list.
	ErrUnknownResource = errors.New("unsupported resource")
	// ErrInvalidBody indicates a request payload with the wrong shape or value types.
	ErrInvalidBody = errors.New("invalid request body")
	// ErrMissingID indicates an operation on a list resource without an item id.
	ErrMissingID = errors.New("id is required")
	// ErrSingletonDelete indicates an attempt to delete a singleton resource.
	ErrSingletonDelete = errors.New("settings cannot be deleted")
	// ErrNotFound indicates no item with the requested id exists.
	ErrNotFound = errors.New("item not found")
)
