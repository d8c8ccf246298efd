package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate indicates a uniqueness constraint was violated.
	ErrDuplicate = errors.New("repository: duplicate record")
	// ErrEmptyFilter indicates a bulk operation was attempted without scope.
	ErrEmptyFilter = errors.New("repository: empty filter")
)
