package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput flags malformed caller input.
	ErrInvalidInput = errors.New("invalid input")
)
