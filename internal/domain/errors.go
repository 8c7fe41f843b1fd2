package domain

import "errors"

var (
	// ErrValidation marks input that can never be processed successfully.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a lookup against a missing record.
	ErrNotFound = errors.New("not found")
)
