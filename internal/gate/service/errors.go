package service

import "errors"

var (
	// ErrInvalidCode is returned when a validation request carries no code.
	ErrInvalidCode = errors.New("code is required")

	// ErrNotAuthorized is returned when the caller has no active account or
	// no department.
	ErrNotAuthorized = errors.New("caller is not authorized")

	// ErrForbidden is returned when the caller may not see the record.
	ErrForbidden = errors.New("record belongs to another department")

	// ErrNotFound is returned by direct lookups by id.
	ErrNotFound = errors.New("not found")
)
