package domain

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// ErrSessionFailed marks a transport session that could not be opened.
	// It is the only failure that aborts a bulk run.
	ErrSessionFailed = errors.New("transport session failed")
)
