package repository

import "errors"

var (
	// ErrUnavailable marks any I/O failure of the shared store. Callers must
	// not assume partial success.
	ErrUnavailable = errors.New("storage unavailable")
	ErrNotFound    = errors.New("not found")
	ErrCorrupt     = errors.New("corrupt record")
)
