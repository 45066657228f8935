package store

import "errors"

// ErrNotFound is returned when no archived note has the requested id.
var ErrNotFound = errors.New("note not found")
