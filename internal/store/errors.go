package store

import "errors"

var (
	// ErrNotFound is returned when a requested row does not exist in the store.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an insert collides with an existing
	// key hash. Practically unreachable given the key entropy, but it must
	// surface as a typed error rather than a crash or silent overwrite.
	ErrConflict = errors.New("key hash already exists")
)
