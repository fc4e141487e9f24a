// Package sentinel holds the store-level errors that services translate
// into domain codes.
package sentinel

import "errors"

var (
	// ErrNotFound: no row for the key.
	ErrNotFound = errors.New("not found")
	// ErrConflict: the write lost to a concurrent one, or its guard no longer holds.
	ErrConflict = errors.New("conflict")
)
