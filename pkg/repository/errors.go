package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned by queries and mutations issued before a
	// successful Load. It is distinct from an empty result.
	ErrNotInitialized = errors.New("city index not initialized")

	// ErrAlreadyLoaded is returned by a second Load.
	ErrAlreadyLoaded = errors.New("city index already loaded")
)

// DecodeError reports a Load that failed while reading its source. The
// repository stays uninitialized.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to load cities from %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
