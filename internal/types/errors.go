package types

import (
	"errors"
	"fmt"
)

// Error kinds shared by every engine component. Wrap them with fmt.Errorf
// and %w; callers test with errors.Is.
var (
	// ErrNotFound marks an unknown turn, branch, block, version or layer id.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks rejected input: empty content, bad priority, bad filter.
	ErrValidation = errors.New("validation failed")

	// ErrExternalService marks a failure inside memory, embedding or provider calls.
	ErrExternalService = errors.New("external service failure")
)

// NotFound returns an ErrNotFound naming the kind and id.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// Invalid returns an ErrValidation with a formatted reason.
func Invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

// External wraps err from the named service as ErrExternalService.
// A nil err yields nil.
func External(service string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", service, ErrExternalService, err)
}
