package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrUnavailable wraps driver, connection, and timeout failures so callers can
// treat them uniformly as a transient store outage.
var ErrUnavailable = errors.New("store unavailable")

// ValidationError reports a rejected field with its allowed values (if the
// field is an enum). The store never writes a row that failed validation.
type ValidationError struct {
	Field   string
	Value   string
	Allowed []string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Allowed) > 0 {
		return fmt.Sprintf("invalid %s %q (allowed: %s)", e.Field, e.Value, strings.Join(e.Allowed, ", "))
	}
	if e.Message != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

// notFoundf builds an entity-specific ErrNotFound.
func notFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// unavailable wraps err as ErrUnavailable unless it already carries one of the
// store sentinel types.
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnavailable) || errors.As(err, &ve) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
