package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuery is returned for malformed specs: empty groups,
	// mistyped values, or a write without a filter
	ErrInvalidQuery = errors.New("invalid query")

	ErrMissingCollection = errors.New("missing collection")

	// ErrUnresolvedJoinTarget is returned when a nested join merges into an
	// alias that was not joined before it
	ErrUnresolvedJoinTarget = errors.New("unresolved join target")

	ErrStoreExecution = errors.New("store execution failed")

	// ErrDeserialization marks a document that could not be decoded. It is
	// logged and the document skipped, never returned to callers.
	ErrDeserialization = errors.New("deserialization failed")

	ErrNotFound = errors.New("not found")
)

// StoreError carries the message of a failed store round trip. Only the
// message is kept; store specific error details are not inspected.
type StoreError struct {
	Collection string
	Phase      string
	Msg        string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s on %s: %s", ErrStoreExecution, e.Phase, e.Collection, e.Msg)
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreExecution
}

func storeError(collection, phase string, err error) error {
	return &StoreError{Collection: collection, Phase: phase, Msg: err.Error()}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}

// Code returns a stable identifier for the error class, suitable as a
// translation key. Unknown errors map to "internal".
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidQuery):
		return "invalid_query"
	case errors.Is(err, ErrMissingCollection):
		return "missing_collection"
	case errors.Is(err, ErrUnresolvedJoinTarget):
		return "unresolved_join_target"
	case errors.Is(err, ErrStoreExecution):
		return "store_execution_failed"
	case errors.Is(err, ErrDeserialization):
		return "deserialization_failed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
