package replay

import (
	"errors"
)

// Error kinds. Every failure surfaced by the engine wraps exactly one of
// these so callers can classify it with errors.Is.
var (
	// ErrDatasetUnavailable: the backing file is missing or unreadable
	ErrDatasetUnavailable = errors.New("dataset unavailable")
	// ErrSchemaMismatch: the backing file does not carry the expected columns
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrQueryExecution: failure during filter/group/join/sort
	ErrQueryExecution = errors.New("query execution failure")
	// ErrSerialization: the result cannot be encoded to the wire format
	ErrSerialization = errors.New("serialization failure")
)

// Classify returns the error kind wrapped by err. Errors that carry no
// kind are reported as query execution failures.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDatasetUnavailable):
		return ErrDatasetUnavailable
	case errors.Is(err, ErrSchemaMismatch):
		return ErrSchemaMismatch
	case errors.Is(err, ErrSerialization):
		return ErrSerialization
	default:
		return ErrQueryExecution
	}
}

// KindName is the short label of an error kind used in logs and metrics
func KindName(err error) string {
	switch Classify(err) {
	case nil:
		return "none"
	case ErrDatasetUnavailable:
		return "dataset_unavailable"
	case ErrSchemaMismatch:
		return "schema_mismatch"
	case ErrSerialization:
		return "serialization"
	default:
		return "query_execution"
	}
}
