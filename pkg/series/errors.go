package series

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or missing required request input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DataUnavailableError reports that no dataset exists for a well-formed request.
type DataUnavailableError struct {
	EntityID  string
	TimeRange TimeRange
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("no %s dataset for entity %q (not generated yet)", e.TimeRange, e.EntityID)
}

// AggregationInvariantError indicates malformed input reached the batch pipeline.
// It is a bug signal and aborts regeneration.
type AggregationInvariantError struct {
	Stage  string
	Index  int
	Reason string
}

func (e *AggregationInvariantError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s aggregation invariant violated at index %d: %s", e.Stage, e.Index, e.Reason)
	}
	return fmt.Sprintf("%s aggregation invariant violated: %s", e.Stage, e.Reason)
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsDataUnavailable reports whether err is, or wraps, a DataUnavailableError.
func IsDataUnavailable(err error) bool {
	var target *DataUnavailableError
	return errors.As(err, &target)
}

// IsAggregationInvariant reports whether err is, or wraps, an AggregationInvariantError.
func IsAggregationInvariant(err error) bool {
	var target *AggregationInvariantError
	return errors.As(err, &target)
}

// MaxEntityIDLength bounds entity ids so they stay usable as storage keys.
const MaxEntityIDLength = 256

// ValidateEntityID rejects empty, oversized or control-character ids.
func ValidateEntityID(id string) error {
	if id == "" {
		return &ValidationError{Field: "entityId", Reason: "must not be empty"}
	}
	if len(id) > MaxEntityIDLength {
		return &ValidationError{Field: "entityId", Reason: fmt.Sprintf("too long (%d chars, max %d)", len(id), MaxEntityIDLength)}
	}
	for _, c := range id {
		if c < 0x20 || c == 0x7f {
			return &ValidationError{Field: "entityId", Reason: "contains control characters"}
		}
	}
	return nil
}
