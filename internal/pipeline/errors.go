package pipeline

import (
	"errors"
	"fmt"
)

type StorageReason string

const (
	StorageQuotaExceeded  StorageReason = "quota_exceeded"
	StorageTransientIO    StorageReason = "transient_io"
	StorageInvalidPayload StorageReason = "invalid_payload"
)

type ExtractionReason string

const (
	ExtractionUnavailable ExtractionReason = "upstream_unavailable"
	ExtractionRateLimited ExtractionReason = "upstream_rate_limited"
	ExtractionMalformed   ExtractionReason = "malformed_response"
	ExtractionTimeout     ExtractionReason = "timeout"
)

type PriceReason string

const (
	PriceSearchUnavailable PriceReason = "search_unavailable"
	PriceNoResults         PriceReason = "no_results"
	PriceParseFailed       PriceReason = "parse_failed"
)

// ValidationError rejects a batch before any external call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

type StorageError struct {
	Reason StorageReason
	Err    error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("storage error (%s)", e.Reason)
	}
	return fmt.Sprintf("storage error (%s): %v", e.Reason, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Retryable reports whether storing the same payload again may succeed.
func (e *StorageError) Retryable() bool {
	return e.Reason != StorageInvalidPayload
}

type ExtractionError struct {
	Reason ExtractionReason
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extraction error (%s)", e.Reason)
	}
	return fmt.Sprintf("extraction error (%s): %v", e.Reason, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// PriceLookupError is always absorbed by the pipeline. It only surfaces in logs.
type PriceLookupError struct {
	Reason PriceReason
	Err    error
}

func (e *PriceLookupError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("price lookup error (%s)", e.Reason)
	}
	return fmt.Sprintf("price lookup error (%s): %v", e.Reason, e.Err)
}

func (e *PriceLookupError) Unwrap() error { return e.Err }

type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist product: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ExtractionReasonOf returns the reason carried by err, or upstream_unavailable
// for errors that do not come from an extraction client.
func ExtractionReasonOf(err error) ExtractionReason {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Reason
	}
	return ExtractionUnavailable
}

// StorageReasonOf returns the reason carried by err, or transient_io.
func StorageReasonOf(err error) StorageReason {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Reason
	}
	return StorageTransientIO
}
