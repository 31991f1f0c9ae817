package booking

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidInput covers malformed dates, unknown ids, and
	// non-positive durations. Callers should not retry.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSlotUnavailable means the requested slot failed the authoritative
	// conflict check at commit time. The caller should re-query
	// availability and let the user pick again.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrBusy means the per-schedule serialization boundary could not be
	// entered within the bounded wait. Safe to retry with backoff.
	ErrBusy = errors.New("schedule busy")

	// ErrInvalidTransition is returned for status changes the appointment
	// state machine does not allow, such as cancelling a completed
	// appointment.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ConflictError carries the interval that blocked a booking so callers can
// react without parsing text.
type ConflictError struct {
	Reason        string
	ConflictStart time.Time
	ConflictEnd   time.Time
}

func (e *ConflictError) Error() string {
	if e.ConflictStart.IsZero() {
		return fmt.Sprintf("slot unavailable: %s", e.Reason)
	}
	return fmt.Sprintf("slot unavailable: %s (conflicts with %s - %s)",
		e.Reason,
		e.ConflictStart.Format(time.RFC3339),
		e.ConflictEnd.Format(time.RFC3339))
}

func (e *ConflictError) Unwrap() error { return ErrSlotUnavailable }

// BusyError carries a retry-after hint for transient serialization
// failures.
type BusyError struct {
	RetryAfter time.Duration
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("schedule busy, retry after %s", e.RetryAfter)
}

func (e *BusyError) Unwrap() error { return ErrBusy }
