package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"therapycrm/scheduling/internal/domain"
)

// ValidationError marks client-correctable input problems: malformed fields,
// inverted intervals, past-dated bookings, invalid recurrence rules.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// NotFoundError reports a referenced entity that does not exist. An unknown
// resource is never treated as available.
type NotFoundError struct {
	Kind string
	ID   uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func notFoundError(kind string, id uuid.UUID) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// ConflictError reports a double-booking. The message names the contended
// resource and the overlapping window so the caller can offer another slot.
type ConflictError struct {
	ResourceKind domain.ResourceKind
	ResourceName string
	Start        time.Time
	End          time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q is already booked from %s to %s",
		e.ResourceKind, e.ResourceName,
		e.Start.UTC().Format(time.RFC3339), e.End.UTC().Format(time.RFC3339))
}

// CapacityError reports insufficient equipment stock or a group session over
// its participant limit.
type CapacityError struct {
	Kind      string
	Requested int
	Available int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s capacity exceeded: requested %d, available %d",
		e.Kind, e.Requested, e.Available)
}
