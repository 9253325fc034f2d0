package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"therapycrm/scheduling/internal/domain"
)

// PatternFilter narrows FindByPattern. A nil From returns every linked
// appointment; otherwise only those starting at or after From.
type PatternFilter struct {
	From *time.Time
}

// AppointmentUpdate applies the non-nil fields to an existing row.
type AppointmentUpdate struct {
	Title     *string
	Notes     *string
	StartTime *time.Time
	EndTime   *time.Time
	Status    *domain.AppointmentStatus
	RoomID    *uuid.UUID
}

type AppointmentStore interface {
	// Create persists the appointment together with its equipment usages and
	// participants. It returns ErrConflict when the storage-level overlap
	// guard rejects the booking.
	Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)

	FindByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error)

	// FindOverlapping returns the appointments occupying the resource whose
	// half-open interval overlaps the given one, ordered by start time.
	// Which statuses count as occupying depends on the resource kind; a
	// non-nil excludeID removes that appointment from consideration.
	FindOverlapping(ctx context.Context, kind domain.ResourceKind, resourceID uuid.UUID, interval domain.TimeInterval, excludeID *uuid.UUID) ([]domain.Appointment, error)

	// FindByPattern returns the appointments linked to a recurrence pattern,
	// ordered by start time ascending.
	FindByPattern(ctx context.Context, patternID uuid.UUID, filter PatternFilter) ([]domain.Appointment, error)

	Update(ctx context.Context, id uuid.UUID, update AppointmentUpdate) (domain.Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteByPattern removes every appointment linked to the pattern and
	// reports how many rows went away.
	DeleteByPattern(ctx context.Context, patternID uuid.UUID) (int, error)

	// UnlinkPattern detaches every appointment from the pattern, clearing the
	// back-reference and the recurring flag so they become standalone.
	UnlinkPattern(ctx context.Context, patternID uuid.UUID) (int, error)

	ListForResource(ctx context.Context, kind domain.ResourceKind, resourceID uuid.UUID, window domain.TimeInterval) ([]domain.Appointment, error)
}
