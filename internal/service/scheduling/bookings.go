package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"therapycrm/scheduling/internal/domain"
	"therapycrm/scheduling/internal/observability/metrics"
	"therapycrm/scheduling/internal/store"
)

// BookingService handles the standalone appointment lifecycle. Unlike series
// expansion, a standalone booking is all-or-nothing: any conflict rejects
// the whole request with an error naming the contended resource.
type BookingService struct {
	appointments store.AppointmentStore
	resources    store.ResourceStore
	checker      *ConflictChecker
	log          *slog.Logger
	metrics      *metrics.SchedulingMetrics

	now func() time.Time
}

func NewBookingService(appointments store.AppointmentStore, resources store.ResourceStore, checker *ConflictChecker, log *slog.Logger, m *metrics.SchedulingMetrics) *BookingService {
	if log == nil {
		log = slog.Default()
	}
	return &BookingService{
		appointments: appointments,
		resources:    resources,
		checker:      checker,
		log:          log.With(slog.String("component", "scheduling.bookings")),
		metrics:      m,
		now:          time.Now,
	}
}

func (b *BookingService) BookAppointment(ctx context.Context, template AppointmentTemplate) (domain.Appointment, error) {
	if err := validateTemplate(template); err != nil {
		b.metrics.ObserveBooking("rejected")
		return domain.Appointment{}, err
	}
	if template.StartTime.UTC().Before(b.now().UTC()) {
		b.metrics.ObserveBooking("rejected")
		return domain.Appointment{}, validationError("start_time must not be in the past")
	}

	interval := template.interval()
	if err := b.checkResources(ctx, template, interval, nil); err != nil {
		b.metrics.ObserveBooking("rejected")
		return domain.Appointment{}, err
	}

	created, err := b.appointments.Create(ctx, appointmentFromTemplate(template, nil, interval))
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// The storage-level overlap guard caught a concurrent booking
			// that passed the pre-check.
			b.metrics.ObserveConflict(string(domain.ResourceKindTherapist))
			b.metrics.ObserveBooking("rejected")
			return domain.Appointment{}, b.therapistConflict(ctx, template.TherapistID, interval)
		}
		b.metrics.ObserveBooking("failed")
		return domain.Appointment{}, fmt.Errorf("create appointment: %w", err)
	}

	b.metrics.ObserveBooking("created")
	b.log.InfoContext(ctx, "appointment booked",
		slog.String("appointment_id", created.ID.String()),
		slog.String("therapist_id", created.TherapistID.String()),
		slog.Time("start_time", created.StartTime),
		slog.Time("end_time", created.EndTime),
	)
	return created, nil
}

// Reschedule moves an appointment to a new interval. Conflict checks exclude
// the appointment itself so it does not collide with its own current slot.
func (b *BookingService) Reschedule(ctx context.Context, appointmentID uuid.UUID, newStart, newEnd time.Time) (domain.Appointment, error) {
	appt, err := b.appointments.FindByID(ctx, appointmentID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Appointment{}, notFoundError("appointment", appointmentID)
	}
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("load appointment: %w", err)
	}

	interval := domain.NewInterval(newStart, newEnd)
	if !interval.Valid() {
		return domain.Appointment{}, validationError("end_time must be after start_time")
	}

	excludeID := appt.ID
	if err := b.checkResources(ctx, templateFromAppointment(appt), interval, &excludeID); err != nil {
		return domain.Appointment{}, err
	}

	updated, err := b.appointments.Update(ctx, appt.ID, store.AppointmentUpdate{
		StartTime: &interval.Start,
		EndTime:   &interval.End,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			b.metrics.ObserveConflict(string(domain.ResourceKindTherapist))
			return domain.Appointment{}, b.therapistConflict(ctx, appt.TherapistID, interval)
		}
		return domain.Appointment{}, fmt.Errorf("update appointment: %w", err)
	}

	b.log.InfoContext(ctx, "appointment rescheduled",
		slog.String("appointment_id", updated.ID.String()),
		slog.Time("start_time", updated.StartTime),
		slog.Time("end_time", updated.EndTime),
	)
	return updated, nil
}

// UpdateStatus moves an appointment through its lifecycle. A cancelled or
// completed appointment leaves future conflict windows by status alone; the
// row is never deleted here.
func (b *BookingService) UpdateStatus(ctx context.Context, appointmentID uuid.UUID, status domain.AppointmentStatus) (domain.Appointment, error) {
	if !domain.ValidStatus(status) {
		return domain.Appointment{}, validationError("unknown appointment status")
	}

	updated, err := b.appointments.Update(ctx, appointmentID, store.AppointmentUpdate{Status: &status})
	if errors.Is(err, store.ErrNotFound) {
		return domain.Appointment{}, notFoundError("appointment", appointmentID)
	}
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("update appointment status: %w", err)
	}

	b.log.InfoContext(ctx, "appointment status updated",
		slog.String("appointment_id", appointmentID.String()),
		slog.String("status", string(status)),
	)
	return updated, nil
}

func (b *BookingService) ListForResource(ctx context.Context, kind domain.ResourceKind, resourceID uuid.UUID, window domain.TimeInterval) ([]domain.Appointment, error) {
	if !domain.ValidResourceKind(kind) {
		return nil, validationError("unknown resource kind")
	}
	if !window.Valid() {
		return nil, validationError("window_end must be after window_start")
	}

	appts, err := b.appointments.ListForResource(ctx, kind, resourceID, window)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

func (b *BookingService) checkResources(ctx context.Context, template AppointmentTemplate, interval domain.TimeInterval, excludeID *uuid.UUID) error {
	therapist, err := b.resources.TherapistByID(ctx, template.TherapistID)
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError("therapist", template.TherapistID)
	}
	if err != nil {
		return fmt.Errorf("look up therapist: %w", err)
	}
	if !therapist.Active {
		return validationError("therapist is not active")
	}

	conflict, err := b.checker.FindConflict(ctx, domain.ResourceKindTherapist, therapist.ID, interval, excludeID)
	if err != nil {
		return err
	}
	if conflict != nil {
		b.metrics.ObserveConflict(string(domain.ResourceKindTherapist))
		return &ConflictError{
			ResourceKind: domain.ResourceKindTherapist,
			ResourceName: therapist.Name,
			Start:        conflict.StartTime,
			End:          conflict.EndTime,
		}
	}

	if template.RoomID != nil {
		room, err := b.resources.RoomByID(ctx, *template.RoomID)
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError("room", *template.RoomID)
		}
		if err != nil {
			return fmt.Errorf("look up room: %w", err)
		}
		if !room.Active {
			return validationError("room is not active")
		}
		if group, ok := template.Session.(GroupSession); ok && group.MaxParticipants > room.Capacity {
			return &CapacityError{Kind: room.Name, Requested: group.MaxParticipants, Available: room.Capacity}
		}

		conflict, err := b.checker.FindConflict(ctx, domain.ResourceKindRoom, room.ID, interval, excludeID)
		if err != nil {
			return err
		}
		if conflict != nil {
			b.metrics.ObserveConflict(string(domain.ResourceKindRoom))
			return &ConflictError{
				ResourceKind: domain.ResourceKindRoom,
				ResourceName: room.Name,
				Start:        conflict.StartTime,
				End:          conflict.EndTime,
			}
		}
	}

	for _, req := range template.Equipment {
		eq, err := b.resources.EquipmentByID(ctx, req.EquipmentID)
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError("equipment", req.EquipmentID)
		}
		if err != nil {
			return fmt.Errorf("look up equipment: %w", err)
		}

		remaining, err := b.checker.AvailableUnits(ctx, req.EquipmentID, interval, excludeID)
		if err != nil {
			return err
		}
		if remaining < req.Quantity {
			b.metrics.ObserveConflict(string(domain.ResourceKindEquipment))
			return &CapacityError{Kind: eq.Name, Requested: req.Quantity, Available: remaining}
		}
	}
	return nil
}

// therapistConflict builds the user-facing error for a booking the storage
// guard rejected. The conflicting row is fetched for its window; when it
// cannot be loaded the requested window still names the contention.
func (b *BookingService) therapistConflict(ctx context.Context, therapistID uuid.UUID, interval domain.TimeInterval) error {
	name := "therapist"
	if therapist, err := b.resources.TherapistByID(ctx, therapistID); err == nil {
		name = therapist.Name
	}
	start, end := interval.Start, interval.End
	if conflict, err := b.checker.FindConflict(ctx, domain.ResourceKindTherapist, therapistID, interval, nil); err == nil && conflict != nil {
		start, end = conflict.StartTime, conflict.EndTime
	}
	return &ConflictError{
		ResourceKind: domain.ResourceKindTherapist,
		ResourceName: name,
		Start:        start,
		End:          end,
	}
}
