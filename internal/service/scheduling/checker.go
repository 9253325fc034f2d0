package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"therapycrm/scheduling/internal/domain"
	"therapycrm/scheduling/internal/store"
)

// ConflictChecker answers availability questions against persisted
// appointments. It only queries. Two concurrent bookings can both pass a
// check before either insert lands, so the storage layer keeps the
// authoritative overlap guard (the exclusion constraint installed by the
// migrations); this checker exists for fast pre-checks and user-facing
// error detail.
type ConflictChecker struct {
	appointments store.AppointmentStore
	resources    store.ResourceStore
}

func NewConflictChecker(appointments store.AppointmentStore, resources store.ResourceStore) *ConflictChecker {
	return &ConflictChecker{appointments: appointments, resources: resources}
}

// HasConflict reports whether the resource already has an occupying
// appointment overlapping the interval. A non-nil excludeID removes that
// appointment from consideration, so a reschedule does not collide with
// itself.
func (c *ConflictChecker) HasConflict(ctx context.Context, kind domain.ResourceKind, resourceID uuid.UUID, interval domain.TimeInterval, excludeID *uuid.UUID) (bool, error) {
	conflict, err := c.FindConflict(ctx, kind, resourceID, interval, excludeID)
	if err != nil {
		return false, err
	}
	return conflict != nil, nil
}

// FindConflict returns the first overlapping appointment in store order, or
// nil when the slot is free.
func (c *ConflictChecker) FindConflict(ctx context.Context, kind domain.ResourceKind, resourceID uuid.UUID, interval domain.TimeInterval, excludeID *uuid.UUID) (*domain.Appointment, error) {
	if !domain.ValidResourceKind(kind) {
		return nil, validationError("unknown resource kind")
	}
	if !interval.Valid() {
		return nil, validationError("end time must be after start time")
	}
	if err := c.ensureResourceExists(ctx, kind, resourceID); err != nil {
		return nil, err
	}

	overlapping, err := c.appointments.FindOverlapping(ctx, kind, resourceID, interval, excludeID)
	if err != nil {
		return nil, fmt.Errorf("find overlapping appointments: %w", err)
	}
	if len(overlapping) == 0 {
		return nil, nil
	}
	first := overlapping[0]
	return &first, nil
}

// CheckEquipmentAvailability reports whether quantity units can be reserved
// over the interval. It fails closed: an equipment unit marked unavailable,
// or total stock below the requested quantity, is a refusal regardless of
// bookings.
func (c *ConflictChecker) CheckEquipmentAvailability(ctx context.Context, equipmentID uuid.UUID, interval domain.TimeInterval, quantity int, excludeID *uuid.UUID) (bool, error) {
	if quantity < 1 {
		return false, validationError("quantity must be at least 1")
	}
	if !interval.Valid() {
		return false, validationError("end time must be after start time")
	}

	eq, err := c.equipmentByID(ctx, equipmentID)
	if err != nil {
		return false, err
	}
	if !eq.Available || eq.TotalStock < quantity {
		return false, nil
	}

	used, err := c.unitsInUse(ctx, equipmentID, interval, excludeID)
	if err != nil {
		return false, err
	}
	return eq.TotalStock-used >= quantity, nil
}

// AvailableUnits returns how many units of the equipment remain free over
// the interval: total stock minus units held by overlapping bookings. An
// unavailable unit has zero free units.
func (c *ConflictChecker) AvailableUnits(ctx context.Context, equipmentID uuid.UUID, interval domain.TimeInterval, excludeID *uuid.UUID) (int, error) {
	if !interval.Valid() {
		return 0, validationError("end time must be after start time")
	}

	eq, err := c.equipmentByID(ctx, equipmentID)
	if err != nil {
		return 0, err
	}
	if !eq.Available {
		return 0, nil
	}

	used, err := c.unitsInUse(ctx, equipmentID, interval, excludeID)
	if err != nil {
		return 0, err
	}
	remaining := eq.TotalStock - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (c *ConflictChecker) unitsInUse(ctx context.Context, equipmentID uuid.UUID, interval domain.TimeInterval, excludeID *uuid.UUID) (int, error) {
	overlapping, err := c.appointments.FindOverlapping(ctx, domain.ResourceKindEquipment, equipmentID, interval, excludeID)
	if err != nil {
		return 0, fmt.Errorf("find overlapping equipment bookings: %w", err)
	}

	used := 0
	for _, appt := range overlapping {
		for _, usage := range appt.EquipmentUsages {
			if usage.EquipmentID == equipmentID {
				used += usage.Quantity
			}
		}
	}
	return used, nil
}

func (c *ConflictChecker) ensureResourceExists(ctx context.Context, kind domain.ResourceKind, id uuid.UUID) error {
	var err error
	switch kind {
	case domain.ResourceKindTherapist:
		_, err = c.resources.TherapistByID(ctx, id)
	case domain.ResourceKindRoom:
		_, err = c.resources.RoomByID(ctx, id)
	case domain.ResourceKindEquipment:
		_, err = c.resources.EquipmentByID(ctx, id)
	}
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError(string(kind), id)
	}
	if err != nil {
		return fmt.Errorf("look up %s: %w", kind, err)
	}
	return nil
}

func (c *ConflictChecker) equipmentByID(ctx context.Context, id uuid.UUID) (domain.Equipment, error) {
	eq, err := c.resources.EquipmentByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Equipment{}, notFoundError("equipment", id)
	}
	if err != nil {
		return domain.Equipment{}, fmt.Errorf("look up equipment: %w", err)
	}
	return eq, nil
}
