package store

import (
	"context"

	"github.com/google/uuid"

	"therapycrm/scheduling/internal/domain"
)

// ResourceStore resolves the bookable resources referenced by appointments.
// Every lookup returns ErrNotFound for an unknown id; callers must never
// treat an unknown resource as available.
type ResourceStore interface {
	TherapistByID(ctx context.Context, id uuid.UUID) (domain.Therapist, error)
	RoomByID(ctx context.Context, id uuid.UUID) (domain.Room, error)
	EquipmentByID(ctx context.Context, id uuid.UUID) (domain.Equipment, error)
}
