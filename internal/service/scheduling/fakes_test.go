package scheduling

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"therapycrm/scheduling/internal/domain"
	"therapycrm/scheduling/internal/store"
)

var (
	testTherapistID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	testRoomID      = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	testEquipmentID = uuid.MustParse("00000000-0000-0000-0000-000000000003")
	testClientID    = uuid.MustParse("00000000-0000-0000-0000-000000000004")
	testPatternID   = uuid.MustParse("00000000-0000-0000-0000-000000000005")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAppointmentStore struct {
	createFn          func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	findByIDFn        func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	findOverlappingFn func(ctx context.Context, kind domain.ResourceKind, resourceID uuid.UUID, interval domain.TimeInterval, excludeID *uuid.UUID) ([]domain.Appointment, error)
	findByPatternFn   func(ctx context.Context, patternID uuid.UUID, filter store.PatternFilter) ([]domain.Appointment, error)
	updateFn          func(ctx context.Context, id uuid.UUID, update store.AppointmentUpdate) (domain.Appointment, error)
	deleteFn          func(ctx context.Context, id uuid.UUID) error
	deleteByPatternFn func(ctx context.Context, patternID uuid.UUID) (int, error)
	unlinkPatternFn   func(ctx context.Context, patternID uuid.UUID) (int, error)
	listForResourceFn func(ctx context.Context, kind domain.ResourceKind, resourceID uuid.UUID, window domain.TimeInterval) ([]domain.Appointment, error)
}

func (f *fakeAppointmentStore) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if f.createFn == nil {
		panic("Create not configured")
	}
	return f.createFn(ctx, appt)
}

func (f *fakeAppointmentStore) FindByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.findByIDFn == nil {
		panic("FindByID not configured")
	}
	return f.findByIDFn(ctx, id)
}

func (f *fakeAppointmentStore) FindOverlapping(ctx context.Context, kind domain.ResourceKind, resourceID uuid.UUID, interval domain.TimeInterval, excludeID *uuid.UUID) ([]domain.Appointment, error) {
	if f.findOverlappingFn == nil {
		panic("FindOverlapping not configured")
	}
	return f.findOverlappingFn(ctx, kind, resourceID, interval, excludeID)
}

func (f *fakeAppointmentStore) FindByPattern(ctx context.Context, patternID uuid.UUID, filter store.PatternFilter) ([]domain.Appointment, error) {
	if f.findByPatternFn == nil {
		panic("FindByPattern not configured")
	}
	return f.findByPatternFn(ctx, patternID, filter)
}

func (f *fakeAppointmentStore) Update(ctx context.Context, id uuid.UUID, update store.AppointmentUpdate) (domain.Appointment, error) {
	if f.updateFn == nil {
		panic("Update not configured")
	}
	return f.updateFn(ctx, id, update)
}

func (f *fakeAppointmentStore) Delete(ctx context.Context, id uuid.UUID) error {
	if f.deleteFn == nil {
		panic("Delete not configured")
	}
	return f.deleteFn(ctx, id)
}

func (f *fakeAppointmentStore) DeleteByPattern(ctx context.Context, patternID uuid.UUID) (int, error) {
	if f.deleteByPatternFn == nil {
		panic("DeleteByPattern not configured")
	}
	return f.deleteByPatternFn(ctx, patternID)
}

func (f *fakeAppointmentStore) UnlinkPattern(ctx context.Context, patternID uuid.UUID) (int, error) {
	if f.unlinkPatternFn == nil {
		panic("UnlinkPattern not configured")
	}
	return f.unlinkPatternFn(ctx, patternID)
}

func (f *fakeAppointmentStore) ListForResource(ctx context.Context, kind domain.ResourceKind, resourceID uuid.UUID, window domain.TimeInterval) ([]domain.Appointment, error) {
	if f.listForResourceFn == nil {
		panic("ListForResource not configured")
	}
	return f.listForResourceFn(ctx, kind, resourceID, window)
}

type fakePatternStore struct {
	createFn   func(ctx context.Context, pattern domain.RecurrencePattern) (domain.RecurrencePattern, error)
	findByIDFn func(ctx context.Context, id uuid.UUID) (domain.RecurrencePattern, error)
	updateFn   func(ctx context.Context, pattern domain.RecurrencePattern) (domain.RecurrencePattern, error)
	deleteFn   func(ctx context.Context, id uuid.UUID) error
}

func (f *fakePatternStore) Create(ctx context.Context, pattern domain.RecurrencePattern) (domain.RecurrencePattern, error) {
	if f.createFn == nil {
		panic("Create not configured")
	}
	return f.createFn(ctx, pattern)
}

func (f *fakePatternStore) FindByID(ctx context.Context, id uuid.UUID) (domain.RecurrencePattern, error) {
	if f.findByIDFn == nil {
		panic("FindByID not configured")
	}
	return f.findByIDFn(ctx, id)
}

func (f *fakePatternStore) Update(ctx context.Context, pattern domain.RecurrencePattern) (domain.RecurrencePattern, error) {
	if f.updateFn == nil {
		panic("Update not configured")
	}
	return f.updateFn(ctx, pattern)
}

func (f *fakePatternStore) Delete(ctx context.Context, id uuid.UUID) error {
	if f.deleteFn == nil {
		panic("Delete not configured")
	}
	return f.deleteFn(ctx, id)
}

type fakeResourceStore struct {
	therapistByIDFn func(ctx context.Context, id uuid.UUID) (domain.Therapist, error)
	roomByIDFn      func(ctx context.Context, id uuid.UUID) (domain.Room, error)
	equipmentByIDFn func(ctx context.Context, id uuid.UUID) (domain.Equipment, error)
}

func (f *fakeResourceStore) TherapistByID(ctx context.Context, id uuid.UUID) (domain.Therapist, error) {
	if f.therapistByIDFn == nil {
		panic("TherapistByID not configured")
	}
	return f.therapistByIDFn(ctx, id)
}

func (f *fakeResourceStore) RoomByID(ctx context.Context, id uuid.UUID) (domain.Room, error) {
	if f.roomByIDFn == nil {
		panic("RoomByID not configured")
	}
	return f.roomByIDFn(ctx, id)
}

func (f *fakeResourceStore) EquipmentByID(ctx context.Context, id uuid.UUID) (domain.Equipment, error) {
	if f.equipmentByIDFn == nil {
		panic("EquipmentByID not configured")
	}
	return f.equipmentByIDFn(ctx, id)
}

// knownResources resolves the shared test ids: an active therapist, a
// six-seat room, and five units of equipment. Anything else is unknown.
func knownResources() *fakeResourceStore {
	return &fakeResourceStore{
		therapistByIDFn: func(ctx context.Context, id uuid.UUID) (domain.Therapist, error) {
			if id != testTherapistID {
				return domain.Therapist{}, store.ErrNotFound
			}
			return domain.Therapist{ID: id, Name: "Dana Whitfield", Active: true}, nil
		},
		roomByIDFn: func(ctx context.Context, id uuid.UUID) (domain.Room, error) {
			if id != testRoomID {
				return domain.Room{}, store.ErrNotFound
			}
			return domain.Room{ID: id, Name: "Sensory Room A", Capacity: 6, Active: true}, nil
		},
		equipmentByIDFn: func(ctx context.Context, id uuid.UUID) (domain.Equipment, error) {
			if id != testEquipmentID {
				return domain.Equipment{}, store.ErrNotFound
			}
			return domain.Equipment{ID: id, Name: "Swing Set", TotalStock: 5, Available: true}, nil
		},
	}
}

func bookedAppointment(start, end time.Time) domain.Appointment {
	return domain.Appointment{
		ID:          uuid.MustParse("00000000-0000-0000-0000-0000000000aa"),
		TherapistID: testTherapistID,
		Title:       "Existing session",
		StartTime:   start,
		EndTime:     end,
		Status:      domain.AppointmentStatusScheduled,
	}
}

func baseTemplate(start, end time.Time) AppointmentTemplate {
	return AppointmentTemplate{
		TherapistID: testTherapistID,
		Title:       "Occupational therapy",
		StartTime:   start,
		EndTime:     end,
		Session:     IndividualSession{ClientID: testClientID},
	}
}
