package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"therapycrm/scheduling/internal/domain"
	"therapycrm/scheduling/internal/store"
)

func newBookingService(appts *fakeAppointmentStore, resources *fakeResourceStore) *BookingService {
	checker := NewConflictChecker(appts, resources)
	svc := NewBookingService(appts, resources, checker, discardLogger(), nil)
	svc.now = func() time.Time { return time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC) }
	return svc
}

func TestBookAppointment_RejectsPastStart(t *testing.T) {
	svc := newBookingService(&fakeAppointmentStore{}, &fakeResourceStore{})

	start := time.Date(2026, 6, 30, 10, 0, 0, 0, time.UTC)
	_, err := svc.BookAppointment(context.Background(), baseTemplate(start, start.Add(time.Hour)))
	if err == nil {
		t.Fatalf("expected error")
	}
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if vErr.Error() != "start_time must not be in the past" {
		t.Fatalf("error = %q", vErr.Error())
	}
}

func TestBookAppointment_TherapistDoubleBooked(t *testing.T) {
	start := time.Date(2026, 7, 6, 10, 0, 0, 0, time.UTC)
	busy := bookedAppointment(start, start.Add(time.Hour))

	// Create stays unconfigured: a conflicted booking must never reach the
	// store.
	appts := &fakeAppointmentStore{
		findOverlappingFn: func(ctx context.Context, kind domain.ResourceKind, resourceID uuid.UUID, interval domain.TimeInterval, excludeID *uuid.UUID) ([]domain.Appointment, error) {
			return []domain.Appointment{busy}, nil
		},
	}
	svc := newBookingService(appts, knownResources())

	_, err := svc.BookAppointment(context.Background(), baseTemplate(start.Add(30*time.Minute), start.Add(90*time.Minute)))
	if err == nil {
		t.Fatalf("expected error")
	}
	var cErr *ConflictError
	if !errors.As(err, &cErr) {
		t.Fatalf("error type = %T, want *ConflictError", err)
	}
	if cErr.ResourceKind != domain.ResourceKindTherapist {
		t.Fatalf("resource kind = %q, want therapist", cErr.ResourceKind)
	}
	if cErr.ResourceName != "Dana Whitfield" {
		t.Fatalf("resource name = %q", cErr.ResourceName)
	}
	if !cErr.Start.Equal(busy.StartTime) || !cErr.End.Equal(busy.EndTime) {
		t.Fatalf("conflict window = %v..%v, want the existing booking", cErr.Start, cErr.End)
	}
	want := `therapist "Dana Whitfield" is already booked from 2026-07-06T10:00:00Z to 2026-07-06T11:00:00Z`
	if cErr.Error() != want {
		t.Fatalf("error = %q, want %q", cErr.Error(), want)
	}
}

func TestBookAppointment_InactiveTherapist(t *testing.T) {
	resources := knownResources()
	resources.therapistByIDFn = func(ctx context.Context, id uuid.UUID) (domain.Therapist, error) {
		return domain.Therapist{ID: id, Name: "Dana Whitfield", Active: false}, nil
	}
	svc := newBookingService(&fakeAppointmentStore{}, resources)

	start := time.Date(2026, 7, 6, 10, 0, 0, 0, time.UTC)
	_, err := svc.BookAppointment(context.Background(), baseTemplate(start, start.Add(time.Hour)))
	if err == nil {
		t.Fatalf("expected error")
	}
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if vErr.Error() != "therapist is not active" {
		t.Fatalf("error = %q", vErr.Error())
	}
}

func TestBookAppointment_EquipmentShortfall(t *testing.T) {
	start := time.Date(2026, 7, 6, 10, 0, 0, 0, time.UTC)

	appts := &fakeAppointmentStore{
		findOverlappingFn: func(ctx context.Context, kind domain.ResourceKind, resourceID uuid.UUID, interval domain.TimeInterval, excludeID *uuid.UUID) ([]domain.Appointment, error) {
			if kind == domain.ResourceKindEquipment {
				return []domain.Appointment{
					{EquipmentUsages: []*domain.EquipmentUsage{{EquipmentID: testEquipmentID, Quantity: 3}}},
				}, nil
			}
			return nil, nil
		},
	}
	svc := newBookingService(appts, knownResources())

	template := baseTemplate(start, start.Add(time.Hour))
	template.Equipment = []EquipmentRequest{{EquipmentID: testEquipmentID, Quantity: 4}}

	_, err := svc.BookAppointment(context.Background(), template)
	if err == nil {
		t.Fatalf("expected error")
	}
	var capErr *CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("error type = %T, want *CapacityError", err)
	}
	if capErr.Kind != "Swing Set" {
		t.Fatalf("kind = %q", capErr.Kind)
	}
	if capErr.Requested != 4 || capErr.Available != 2 {
		t.Fatalf("requested/available = %d/%d, want 4/2", capErr.Requested, capErr.Available)
	}
}

func TestBookAppointment_GroupLargerThanRoom(t *testing.T) {
	start := time.Date(2026, 7, 6, 10, 0, 0, 0, time.UTC)

	appts := &fakeAppointmentStore{
		findOverlappingFn: func(ctx context.Context, kind domain.ResourceKind, resourceID uuid.UUID, interval domain.TimeInterval, excludeID *uuid.UUID) ([]domain.Appointment, error) {
			return nil, nil
		},
	}
	svc := newBookingService(appts, knownResources())

	roomID := testRoomID
	template := baseTemplate(start, start.Add(time.Hour))
	template.RoomID = &roomID
	template.Session = GroupSession{MaxParticipants: 8}

	_, err := svc.BookAppointment(context.Background(), template)
	if err == nil {
		t.Fatalf("expected error")
	}
	var capErr *CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("error type = %T, want *CapacityError", err)
	}
	if capErr.Kind != "Sensory Room A" {
		t.Fatalf("kind = %q", capErr.Kind)
	}
	if capErr.Requested != 8 || capErr.Available != 6 {
		t.Fatalf("requested/available = %d/%d, want 8/6", capErr.Requested, capErr.Available)
	}
}

func TestBookAppointment_StorageGuardWins(t *testing.T) {
	start := time.Date(2026, 7, 6, 10, 0, 0, 0, time.UTC)
	busy := bookedAppointment(start, start.Add(time.Hour))

	// The pre-check sees a free slot; the insert hits the overlap guard and
	// the retry of the lookup reveals the concurrent winner.
	therapistChecks := 0
	appts := &fakeAppointmentStore{
		findOverlappingFn: func(ctx context.Context, kind domain.ResourceKind, resourceID uuid.UUID, interval domain.TimeInterval, excludeID *uuid.UUID) ([]domain.Appointment, error) {
			if kind == domain.ResourceKindTherapist {
				therapistChecks++
				if therapistChecks > 1 {
					return []domain.Appointment{busy}, nil
				}
			}
			return nil, nil
		},
		createFn: func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
			return domain.Appointment{}, store.ErrConflict
		},
	}
	svc := newBookingService(appts, knownResources())

	_, err := svc.BookAppointment(context.Background(), baseTemplate(start, start.Add(time.Hour)))
	if err == nil {
		t.Fatalf("expected error")
	}
	var cErr *ConflictError
	if !errors.As(err, &cErr) {
		t.Fatalf("error type = %T, want *ConflictError", err)
	}
	if !cErr.Start.Equal(busy.StartTime) {
		t.Fatalf("conflict start = %v, want %v", cErr.Start, busy.StartTime)
	}
}

func TestReschedule_ExcludesOwnSlot(t *testing.T) {
	start := time.Date(2026, 7, 6, 10, 0, 0, 0, time.UTC)
	appt := bookedAppointment(start, start.Add(time.Hour))
	clientID := testClientID
	appt.ClientID = &clientID

	// Shifting within its own window must not conflict with itself: the
	// store contract drops the excluded row, anything else still collides.
	var gotExclude *uuid.UUID
	appts := &fakeAppointmentStore{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
			if id != appt.ID {
				return domain.Appointment{}, store.ErrNotFound
			}
			return appt, nil
		},
		findOverlappingFn: func(ctx context.Context, kind domain.ResourceKind, resourceID uuid.UUID, interval domain.TimeInterval, excludeID *uuid.UUID) ([]domain.Appointment, error) {
			gotExclude = excludeID
			if excludeID != nil && *excludeID == appt.ID {
				return nil, nil
			}
			return []domain.Appointment{appt}, nil
		},
		updateFn: func(ctx context.Context, id uuid.UUID, update store.AppointmentUpdate) (domain.Appointment, error) {
			updated := appt
			if update.StartTime != nil {
				updated.StartTime = *update.StartTime
			}
			if update.EndTime != nil {
				updated.EndTime = *update.EndTime
			}
			return updated, nil
		},
	}
	svc := newBookingService(appts, knownResources())

	newStart := start.Add(30 * time.Minute)
	updated, err := svc.Reschedule(context.Background(), appt.ID, newStart, newStart.Add(time.Hour))
	if err != nil {
		t.Fatalf("Reschedule error: %v", err)
	}
	if gotExclude == nil || *gotExclude != appt.ID {
		t.Fatalf("excludeID = %v, want %s", gotExclude, appt.ID)
	}
	if !updated.StartTime.Equal(newStart) {
		t.Fatalf("start = %v, want %v", updated.StartTime, newStart)
	}
}

func TestReschedule_UnknownAppointment(t *testing.T) {
	appts := &fakeAppointmentStore{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
			return domain.Appointment{}, store.ErrNotFound
		},
	}
	svc := newBookingService(appts, knownResources())

	start := time.Date(2026, 7, 6, 10, 0, 0, 0, time.UTC)
	_, err := svc.Reschedule(context.Background(), uuid.MustParse("00000000-0000-0000-0000-000000000099"), start, start.Add(time.Hour))
	if err == nil {
		t.Fatalf("expected error")
	}
	var nfErr *NotFoundError
	if !errors.As(err, &nfErr) {
		t.Fatalf("error type = %T, want *NotFoundError", err)
	}
	if nfErr.Kind != "appointment" {
		t.Fatalf("kind = %q, want %q", nfErr.Kind, "appointment")
	}
}

func TestUpdateStatus_RejectsUnknownStatus(t *testing.T) {
	svc := newBookingService(&fakeAppointmentStore{}, &fakeResourceStore{})

	_, err := svc.UpdateStatus(context.Background(), testPatternID, domain.AppointmentStatus("archived"))
	if err == nil {
		t.Fatalf("expected error")
	}
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
}

func TestUpdateStatus_AppliesStatus(t *testing.T) {
	start := time.Date(2026, 7, 6, 10, 0, 0, 0, time.UTC)
	appt := bookedAppointment(start, start.Add(time.Hour))

	var gotUpdate store.AppointmentUpdate
	appts := &fakeAppointmentStore{
		updateFn: func(ctx context.Context, id uuid.UUID, update store.AppointmentUpdate) (domain.Appointment, error) {
			gotUpdate = update
			updated := appt
			updated.Status = *update.Status
			return updated, nil
		},
	}
	svc := newBookingService(appts, knownResources())

	updated, err := svc.UpdateStatus(context.Background(), appt.ID, domain.AppointmentStatusCancelled)
	if err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	if gotUpdate.Status == nil || *gotUpdate.Status != domain.AppointmentStatusCancelled {
		t.Fatalf("update status = %v, want cancelled", gotUpdate.Status)
	}
	if updated.Status != domain.AppointmentStatusCancelled {
		t.Fatalf("status = %q, want cancelled", updated.Status)
	}
}

func TestUpdateStatus_MapsMissingAppointment(t *testing.T) {
	appts := &fakeAppointmentStore{
		updateFn: func(ctx context.Context, id uuid.UUID, update store.AppointmentUpdate) (domain.Appointment, error) {
			return domain.Appointment{}, store.ErrNotFound
		},
	}
	svc := newBookingService(appts, knownResources())

	_, err := svc.UpdateStatus(context.Background(), testPatternID, domain.AppointmentStatusConfirmed)
	if err == nil {
		t.Fatalf("expected error")
	}
	var nfErr *NotFoundError
	if !errors.As(err, &nfErr) {
		t.Fatalf("error type = %T, want *NotFoundError", err)
	}
}

func TestListForResource_RejectsInvertedWindow(t *testing.T) {
	svc := newBookingService(&fakeAppointmentStore{}, &fakeResourceStore{})

	start := time.Date(2026, 7, 6, 10, 0, 0, 0, time.UTC)
	_, err := svc.ListForResource(context.Background(), domain.ResourceKindTherapist, testTherapistID, domain.NewInterval(start, start.Add(-time.Hour)))
	if err == nil {
		t.Fatalf("expected error")
	}
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}

	_, err = svc.ListForResource(context.Background(), domain.ResourceKind("vehicle"), testTherapistID, domain.NewInterval(start, start.Add(time.Hour)))
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
}
