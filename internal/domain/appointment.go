package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled   AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed   AppointmentStatus = "confirmed"
	AppointmentStatusCompleted   AppointmentStatus = "completed"
	AppointmentStatusCancelled   AppointmentStatus = "cancelled"
	AppointmentStatusNoShow      AppointmentStatus = "no_show"
	AppointmentStatusRescheduled AppointmentStatus = "rescheduled"
)

func ValidStatus(s AppointmentStatus) bool {
	switch s {
	case AppointmentStatusScheduled,
		AppointmentStatusConfirmed,
		AppointmentStatusCompleted,
		AppointmentStatusCancelled,
		AppointmentStatusNoShow,
		AppointmentStatusRescheduled:
		return true
	}
	return false
}

// OccupyingStatuses returns the statuses that keep an appointment blocking
// the given resource kind. A therapist is released once a session is
// cancelled, marked no-show, or rescheduled; a room or equipment unit stays
// blocked by everything except cancellation.
func OccupyingStatuses(kind ResourceKind) []AppointmentStatus {
	if kind == ResourceKindTherapist {
		return []AppointmentStatus{
			AppointmentStatusScheduled,
			AppointmentStatusConfirmed,
			AppointmentStatusCompleted,
		}
	}
	return []AppointmentStatus{
		AppointmentStatusScheduled,
		AppointmentStatusConfirmed,
		AppointmentStatusCompleted,
		AppointmentStatusNoShow,
		AppointmentStatusRescheduled,
	}
}

func (s AppointmentStatus) Occupies(kind ResourceKind) bool {
	for _, o := range OccupyingStatuses(kind) {
		if s == o {
			return true
		}
	}
	return false
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID                  uuid.UUID         `bun:"id,pk,type:uuid"`
	TherapistID         uuid.UUID         `bun:"therapist_id,notnull,type:uuid"`
	RoomID              *uuid.UUID        `bun:"room_id,type:uuid"`
	ClientID            *uuid.UUID        `bun:"client_id,type:uuid"`
	LearnerID           *uuid.UUID        `bun:"learner_id,type:uuid"`
	Title               string            `bun:"title,notnull"`
	Notes               string            `bun:"notes"`
	StartTime           time.Time         `bun:"start_time,notnull"`
	EndTime             time.Time         `bun:"end_time,notnull"`
	Status              AppointmentStatus `bun:"status,notnull"`
	RecurrencePatternID *uuid.UUID        `bun:"recurrence_pattern_id,type:uuid"`
	IsRecurring         bool              `bun:"is_recurring,notnull"`
	IsGroup             bool              `bun:"is_group,notnull"`
	MaxParticipants     int               `bun:"max_participants,notnull"`
	CreatedAt           time.Time         `bun:"created_at,notnull"`
	UpdatedAt           time.Time         `bun:"updated_at,notnull"`

	EquipmentUsages []*EquipmentUsage `bun:"rel:has-many,join:id=appointment_id"`
	Participants    []*Participant    `bun:"rel:has-many,join:id=appointment_id"`
}

func (a *Appointment) Interval() TimeInterval {
	return TimeInterval{Start: a.StartTime, End: a.EndTime}
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.Status == "" {
			a.Status = AppointmentStatusScheduled
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

type EquipmentUsage struct {
	bun.BaseModel `bun:"table:appointment_equipment"`

	ID            uuid.UUID `bun:"id,pk,type:uuid"`
	AppointmentID uuid.UUID `bun:"appointment_id,notnull,type:uuid"`
	EquipmentID   uuid.UUID `bun:"equipment_id,notnull,type:uuid"`
	Quantity      int       `bun:"quantity,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

func (u *EquipmentUsage) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		if u.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			u.ID = id
		}
		if u.CreatedAt.IsZero() {
			u.CreatedAt = time.Now().UTC()
		}
	}
	return nil
}

type Participant struct {
	bun.BaseModel `bun:"table:appointment_participants"`

	ID            uuid.UUID `bun:"id,pk,type:uuid"`
	AppointmentID uuid.UUID `bun:"appointment_id,notnull,type:uuid"`
	LearnerID     uuid.UUID `bun:"learner_id,notnull,type:uuid"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

func (p *Participant) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		if p.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			p.ID = id
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}
	}
	return nil
}
