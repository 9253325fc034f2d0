package scheduling

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"therapycrm/scheduling/internal/domain"
)

// AppointmentTemplate carries the caller-supplied shape of a booking: the
// shared fields plus at most one session detail. Individual and group
// sessions need different sub-fields, so the detail is a closed interface
// rather than one struct full of mutually exclusive optionals.
type AppointmentTemplate struct {
	TherapistID uuid.UUID
	RoomID      *uuid.UUID
	Title       string
	Notes       string
	StartTime   time.Time
	EndTime     time.Time
	Session     SessionDetail
	Equipment   []EquipmentRequest
}

type EquipmentRequest struct {
	EquipmentID uuid.UUID
	Quantity    int
}

// SessionDetail is implemented by IndividualSession and GroupSession only.
type SessionDetail interface {
	sessionDetail()
}

type IndividualSession struct {
	ClientID  uuid.UUID
	LearnerID *uuid.UUID
}

func (IndividualSession) sessionDetail() {}

type GroupSession struct {
	MaxParticipants int
	LearnerIDs      []uuid.UUID
}

func (GroupSession) sessionDetail() {}

func (t AppointmentTemplate) interval() domain.TimeInterval {
	return domain.NewInterval(t.StartTime, t.EndTime)
}

func validateTemplate(t AppointmentTemplate) error {
	if t.TherapistID == uuid.Nil {
		return validationError("therapist_id is required")
	}
	if strings.TrimSpace(t.Title) == "" {
		return validationError("title is required")
	}
	if t.StartTime.IsZero() || t.EndTime.IsZero() {
		return validationError("start_time and end_time are required")
	}
	if !t.interval().Valid() {
		return validationError("end_time must be after start_time")
	}

	for _, req := range t.Equipment {
		if req.EquipmentID == uuid.Nil {
			return validationError("equipment_id is required")
		}
		if req.Quantity < 1 {
			return validationError("equipment quantity must be at least 1")
		}
	}

	switch sess := t.Session.(type) {
	case nil:
	case IndividualSession:
		if sess.ClientID == uuid.Nil {
			return validationError("client_id is required")
		}
	case GroupSession:
		if sess.MaxParticipants < 1 {
			return validationError("max_participants must be at least 1")
		}
		if len(sess.LearnerIDs) > sess.MaxParticipants {
			return &CapacityError{
				Kind:      "group session",
				Requested: len(sess.LearnerIDs),
				Available: sess.MaxParticipants,
			}
		}
	}
	return nil
}

func appointmentFromTemplate(t AppointmentTemplate, patternID *uuid.UUID, interval domain.TimeInterval) domain.Appointment {
	appt := domain.Appointment{
		TherapistID: t.TherapistID,
		RoomID:      t.RoomID,
		Title:       strings.TrimSpace(t.Title),
		Notes:       t.Notes,
		StartTime:   interval.Start,
		EndTime:     interval.End,
		Status:      domain.AppointmentStatusScheduled,
	}
	if patternID != nil {
		id := *patternID
		appt.RecurrencePatternID = &id
		appt.IsRecurring = true
	}

	switch sess := t.Session.(type) {
	case IndividualSession:
		clientID := sess.ClientID
		appt.ClientID = &clientID
		appt.LearnerID = sess.LearnerID
	case GroupSession:
		appt.IsGroup = true
		appt.MaxParticipants = sess.MaxParticipants
		for _, learnerID := range sess.LearnerIDs {
			appt.Participants = append(appt.Participants, &domain.Participant{LearnerID: learnerID})
		}
	}

	for _, req := range t.Equipment {
		appt.EquipmentUsages = append(appt.EquipmentUsages, &domain.EquipmentUsage{
			EquipmentID: req.EquipmentID,
			Quantity:    req.Quantity,
		})
	}
	return appt
}

// templateFromAppointment rebuilds the creation-time template from a stored
// appointment, used when a series is regenerated. Participants and equipment
// come back from the loaded relations.
func templateFromAppointment(appt domain.Appointment) AppointmentTemplate {
	t := AppointmentTemplate{
		TherapistID: appt.TherapistID,
		RoomID:      appt.RoomID,
		Title:       appt.Title,
		Notes:       appt.Notes,
		StartTime:   appt.StartTime,
		EndTime:     appt.EndTime,
	}
	for _, usage := range appt.EquipmentUsages {
		t.Equipment = append(t.Equipment, EquipmentRequest{
			EquipmentID: usage.EquipmentID,
			Quantity:    usage.Quantity,
		})
	}
	switch {
	case appt.IsGroup:
		sess := GroupSession{MaxParticipants: appt.MaxParticipants}
		for _, p := range appt.Participants {
			sess.LearnerIDs = append(sess.LearnerIDs, p.LearnerID)
		}
		t.Session = sess
	case appt.ClientID != nil:
		t.Session = IndividualSession{ClientID: *appt.ClientID, LearnerID: appt.LearnerID}
	}
	return t
}
