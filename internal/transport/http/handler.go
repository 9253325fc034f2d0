// Package http exposes the scheduling services over a JSON REST API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"therapycrm/scheduling/internal/domain"
	"therapycrm/scheduling/internal/service/scheduling"
)

type Handler struct {
	bookings bookingService
	series   seriesService
	checker  availabilityChecker
	log      *slog.Logger
}

type bookingService interface {
	BookAppointment(ctx context.Context, template scheduling.AppointmentTemplate) (domain.Appointment, error)
	Reschedule(ctx context.Context, appointmentID uuid.UUID, newStart, newEnd time.Time) (domain.Appointment, error)
	UpdateStatus(ctx context.Context, appointmentID uuid.UUID, status domain.AppointmentStatus) (domain.Appointment, error)
	ListForResource(ctx context.Context, kind domain.ResourceKind, resourceID uuid.UUID, window domain.TimeInterval) ([]domain.Appointment, error)
}

type seriesService interface {
	CreateSeries(ctx context.Context, template scheduling.AppointmentTemplate, rule scheduling.RuleInput) (scheduling.SeriesResult, error)
	UpdatePattern(ctx context.Context, patternID uuid.UUID, changes scheduling.RuleChanges, regenerateFuture bool) (scheduling.SeriesResult, error)
	DeletePattern(ctx context.Context, patternID uuid.UUID, cascade bool) error
}

type availabilityChecker interface {
	FindConflict(ctx context.Context, kind domain.ResourceKind, resourceID uuid.UUID, interval domain.TimeInterval, excludeID *uuid.UUID) (*domain.Appointment, error)
	CheckEquipmentAvailability(ctx context.Context, equipmentID uuid.UUID, interval domain.TimeInterval, quantity int, excludeID *uuid.UUID) (bool, error)
	AvailableUnits(ctx context.Context, equipmentID uuid.UUID, interval domain.TimeInterval, excludeID *uuid.UUID) (int, error)
}

func NewHandler(bookings bookingService, series seriesService, checker availabilityChecker, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		bookings: bookings,
		series:   series,
		checker:  checker,
		log:      log.With(slog.String("component", "http.scheduling")),
	}
}

type sessionPayload struct {
	Type            string   `json:"type"`
	ClientID        string   `json:"client_id,omitempty"`
	LearnerID       string   `json:"learner_id,omitempty"`
	MaxParticipants int      `json:"max_participants,omitempty"`
	LearnerIDs      []string `json:"learner_ids,omitempty"`
}

type equipmentRequestPayload struct {
	EquipmentID string `json:"equipment_id"`
	Quantity    int    `json:"quantity"`
}

type appointmentTemplatePayload struct {
	TherapistID string                    `json:"therapist_id"`
	RoomID      string                    `json:"room_id,omitempty"`
	Title       string                    `json:"title"`
	Notes       string                    `json:"notes,omitempty"`
	StartTime   time.Time                 `json:"start_time"`
	EndTime     time.Time                 `json:"end_time"`
	Session     *sessionPayload           `json:"session,omitempty"`
	Equipment   []equipmentRequestPayload `json:"equipment,omitempty"`
}

type recurrenceRulePayload struct {
	Frequency       string     `json:"frequency"`
	Interval        int        `json:"interval,omitempty"`
	DaysOfWeek      []string   `json:"days_of_week,omitempty"`
	StartDate       time.Time  `json:"start_date"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	OccurrenceCount *int       `json:"occurrence_count,omitempty"`
}

type appointmentResponse struct {
	ID                  string                    `json:"id"`
	TherapistID         string                    `json:"therapist_id"`
	RoomID              *string                   `json:"room_id,omitempty"`
	ClientID            *string                   `json:"client_id,omitempty"`
	Title               string                    `json:"title"`
	Notes               string                    `json:"notes,omitempty"`
	StartTime           time.Time                 `json:"start_time"`
	EndTime             time.Time                 `json:"end_time"`
	Status              string                    `json:"status"`
	RecurrencePatternID *string                   `json:"recurrence_pattern_id,omitempty"`
	IsRecurring         bool                      `json:"is_recurring"`
	IsGroup             bool                      `json:"is_group,omitempty"`
	MaxParticipants     int                       `json:"max_participants,omitempty"`
	Equipment           []equipmentRequestPayload `json:"equipment,omitempty"`
	LearnerIDs          []string                  `json:"learner_ids,omitempty"`
}

type skippedOccurrencePayload struct {
	StartTime time.Time `json:"start_time"`
	Reason    string    `json:"reason"`
}

type seriesResponse struct {
	PatternID      string                     `json:"pattern_id"`
	AppointmentIDs []string                   `json:"appointment_ids"`
	Skipped        []skippedOccurrencePayload `json:"skipped,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// CreateAppointment books a single appointment.
// POST /v1/appointments
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("op", "CreateAppointment"))

	var req appointmentTemplatePayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_json"))
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	template, err := templateFromPayload(req)
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	appt, err := h.bookings.BookAppointment(r.Context(), template)
	if err != nil {
		h.writeServiceError(w, log, err)
		return
	}

	log.Info(
		"appointment created",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("therapist_id", appt.TherapistID.String()),
		slog.Time("start_time", appt.StartTime),
		slog.Time("end_time", appt.EndTime),
	)
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

type rescheduleRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// RescheduleAppointment moves an appointment to a new slot.
// POST /v1/appointments/{appointmentID}/reschedule
func (h *Handler) RescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("op", "RescheduleAppointment"))

	appointmentID, ok := h.parseID(w, log, chi.URLParam(r, "appointmentID"), "appointment_id")
	if !ok {
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_json"))
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	appt, err := h.bookings.Reschedule(r.Context(), appointmentID, req.StartTime, req.EndTime)
	if err != nil {
		h.writeServiceError(w, log, err)
		return
	}

	log.Info(
		"appointment rescheduled",
		slog.String("appointment_id", appt.ID.String()),
		slog.Time("start_time", appt.StartTime),
		slog.Time("end_time", appt.EndTime),
	)
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateAppointmentStatus transitions an appointment's lifecycle status.
// POST /v1/appointments/{appointmentID}/status
func (h *Handler) UpdateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("op", "UpdateAppointmentStatus"))

	appointmentID, ok := h.parseID(w, log, chi.URLParam(r, "appointmentID"), "appointment_id")
	if !ok {
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_json"))
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	appt, err := h.bookings.UpdateStatus(r.Context(), appointmentID, domain.AppointmentStatus(req.Status))
	if err != nil {
		h.writeServiceError(w, log, err)
		return
	}

	log.Info(
		"appointment status updated",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("status", string(appt.Status)),
	)
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// ListResourceAppointments returns a resource's appointments in a window.
// GET /v1/resources/{kind}/{resourceID}/appointments?from=...&to=...
func (h *Handler) ListResourceAppointments(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("op", "ListResourceAppointments"))

	kind := domain.ResourceKind(chi.URLParam(r, "kind"))
	resourceID, ok := h.parseID(w, log, chi.URLParam(r, "resourceID"), "resource_id")
	if !ok {
		return
	}
	window, ok := h.parseWindow(w, log, r, "from", "to")
	if !ok {
		return
	}

	appts, err := h.bookings.ListForResource(r.Context(), kind, resourceID, window)
	if err != nil {
		h.writeServiceError(w, log, err)
		return
	}

	out := make([]appointmentResponse, 0, len(appts))
	for _, appt := range appts {
		out = append(out, toAppointmentResponse(appt))
	}
	writeJSON(w, http.StatusOK, out)
}

type conflictResponse struct {
	HasConflict bool                 `json:"has_conflict"`
	Conflict    *appointmentResponse `json:"conflict,omitempty"`
}

// CheckResourceConflict probes a resource for an overlapping appointment.
// GET /v1/resources/{kind}/{resourceID}/conflict?start=...&end=...
func (h *Handler) CheckResourceConflict(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("op", "CheckResourceConflict"))

	kind := domain.ResourceKind(chi.URLParam(r, "kind"))
	resourceID, ok := h.parseID(w, log, chi.URLParam(r, "resourceID"), "resource_id")
	if !ok {
		return
	}
	window, ok := h.parseWindow(w, log, r, "start", "end")
	if !ok {
		return
	}
	excludeID, ok := h.parseOptionalID(w, log, r.URL.Query().Get("exclude_appointment_id"), "exclude_appointment_id")
	if !ok {
		return
	}

	conflict, err := h.checker.FindConflict(r.Context(), kind, resourceID, window, excludeID)
	if err != nil {
		h.writeServiceError(w, log, err)
		return
	}

	resp := conflictResponse{HasConflict: conflict != nil}
	if conflict != nil {
		appt := toAppointmentResponse(*conflict)
		resp.Conflict = &appt
	}
	writeJSON(w, http.StatusOK, resp)
}

type equipmentAvailabilityResponse struct {
	Available      bool `json:"available"`
	AvailableUnits int  `json:"available_units"`
}

// CheckEquipmentAvailability reports whether enough units are free.
// GET /v1/equipment/{equipmentID}/availability?start=...&end=...&quantity=N
func (h *Handler) CheckEquipmentAvailability(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("op", "CheckEquipmentAvailability"))

	equipmentID, ok := h.parseID(w, log, chi.URLParam(r, "equipmentID"), "equipment_id")
	if !ok {
		return
	}
	window, ok := h.parseWindow(w, log, r, "start", "end")
	if !ok {
		return
	}

	quantity := 1
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			log.Warn("invalid request", slog.String("reason", "bad_quantity"))
			writeError(w, http.StatusBadRequest, "quantity must be an integer")
			return
		}
		quantity = n
	}
	excludeID, ok := h.parseOptionalID(w, log, r.URL.Query().Get("exclude_appointment_id"), "exclude_appointment_id")
	if !ok {
		return
	}

	available, err := h.checker.CheckEquipmentAvailability(r.Context(), equipmentID, window, quantity, excludeID)
	if err != nil {
		h.writeServiceError(w, log, err)
		return
	}
	units, err := h.checker.AvailableUnits(r.Context(), equipmentID, window, excludeID)
	if err != nil {
		h.writeServiceError(w, log, err)
		return
	}

	writeJSON(w, http.StatusOK, equipmentAvailabilityResponse{
		Available:      available,
		AvailableUnits: units,
	})
}

type createSeriesRequest struct {
	Template appointmentTemplatePayload `json:"template"`
	Rule     recurrenceRulePayload      `json:"rule"`
}

// CreateSeries books a recurring series of appointments.
// POST /v1/appointment-series
func (h *Handler) CreateSeries(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("op", "CreateSeries"))

	var req createSeriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_json"))
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	template, err := templateFromPayload(req.Template)
	if err != nil {
		log.Warn("invalid request", slog.Any("err", err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rule := ruleFromPayload(req.Rule)

	result, err := h.series.CreateSeries(r.Context(), template, rule)
	if err != nil {
		h.writeServiceError(w, log, err)
		return
	}

	log.Info(
		"series created",
		slog.String("pattern_id", result.Pattern.ID.String()),
		slog.Int("created", len(result.CreatedIDs)),
		slog.Int("skipped", len(result.Skipped)),
	)
	writeJSON(w, http.StatusCreated, toSeriesResponse(result))
}

type updatePatternRequest struct {
	Frequency        *string    `json:"frequency,omitempty"`
	Interval         *int       `json:"interval,omitempty"`
	DaysOfWeek       []string   `json:"days_of_week,omitempty"`
	StartDate        *time.Time `json:"start_date,omitempty"`
	EndDate          *time.Time `json:"end_date,omitempty"`
	OccurrenceCount  *int       `json:"occurrence_count,omitempty"`
	RegenerateFuture bool       `json:"regenerate_future"`
}

// UpdateRecurrencePattern changes a stored rule, optionally rebooking the
// future occurrences under the new cadence.
// PATCH /v1/recurrence-patterns/{patternID}
func (h *Handler) UpdateRecurrencePattern(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("op", "UpdateRecurrencePattern"))

	patternID, ok := h.parseID(w, log, chi.URLParam(r, "patternID"), "pattern_id")
	if !ok {
		return
	}

	var req updatePatternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_json"))
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	changes := scheduling.RuleChanges{
		Interval:        req.Interval,
		DaysOfWeek:      req.DaysOfWeek,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		OccurrenceCount: req.OccurrenceCount,
	}
	if req.Frequency != nil {
		freq := domain.RecurrenceFrequency(*req.Frequency)
		changes.Frequency = &freq
	}

	result, err := h.series.UpdatePattern(r.Context(), patternID, changes, req.RegenerateFuture)
	if err != nil {
		h.writeServiceError(w, log, err)
		return
	}

	log.Info(
		"pattern updated",
		slog.String("pattern_id", patternID.String()),
		slog.Bool("regenerate_future", req.RegenerateFuture),
		slog.Int("created", len(result.CreatedIDs)),
	)
	writeJSON(w, http.StatusOK, toSeriesResponse(result))
}

// DeleteRecurrencePattern removes a pattern. With cascade=true the linked
// appointments go too; otherwise they are detached and kept.
// DELETE /v1/recurrence-patterns/{patternID}?cascade=true
func (h *Handler) DeleteRecurrencePattern(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("op", "DeleteRecurrencePattern"))

	patternID, ok := h.parseID(w, log, chi.URLParam(r, "patternID"), "pattern_id")
	if !ok {
		return
	}
	cascade := r.URL.Query().Get("cascade") == "true"

	if err := h.series.DeletePattern(r.Context(), patternID, cascade); err != nil {
		h.writeServiceError(w, log, err)
		return
	}

	log.Info(
		"pattern deleted",
		slog.String("pattern_id", patternID.String()),
		slog.Bool("cascade", cascade),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) parseID(w http.ResponseWriter, log *slog.Logger, raw, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_"+field))
		writeError(w, http.StatusBadRequest, field+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) parseOptionalID(w http.ResponseWriter, log *slog.Logger, raw, field string) (*uuid.UUID, bool) {
	if raw == "" {
		return nil, true
	}
	id, ok := h.parseID(w, log, raw, field)
	if !ok {
		return nil, false
	}
	return &id, true
}

func (h *Handler) parseWindow(w http.ResponseWriter, log *slog.Logger, r *http.Request, startParam, endParam string) (domain.TimeInterval, bool) {
	start, err := time.Parse(time.RFC3339, r.URL.Query().Get(startParam))
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_"+startParam))
		writeError(w, http.StatusBadRequest, startParam+" must be an RFC 3339 timestamp")
		return domain.TimeInterval{}, false
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get(endParam))
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_"+endParam))
		writeError(w, http.StatusBadRequest, endParam+" must be an RFC 3339 timestamp")
		return domain.TimeInterval{}, false
	}
	return domain.NewInterval(start, end), true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, log *slog.Logger, err error) {
	var vErr *scheduling.ValidationError
	if errors.As(err, &vErr) {
		log.Warn("invalid request", slog.Any("err", err))
		writeError(w, http.StatusBadRequest, vErr.Error())
		return
	}
	var nfErr *scheduling.NotFoundError
	if errors.As(err, &nfErr) {
		log.Info("referenced entity not found", slog.Any("err", err))
		writeError(w, http.StatusNotFound, nfErr.Error())
		return
	}
	var cErr *scheduling.ConflictError
	if errors.As(err, &cErr) {
		log.Info("booking conflict", slog.Any("err", err))
		writeError(w, http.StatusConflict, cErr.Error())
		return
	}
	var capErr *scheduling.CapacityError
	if errors.As(err, &capErr) {
		log.Info("capacity exceeded", slog.Any("err", err))
		writeError(w, http.StatusConflict, capErr.Error())
		return
	}
	log.Error("request failed", slog.Any("err", err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func templateFromPayload(p appointmentTemplatePayload) (scheduling.AppointmentTemplate, error) {
	therapistID, err := uuid.Parse(p.TherapistID)
	if err != nil {
		return scheduling.AppointmentTemplate{}, errors.New("therapist_id must be a UUID")
	}

	template := scheduling.AppointmentTemplate{
		TherapistID: therapistID,
		Title:       p.Title,
		Notes:       p.Notes,
		StartTime:   p.StartTime,
		EndTime:     p.EndTime,
	}

	if p.RoomID != "" {
		roomID, err := uuid.Parse(p.RoomID)
		if err != nil {
			return scheduling.AppointmentTemplate{}, errors.New("room_id must be a UUID")
		}
		template.RoomID = &roomID
	}

	for _, req := range p.Equipment {
		equipmentID, err := uuid.Parse(req.EquipmentID)
		if err != nil {
			return scheduling.AppointmentTemplate{}, errors.New("equipment_id must be a UUID")
		}
		template.Equipment = append(template.Equipment, scheduling.EquipmentRequest{
			EquipmentID: equipmentID,
			Quantity:    req.Quantity,
		})
	}

	if p.Session != nil {
		session, err := sessionFromPayload(*p.Session)
		if err != nil {
			return scheduling.AppointmentTemplate{}, err
		}
		template.Session = session
	}

	return template, nil
}

func sessionFromPayload(p sessionPayload) (scheduling.SessionDetail, error) {
	switch p.Type {
	case "individual":
		clientID, err := uuid.Parse(p.ClientID)
		if err != nil {
			return nil, errors.New("client_id must be a UUID")
		}
		sess := scheduling.IndividualSession{ClientID: clientID}
		if p.LearnerID != "" {
			learnerID, err := uuid.Parse(p.LearnerID)
			if err != nil {
				return nil, errors.New("learner_id must be a UUID")
			}
			sess.LearnerID = &learnerID
		}
		return sess, nil
	case "group":
		sess := scheduling.GroupSession{MaxParticipants: p.MaxParticipants}
		for _, raw := range p.LearnerIDs {
			learnerID, err := uuid.Parse(raw)
			if err != nil {
				return nil, errors.New("learner_ids must be UUIDs")
			}
			sess.LearnerIDs = append(sess.LearnerIDs, learnerID)
		}
		return sess, nil
	default:
		return nil, errors.New(`session type must be "individual" or "group"`)
	}
}

func ruleFromPayload(p recurrenceRulePayload) scheduling.RuleInput {
	return scheduling.RuleInput{
		Frequency:       domain.RecurrenceFrequency(p.Frequency),
		Interval:        p.Interval,
		DaysOfWeek:      p.DaysOfWeek,
		StartDate:       p.StartDate,
		EndDate:         p.EndDate,
		OccurrenceCount: p.OccurrenceCount,
	}
}

func toAppointmentResponse(appt domain.Appointment) appointmentResponse {
	resp := appointmentResponse{
		ID:              appt.ID.String(),
		TherapistID:     appt.TherapistID.String(),
		Title:           appt.Title,
		Notes:           appt.Notes,
		StartTime:       appt.StartTime,
		EndTime:         appt.EndTime,
		Status:          string(appt.Status),
		IsRecurring:     appt.IsRecurring,
		IsGroup:         appt.IsGroup,
		MaxParticipants: appt.MaxParticipants,
	}
	if appt.RoomID != nil {
		s := appt.RoomID.String()
		resp.RoomID = &s
	}
	if appt.ClientID != nil {
		s := appt.ClientID.String()
		resp.ClientID = &s
	}
	if appt.RecurrencePatternID != nil {
		s := appt.RecurrencePatternID.String()
		resp.RecurrencePatternID = &s
	}
	for _, usage := range appt.EquipmentUsages {
		resp.Equipment = append(resp.Equipment, equipmentRequestPayload{
			EquipmentID: usage.EquipmentID.String(),
			Quantity:    usage.Quantity,
		})
	}
	for _, p := range appt.Participants {
		resp.LearnerIDs = append(resp.LearnerIDs, p.LearnerID.String())
	}
	return resp
}

func toSeriesResponse(result scheduling.SeriesResult) seriesResponse {
	resp := seriesResponse{
		PatternID:      result.Pattern.ID.String(),
		AppointmentIDs: make([]string, 0, len(result.CreatedIDs)),
	}
	for _, id := range result.CreatedIDs {
		resp.AppointmentIDs = append(resp.AppointmentIDs, id.String())
	}
	for _, skip := range result.Skipped {
		resp.Skipped = append(resp.Skipped, skippedOccurrencePayload{
			StartTime: skip.StartTime,
			Reason:    skip.Reason,
		})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
