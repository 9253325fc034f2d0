package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"therapycrm/scheduling/internal/domain"
	"therapycrm/scheduling/internal/observability/metrics"
	"therapycrm/scheduling/internal/store"
)

// DefaultSeriesBatchSize is how many occurrences one expansion produces when
// the rule carries no occurrence count.
const DefaultSeriesBatchSize = 10

// SeriesService expands recurrence rules into concrete appointments and
// manages the resulting series over its lifetime.
type SeriesService struct {
	appointments store.AppointmentStore
	patterns     store.RecurrencePatternStore
	checker      *ConflictChecker
	log          *slog.Logger
	metrics      *metrics.SchedulingMetrics

	now       func() time.Time
	ceiling   int
	batchSize int
}

type SeriesConfig struct {
	// MaxOccurrenceCeiling caps how many occurrences one expansion may
	// produce regardless of what the rule asks for. Zero means
	// domain.DefaultOccurrenceCeiling.
	MaxOccurrenceCeiling int
	// DefaultBatchSize applies when a rule has no occurrence count. Zero
	// means DefaultSeriesBatchSize.
	DefaultBatchSize int
}

func NewSeriesService(appointments store.AppointmentStore, patterns store.RecurrencePatternStore, checker *ConflictChecker, log *slog.Logger, m *metrics.SchedulingMetrics, cfg SeriesConfig) *SeriesService {
	if log == nil {
		log = slog.Default()
	}
	ceiling := cfg.MaxOccurrenceCeiling
	if ceiling <= 0 {
		ceiling = domain.DefaultOccurrenceCeiling
	}
	batch := cfg.DefaultBatchSize
	if batch <= 0 {
		batch = DefaultSeriesBatchSize
	}
	return &SeriesService{
		appointments: appointments,
		patterns:     patterns,
		checker:      checker,
		log:          log.With(slog.String("component", "scheduling.series")),
		metrics:      m,
		now:          time.Now,
		ceiling:      ceiling,
		batchSize:    batch,
	}
}

type RuleInput struct {
	Frequency       domain.RecurrenceFrequency
	Interval        int
	DaysOfWeek      []string
	StartDate       time.Time
	EndDate         *time.Time
	OccurrenceCount *int
}

// RuleChanges updates the non-nil rule fields of a stored pattern. A nil
// DaysOfWeek slice leaves the stored tags alone.
type RuleChanges struct {
	Frequency       *domain.RecurrenceFrequency
	Interval        *int
	DaysOfWeek      []string
	StartDate       *time.Time
	EndDate         *time.Time
	OccurrenceCount *int
}

type SkippedOccurrence struct {
	StartTime time.Time
	Reason    string
}

// SeriesResult reports a series expansion: the pattern, the created
// appointment IDs in chronological order, and the occurrences that were
// skipped. Skips are a warning payload, not an error.
type SeriesResult struct {
	Pattern    domain.RecurrencePattern
	CreatedIDs []uuid.UUID
	Skipped    []SkippedOccurrence
}

func (s *SeriesService) validateRule(in RuleInput) error {
	if in.Frequency == "" {
		return validationError("frequency is required")
	}
	if !domain.ValidFrequency(in.Frequency) {
		return validationError("unsupported frequency")
	}
	if in.StartDate.IsZero() {
		return validationError("start_date is required")
	}
	if in.EndDate == nil && in.OccurrenceCount == nil {
		return validationError("end_date or occurrence_count is required")
	}
	if in.EndDate != nil && !in.EndDate.After(in.StartDate) {
		return validationError("end_date must be after start_date")
	}
	if in.OccurrenceCount != nil {
		if *in.OccurrenceCount < 1 {
			return validationError("occurrence_count must be at least 1")
		}
		if *in.OccurrenceCount > s.ceiling {
			return validationError(fmt.Sprintf("occurrence_count must not exceed %d", s.ceiling))
		}
	}
	if in.Interval < 0 {
		return validationError("interval must be at least 1")
	}
	if in.Frequency == domain.RecurrenceFrequencyWeekly || in.Frequency == domain.RecurrenceFrequencyBiweekly {
		if len(in.DaysOfWeek) == 0 {
			return validationError("days_of_week is required for weekly and biweekly rules")
		}
	}
	for _, tag := range in.DaysOfWeek {
		if _, ok := domain.ParseWeekdayTag(tag); !ok {
			return validationError(fmt.Sprintf("unknown weekday tag %q", tag))
		}
	}
	return nil
}

// CreateSeries validates the rule and template, persists the pattern, then
// creates one appointment per generated occurrence. A failed occurrence is
// logged and skipped, never aborting the series: partial completion is the
// contract, and the result carries the skip records alongside the created
// IDs.
func (s *SeriesService) CreateSeries(ctx context.Context, template AppointmentTemplate, rule RuleInput) (SeriesResult, error) {
	if err := s.validateRule(rule); err != nil {
		return SeriesResult{}, err
	}
	if err := validateTemplate(template); err != nil {
		return SeriesResult{}, err
	}
	if err := s.ensureTemplateResources(ctx, template); err != nil {
		return SeriesResult{}, err
	}

	pattern, err := s.patterns.Create(ctx, s.patternFromRule(rule))
	if err != nil {
		s.metrics.ObserveSeries("failed")
		return SeriesResult{}, fmt.Errorf("create recurrence pattern: %w", err)
	}

	result, err := s.expand(ctx, pattern, template, nil)
	if err != nil {
		s.metrics.ObserveSeries("failed")
		return SeriesResult{}, err
	}

	s.metrics.ObserveSeries("created")
	s.log.InfoContext(ctx, "recurring series created",
		slog.String("pattern_id", pattern.ID.String()),
		slog.String("frequency", string(pattern.Frequency)),
		slog.Int("created", len(result.CreatedIDs)),
		slog.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// UpdatePattern applies the rule changes whether or not regeneration was
// requested. With regenerateFuture the future linked appointments are
// deleted and recreated from the updated rule; instances already started
// stay untouched, and the template comes from the earliest linked
// appointment so creation-time titles, notes, and participants survive
// edits made to individual instances.
func (s *SeriesService) UpdatePattern(ctx context.Context, patternID uuid.UUID, changes RuleChanges, regenerateFuture bool) (SeriesResult, error) {
	pattern, err := s.patterns.FindByID(ctx, patternID)
	if errors.Is(err, store.ErrNotFound) {
		return SeriesResult{}, notFoundError("recurrence pattern", patternID)
	}
	if err != nil {
		return SeriesResult{}, fmt.Errorf("load recurrence pattern: %w", err)
	}

	merged := applyRuleChanges(pattern, changes)
	if merged.Interval < 1 {
		merged.Interval = 1
	}
	if err := s.validateRule(ruleFromPattern(merged)); err != nil {
		return SeriesResult{}, err
	}
	merged.DaysOfWeek = normalizeWeekdayTags(merged.DaysOfWeek)

	pattern, err = s.patterns.Update(ctx, merged)
	if err != nil {
		return SeriesResult{}, fmt.Errorf("update recurrence pattern: %w", err)
	}

	if !regenerateFuture {
		return SeriesResult{Pattern: pattern}, nil
	}

	linked, err := s.appointments.FindByPattern(ctx, patternID, store.PatternFilter{})
	if err != nil {
		return SeriesResult{}, fmt.Errorf("load linked appointments: %w", err)
	}
	if len(linked) == 0 {
		return SeriesResult{Pattern: pattern}, nil
	}

	template := templateFromAppointment(linked[0])
	now := s.now().UTC()

	for _, appt := range linked {
		if appt.StartTime.Before(now) {
			continue
		}
		if err := s.appointments.Delete(ctx, appt.ID); err != nil {
			s.log.WarnContext(ctx, "future occurrence delete failed",
				slog.String("pattern_id", patternID.String()),
				slog.String("appointment_id", appt.ID.String()),
				slog.Any("err", err),
			)
		}
	}

	result, err := s.expand(ctx, pattern, template, &now)
	if err != nil {
		return SeriesResult{}, err
	}

	s.log.InfoContext(ctx, "recurring series regenerated",
		slog.String("pattern_id", pattern.ID.String()),
		slog.Int("created", len(result.CreatedIDs)),
		slog.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// DeletePattern removes the pattern. With cascade every linked appointment
// goes with it; otherwise the linked appointments are detached first and
// live on as standalone bookings.
func (s *SeriesService) DeletePattern(ctx context.Context, patternID uuid.UUID, cascade bool) error {
	if _, err := s.patterns.FindByID(ctx, patternID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError("recurrence pattern", patternID)
		}
		return fmt.Errorf("load recurrence pattern: %w", err)
	}

	if cascade {
		deleted, err := s.appointments.DeleteByPattern(ctx, patternID)
		if err != nil {
			return fmt.Errorf("delete linked appointments: %w", err)
		}
		s.log.InfoContext(ctx, "recurring series cascade deleted",
			slog.String("pattern_id", patternID.String()),
			slog.Int("deleted", deleted),
		)
	} else {
		unlinked, err := s.appointments.UnlinkPattern(ctx, patternID)
		if err != nil {
			return fmt.Errorf("unlink appointments: %w", err)
		}
		s.log.InfoContext(ctx, "recurring series unlinked",
			slog.String("pattern_id", patternID.String()),
			slog.Int("unlinked", unlinked),
		)
	}

	if err := s.patterns.Delete(ctx, patternID); err != nil {
		return fmt.Errorf("delete recurrence pattern: %w", err)
	}
	return nil
}

// expand runs the creation loop: one appointment per occurrence, in
// chronological order, skipping occurrences that conflict or fail to
// persist. notBefore filters out occurrences starting before it, used by
// regeneration so past instances are never recreated.
func (s *SeriesService) expand(ctx context.Context, pattern domain.RecurrencePattern, template AppointmentTemplate, notBefore *time.Time) (SeriesResult, error) {
	occs, err := domain.GenerateOccurrences(template.StartTime, pattern, s.batchSize, s.ceiling)
	if err != nil {
		return SeriesResult{}, validationError(err.Error())
	}

	duration := template.interval().Duration()
	result := SeriesResult{Pattern: pattern}

	for _, start := range occs {
		if notBefore != nil && start.Before(*notBefore) {
			continue
		}
		interval := domain.TimeInterval{Start: start, End: start.Add(duration)}

		if reason := s.occurrenceConflict(ctx, template, interval); reason != "" {
			s.skip(ctx, &result, pattern.ID, start, reason)
			continue
		}

		created, err := s.appointments.Create(ctx, appointmentFromTemplate(template, &pattern.ID, interval))
		if err != nil {
			s.skip(ctx, &result, pattern.ID, start, createFailureReason(err))
			continue
		}

		s.metrics.ObserveOccurrence("created")
		result.CreatedIDs = append(result.CreatedIDs, created.ID)
	}

	return result, nil
}

func (s *SeriesService) occurrenceConflict(ctx context.Context, template AppointmentTemplate, interval domain.TimeInterval) string {
	conflicted, err := s.checker.HasConflict(ctx, domain.ResourceKindTherapist, template.TherapistID, interval, nil)
	if err != nil {
		return fmt.Sprintf("therapist conflict check failed: %v", err)
	}
	if conflicted {
		s.metrics.ObserveConflict(string(domain.ResourceKindTherapist))
		return "therapist already booked"
	}

	if template.RoomID != nil {
		conflicted, err = s.checker.HasConflict(ctx, domain.ResourceKindRoom, *template.RoomID, interval, nil)
		if err != nil {
			return fmt.Sprintf("room conflict check failed: %v", err)
		}
		if conflicted {
			s.metrics.ObserveConflict(string(domain.ResourceKindRoom))
			return "room already booked"
		}
	}

	for _, req := range template.Equipment {
		ok, err := s.checker.CheckEquipmentAvailability(ctx, req.EquipmentID, interval, req.Quantity, nil)
		if err != nil {
			return fmt.Sprintf("equipment availability check failed: %v", err)
		}
		if !ok {
			s.metrics.ObserveConflict(string(domain.ResourceKindEquipment))
			return "equipment unavailable"
		}
	}
	return ""
}

func (s *SeriesService) skip(ctx context.Context, result *SeriesResult, patternID uuid.UUID, start time.Time, reason string) {
	s.metrics.ObserveOccurrence("skipped")
	s.log.WarnContext(ctx, "series occurrence skipped",
		slog.String("pattern_id", patternID.String()),
		slog.Time("start_time", start),
		slog.String("reason", reason),
	)
	result.Skipped = append(result.Skipped, SkippedOccurrence{StartTime: start, Reason: reason})
}

func (s *SeriesService) ensureTemplateResources(ctx context.Context, t AppointmentTemplate) error {
	if err := s.checker.ensureResourceExists(ctx, domain.ResourceKindTherapist, t.TherapistID); err != nil {
		return err
	}
	if t.RoomID != nil {
		if err := s.checker.ensureResourceExists(ctx, domain.ResourceKindRoom, *t.RoomID); err != nil {
			return err
		}
	}
	for _, req := range t.Equipment {
		if err := s.checker.ensureResourceExists(ctx, domain.ResourceKindEquipment, req.EquipmentID); err != nil {
			return err
		}
	}
	return nil
}

func (s *SeriesService) patternFromRule(in RuleInput) domain.RecurrencePattern {
	interval := in.Interval
	if interval < 1 {
		interval = 1
	}
	pattern := domain.RecurrencePattern{
		Frequency:  in.Frequency,
		Interval:   interval,
		DaysOfWeek: normalizeWeekdayTags(in.DaysOfWeek),
		StartDate:  in.StartDate.UTC(),
	}
	if in.EndDate != nil {
		end := in.EndDate.UTC()
		pattern.EndDate = &end
	}
	if in.OccurrenceCount != nil {
		count := *in.OccurrenceCount
		pattern.OccurrenceCount = &count
	}
	return pattern
}

func applyRuleChanges(p domain.RecurrencePattern, c RuleChanges) domain.RecurrencePattern {
	if c.Frequency != nil {
		p.Frequency = *c.Frequency
	}
	if c.Interval != nil {
		p.Interval = *c.Interval
	}
	if c.DaysOfWeek != nil {
		p.DaysOfWeek = c.DaysOfWeek
	}
	if c.StartDate != nil {
		p.StartDate = c.StartDate.UTC()
	}
	if c.EndDate != nil {
		end := c.EndDate.UTC()
		p.EndDate = &end
	}
	if c.OccurrenceCount != nil {
		count := *c.OccurrenceCount
		p.OccurrenceCount = &count
	}
	return p
}

func ruleFromPattern(p domain.RecurrencePattern) RuleInput {
	return RuleInput{
		Frequency:       p.Frequency,
		Interval:        p.Interval,
		DaysOfWeek:      p.DaysOfWeek,
		StartDate:       p.StartDate,
		EndDate:         p.EndDate,
		OccurrenceCount: p.OccurrenceCount,
	}
}

// normalizeWeekdayTags dedups valid tags and orders them Sunday first.
func normalizeWeekdayTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[time.Weekday]struct{}, len(tags))
	weekdays := make([]time.Weekday, 0, len(tags))
	for _, tag := range tags {
		wd, ok := domain.ParseWeekdayTag(tag)
		if !ok {
			continue
		}
		if _, dup := seen[wd]; dup {
			continue
		}
		seen[wd] = struct{}{}
		weekdays = append(weekdays, wd)
	}
	sort.Slice(weekdays, func(i, j int) bool { return weekdays[i] < weekdays[j] })

	out := make([]string, 0, len(weekdays))
	for _, wd := range weekdays {
		out = append(out, domain.WeekdayTag(wd))
	}
	return out
}

func createFailureReason(err error) string {
	if errors.Is(err, store.ErrConflict) {
		return "slot taken concurrently"
	}
	return err.Error()
}
