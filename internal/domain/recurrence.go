package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type RecurrenceFrequency string

const (
	RecurrenceFrequencyDaily    RecurrenceFrequency = "daily"
	RecurrenceFrequencyWeekly   RecurrenceFrequency = "weekly"
	RecurrenceFrequencyBiweekly RecurrenceFrequency = "biweekly"
	RecurrenceFrequencyMonthly  RecurrenceFrequency = "monthly"
	RecurrenceFrequencyCustom   RecurrenceFrequency = "custom"
)

func ValidFrequency(f RecurrenceFrequency) bool {
	switch f {
	case RecurrenceFrequencyDaily,
		RecurrenceFrequencyWeekly,
		RecurrenceFrequencyBiweekly,
		RecurrenceFrequencyMonthly,
		RecurrenceFrequencyCustom:
		return true
	}
	return false
}

// DefaultOccurrenceCeiling bounds generation for open-ended rules so a rule
// without end date or count cannot expand forever. Raise it through
// configuration, not here.
const DefaultOccurrenceCeiling = 52

type RecurrencePattern struct {
	bun.BaseModel `bun:"table:recurrence_patterns"`

	ID              uuid.UUID           `bun:"id,pk,type:uuid"`
	Frequency       RecurrenceFrequency `bun:"frequency,notnull"`
	Interval        int                 `bun:"interval,notnull"`
	DaysOfWeek      []string            `bun:"days_of_week,array"`
	StartDate       time.Time           `bun:"start_date,notnull"`
	EndDate         *time.Time          `bun:"end_date"`
	OccurrenceCount *int                `bun:"occurrence_count"`
	CreatedAt       time.Time           `bun:"created_at,notnull"`
	UpdatedAt       time.Time           `bun:"updated_at,notnull"`
}

func (p *RecurrencePattern) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if p.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			p.ID = id
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		p.UpdatedAt = now
	}
	return nil
}

var weekdayByTag = map[string]time.Weekday{
	"SUN": time.Sunday,
	"MON": time.Monday,
	"TUE": time.Tuesday,
	"WED": time.Wednesday,
	"THU": time.Thursday,
	"FRI": time.Friday,
	"SAT": time.Saturday,
}

var tagByWeekday = map[time.Weekday]string{
	time.Sunday:    "SUN",
	time.Monday:    "MON",
	time.Tuesday:   "TUE",
	time.Wednesday: "WED",
	time.Thursday:  "THU",
	time.Friday:    "FRI",
	time.Saturday:  "SAT",
}

func ParseWeekdayTag(tag string) (time.Weekday, bool) {
	wd, ok := weekdayByTag[tag]
	return wd, ok
}

func WeekdayTag(wd time.Weekday) string {
	return tagByWeekday[wd]
}

// GenerateOccurrences expands a recurrence rule into the ordered start
// instants of the series. It is pure: same inputs, same output, no I/O.
//
// The cursor starts at the later of baseStart and the rule's start date and
// carries baseStart's time of day. Generation stops at
// min(rule.OccurrenceCount or maxOccurrences, ceiling) occurrences, or as
// soon as a start would land after the rule's end date (the end date itself
// is still a permissible start).
func GenerateOccurrences(baseStart time.Time, rule RecurrencePattern, maxOccurrences, ceiling int) ([]time.Time, error) {
	if ceiling <= 0 {
		ceiling = DefaultOccurrenceCeiling
	}
	limit := maxOccurrences
	if rule.OccurrenceCount != nil {
		limit = *rule.OccurrenceCount
	}
	if limit <= 0 || limit > ceiling {
		limit = ceiling
	}

	interval := rule.Interval
	if interval < 1 {
		interval = 1
	}

	base := baseStart.UTC()
	cursor := base
	if start := rule.StartDate.UTC(); start.After(cursor) {
		cursor = time.Date(start.Year(), start.Month(), start.Day(),
			base.Hour(), base.Minute(), base.Second(), base.Nanosecond(), time.UTC)
	}

	var until *time.Time
	if rule.EndDate != nil {
		u := rule.EndDate.UTC()
		until = &u
	}

	out := make([]time.Time, 0, limit)

	switch rule.Frequency {
	case RecurrenceFrequencyDaily, RecurrenceFrequencyCustom:
		for len(out) < limit {
			if until != nil && cursor.After(*until) {
				break
			}
			out = append(out, cursor)
			cursor = cursor.AddDate(0, 0, interval)
		}

	case RecurrenceFrequencyWeekly, RecurrenceFrequencyBiweekly:
		days := make(map[time.Weekday]struct{}, len(rule.DaysOfWeek))
		for _, tag := range rule.DaysOfWeek {
			if wd, ok := weekdayByTag[tag]; ok {
				days[wd] = struct{}{}
			}
		}
		if len(days) == 0 {
			days[base.Weekday()] = struct{}{}
		}

		// Biweekly walks one active 7-day window, then skips interval
		// silent weeks before scanning again.
		dayInWindow := 0
		for len(out) < limit {
			if until != nil && cursor.After(*until) {
				break
			}
			if _, ok := days[cursor.Weekday()]; ok {
				out = append(out, cursor)
			}
			cursor = cursor.AddDate(0, 0, 1)
			if rule.Frequency == RecurrenceFrequencyBiweekly {
				dayInWindow++
				if dayInWindow == 7 {
					dayInWindow = 0
					cursor = cursor.AddDate(0, 0, interval*7)
				}
			}
		}

	case RecurrenceFrequencyMonthly:
		// The anchor day is preserved across steps; a clamp into a short
		// month (Jan 31 -> Feb 28) never propagates to later months.
		anchorDay := cursor.Day()
		year, month := cursor.Year(), cursor.Month()
		for len(out) < limit {
			day := anchorDay
			if last := lastDayOfMonth(year, month); day > last {
				day = last
			}
			occ := time.Date(year, month, day, cursor.Hour(), cursor.Minute(), cursor.Second(), cursor.Nanosecond(), time.UTC)
			if until != nil && occ.After(*until) {
				break
			}
			out = append(out, occ)
			total := int(month) - 1 + interval
			year += total / 12
			month = time.Month(total%12 + 1)
		}

	default:
		return nil, errors.New("unsupported recurrence frequency")
	}

	return out, nil
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
