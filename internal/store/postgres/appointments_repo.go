package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"therapycrm/scheduling/internal/domain"
	"therapycrm/scheduling/internal/store"
)

// therapistOverlapConstraint is the exclusion constraint installed by the
// migrations. A 23P01 on it means a concurrent booking won the slot after
// the service-level pre-check passed.
const therapistOverlapConstraint = "appointments_therapist_no_overlap"

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

// Create inserts the appointment with its equipment usages and participants
// in one transaction, serialized per therapist with an advisory lock so two
// bookings for the same calendar cannot interleave.
func (r *AppointmentRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockTherapistCalendar(ctx, tx, m.TherapistID); err != nil {
			return err
		}

		if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
			return err
		}

		if len(m.EquipmentUsages) > 0 {
			for _, usage := range m.EquipmentUsages {
				usage.AppointmentID = m.ID
			}
			if _, err := tx.NewInsert().Model(&m.EquipmentUsages).Exec(ctx); err != nil {
				return err
			}
		}

		if len(m.Participants) > 0 {
			for _, p := range m.Participants {
				p.AppointmentID = m.ID
			}
			if _, err := tx.NewInsert().Model(&m.Participants).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isTherapistOverlap(err) {
			return domain.Appointment{}, store.ErrConflict
		}
		return domain.Appointment{}, err
	}
	return m, nil
}

func (r *AppointmentRepo) FindByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var row domain.Appointment
	err := r.db.NewSelect().
		Model(&row).
		Relation("EquipmentUsages").
		Relation("Participants").
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	return row, nil
}

func (r *AppointmentRepo) FindOverlapping(ctx context.Context, kind domain.ResourceKind, resourceID uuid.UUID, interval domain.TimeInterval, excludeID *uuid.UUID) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().
		Model(&rows).
		Relation("EquipmentUsages").
		Where("start_time < ?", interval.End).
		Where("end_time > ?", interval.Start).
		Where("status IN (?)", bun.In(domain.OccupyingStatuses(kind))).
		OrderExpr("start_time ASC")

	q, err := scopeToResource(q, kind, resourceID)
	if err != nil {
		return nil, err
	}
	if excludeID != nil {
		q = q.Where("id != ?", *excludeID)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) FindByPattern(ctx context.Context, patternID uuid.UUID, filter store.PatternFilter) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().
		Model(&rows).
		Relation("EquipmentUsages").
		Relation("Participants").
		Where("recurrence_pattern_id = ?", patternID).
		OrderExpr("start_time ASC")
	if filter.From != nil {
		q = q.Where("start_time >= ?", *filter.From)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) Update(ctx context.Context, id uuid.UUID, update store.AppointmentUpdate) (domain.Appointment, error) {
	q := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Where("id = ?", id).
		Set("updated_at = now()")
	if update.Title != nil {
		q = q.Set("title = ?", *update.Title)
	}
	if update.Notes != nil {
		q = q.Set("notes = ?", *update.Notes)
	}
	if update.StartTime != nil {
		q = q.Set("start_time = ?", *update.StartTime)
	}
	if update.EndTime != nil {
		q = q.Set("end_time = ?", *update.EndTime)
	}
	if update.Status != nil {
		q = q.Set("status = ?", *update.Status)
	}
	if update.RoomID != nil {
		q = q.Set("room_id = ?", *update.RoomID)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		// Moving an appointment can trip the overlap guard just like an
		// insert.
		if isTherapistOverlap(err) {
			return domain.Appointment{}, store.ErrConflict
		}
		return domain.Appointment{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}

	return r.FindByID(ctx, id)
}

func (r *AppointmentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *AppointmentRepo) DeleteByPattern(ctx context.Context, patternID uuid.UUID) (int, error) {
	res, err := r.db.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("recurrence_pattern_id = ?", patternID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (r *AppointmentRepo) UnlinkPattern(ctx context.Context, patternID uuid.UUID) (int, error) {
	res, err := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Where("recurrence_pattern_id = ?", patternID).
		Set("recurrence_pattern_id = NULL").
		Set("is_recurring = FALSE").
		Set("updated_at = now()").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (r *AppointmentRepo) ListForResource(ctx context.Context, kind domain.ResourceKind, resourceID uuid.UUID, window domain.TimeInterval) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().
		Model(&rows).
		Relation("EquipmentUsages").
		Relation("Participants").
		Where("start_time < ?", window.End).
		Where("end_time > ?", window.Start).
		OrderExpr("start_time ASC")

	q, err := scopeToResource(q, kind, resourceID)
	if err != nil {
		return nil, err
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func scopeToResource(q *bun.SelectQuery, kind domain.ResourceKind, resourceID uuid.UUID) (*bun.SelectQuery, error) {
	switch kind {
	case domain.ResourceKindTherapist:
		return q.Where("therapist_id = ?", resourceID), nil
	case domain.ResourceKindRoom:
		return q.Where("room_id = ?", resourceID), nil
	case domain.ResourceKindEquipment:
		return q.Where("id IN (SELECT appointment_id FROM appointment_equipment WHERE equipment_id = ?)", resourceID), nil
	default:
		return nil, fmt.Errorf("unknown resource kind %q", kind)
	}
}

func lockTherapistCalendar(ctx context.Context, tx bun.Tx, therapistID uuid.UUID) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", therapistID.String()).Exec(ctx)
	return err
}

func isTherapistOverlap(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01" && pgErr.ConstraintName == therapistOverlapConstraint
}
