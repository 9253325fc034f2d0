package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"therapycrm/scheduling/internal/domain"
	"therapycrm/scheduling/internal/store"
)

type RecurrencePatternRepo struct {
	db *bun.DB
}

func NewRecurrencePatternRepo(db *bun.DB) *RecurrencePatternRepo {
	return &RecurrencePatternRepo{db: db}
}

func (r *RecurrencePatternRepo) Create(ctx context.Context, pattern domain.RecurrencePattern) (domain.RecurrencePattern, error) {
	m := pattern
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.RecurrencePattern{}, err
	}
	return m, nil
}

func (r *RecurrencePatternRepo) FindByID(ctx context.Context, id uuid.UUID) (domain.RecurrencePattern, error) {
	var row domain.RecurrencePattern
	err := r.db.NewSelect().
		Model(&row).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RecurrencePattern{}, store.ErrNotFound
	}
	if err != nil {
		return domain.RecurrencePattern{}, err
	}
	return row, nil
}

func (r *RecurrencePatternRepo) Update(ctx context.Context, pattern domain.RecurrencePattern) (domain.RecurrencePattern, error) {
	m := pattern
	res, err := r.db.NewUpdate().
		Model(&m).
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.RecurrencePattern{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.RecurrencePattern{}, err
	}
	if affected == 0 {
		return domain.RecurrencePattern{}, store.ErrNotFound
	}
	return m, nil
}

func (r *RecurrencePatternRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*domain.RecurrencePattern)(nil)).
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
