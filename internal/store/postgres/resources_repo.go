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

type ResourceRepo struct {
	db *bun.DB
}

func NewResourceRepo(db *bun.DB) *ResourceRepo {
	return &ResourceRepo{db: db}
}

func (r *ResourceRepo) TherapistByID(ctx context.Context, id uuid.UUID) (domain.Therapist, error) {
	var row domain.Therapist
	if err := r.byID(ctx, &row, id); err != nil {
		return domain.Therapist{}, err
	}
	return row, nil
}

func (r *ResourceRepo) RoomByID(ctx context.Context, id uuid.UUID) (domain.Room, error) {
	var row domain.Room
	if err := r.byID(ctx, &row, id); err != nil {
		return domain.Room{}, err
	}
	return row, nil
}

func (r *ResourceRepo) EquipmentByID(ctx context.Context, id uuid.UUID) (domain.Equipment, error) {
	var row domain.Equipment
	if err := r.byID(ctx, &row, id); err != nil {
		return domain.Equipment{}, err
	}
	return row, nil
}

func (r *ResourceRepo) byID(ctx context.Context, model any, id uuid.UUID) error {
	err := r.db.NewSelect().
		Model(model).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
