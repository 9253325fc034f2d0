package store

import (
	"context"

	"github.com/google/uuid"

	"therapycrm/scheduling/internal/domain"
)

type RecurrencePatternStore interface {
	Create(ctx context.Context, pattern domain.RecurrencePattern) (domain.RecurrencePattern, error)
	FindByID(ctx context.Context, id uuid.UUID) (domain.RecurrencePattern, error)
	Update(ctx context.Context, pattern domain.RecurrencePattern) (domain.RecurrencePattern, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
