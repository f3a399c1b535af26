package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gopherai-interview/internal/model"
)

type SessionEventRepository struct {
	db *gorm.DB
}

func NewSessionEventRepository(db *gorm.DB) *SessionEventRepository {
	return &SessionEventRepository{db: db}
}

// Create ignores duplicates so a redelivered event is stored once.
func (r *SessionEventRepository) Create(ctx context.Context, event *model.SessionEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(event).Error; err != nil {
		return fmt.Errorf("create session event failed: %w", err)
	}
	return nil
}

func (r *SessionEventRepository) ListBySessionID(ctx context.Context, sessionID uuid.UUID, limit int) ([]model.SessionEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var events []model.SessionEvent
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("occurred_at ASC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list session events failed: %w", err)
	}
	return events, nil
}

// Publish stores the event directly. It serves as the event sink when no
// broker is configured.
func (r *SessionEventRepository) Publish(ctx context.Context, event model.SessionEvent) error {
	return r.Create(ctx, &event)
}
