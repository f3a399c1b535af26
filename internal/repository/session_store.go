package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"gopherai-interview/internal/model"
)

var ErrNotFound = errors.New("record not found")

// SwapResult is the outcome of CompareAndSwap. On success Session is the
// committed row; on conflict it is the latest persisted row.
type SwapResult struct {
	Session  *model.InterviewSession
	Conflict bool
}

// MutateFunc edits a private copy of the current row. Returning an error
// aborts the swap without writing.
type MutateFunc func(session *model.InterviewSession) error

type ListFilter struct {
	UserID         uuid.UUID
	OrganizationID *uuid.UUID
	Limit          int
}

// SessionStore persists interview sessions through gorm. Writes go through
// a conditional UPDATE on (id, version), so concurrent writers against the
// same base version cannot both commit.
type SessionStore struct {
	db    *gorm.DB
	clock func() time.Time
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db, clock: Now}
}

// Now is the store clock: UTC at millisecond precision so timestamps survive
// a round trip through DATETIME(3) columns and JSON.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// nextUpdatedAt keeps updated_at strictly increasing per row, which makes it
// usable as a change marker even when two writes land in the same tick.
func nextUpdatedAt(clock func() time.Time, previous time.Time) time.Time {
	at := clock()
	if !at.After(previous) {
		at = previous.Add(time.Millisecond)
	}
	return at
}

func (r *SessionStore) Create(ctx context.Context, session *model.InterviewSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = r.clock()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}
	if session.Version == 0 {
		session.Version = 1
	}
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("create interview session failed: %w", err)
	}
	return nil
}

// Load returns nil, nil when the row does not exist or is soft-deleted and
// includeDeleted is false.
func (r *SessionStore) Load(ctx context.Context, id uuid.UUID, includeDeleted bool) (*model.InterviewSession, error) {
	query := r.db.WithContext(ctx).Where("id = ?", id)
	if !includeDeleted {
		query = query.Where("deleted_at IS NULL")
	}
	var session model.InterviewSession
	if err := query.First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load interview session failed: %w", err)
	}
	return &session, nil
}

// ListVisible returns live sessions, either one organization's or the
// user's personal ones.
func (r *SessionStore) ListVisible(ctx context.Context, filter ListFilter) ([]model.InterviewSession, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	query := r.db.WithContext(ctx).Where("deleted_at IS NULL")
	if filter.OrganizationID != nil {
		query = query.Where("organization_id = ?", *filter.OrganizationID)
	} else {
		query = query.Where("user_id = ? AND organization_id IS NULL", filter.UserID)
	}

	var sessions []model.InterviewSession
	if err := query.Order("updated_at DESC").Limit(limit).Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list interview sessions failed: %w", err)
	}
	return sessions, nil
}

func (r *SessionStore) CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int, mutate MutateFunc) (SwapResult, error) {
	var (
		result SwapResult
		raced  bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current model.InterviewSession
		if err := tx.Where("id = ?", id).First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load interview session failed: %w", err)
		}
		if current.Version != expectedVersion {
			result = SwapResult{Session: &current, Conflict: true}
			return nil
		}

		edited := current.Clone()
		if err := mutate(edited); err != nil {
			return err
		}
		next := current.Clone()
		next.Status = edited.Status
		next.AnswersJSON = edited.AnswersJSON
		next.GeneratedJSON = edited.GeneratedJSON
		next.DeletedAt = edited.DeletedAt
		next.Version = current.Version + 1
		next.UpdatedAt = nextUpdatedAt(r.clock, current.UpdatedAt)

		res := tx.Model(&model.InterviewSession{}).
			Where("id = ? AND version = ?", id, expectedVersion).
			Updates(map[string]any{
				"status":            next.Status,
				"answers":           next.AnswersJSON,
				"generated_content": next.GeneratedJSON,
				"version":           next.Version,
				"updated_at":        next.UpdatedAt,
				"deleted_at":        next.DeletedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("update interview session failed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			raced = true
			return nil
		}
		result = SwapResult{Session: next}
		return nil
	})
	if err != nil {
		return SwapResult{}, err
	}
	if raced {
		// Re-read outside the transaction; a repeatable-read snapshot would
		// still show the version we lost against.
		latest, err := r.Load(ctx, id, true)
		if err != nil {
			return SwapResult{}, err
		}
		if latest == nil {
			return SwapResult{}, ErrNotFound
		}
		return SwapResult{Session: latest, Conflict: true}, nil
	}
	return result, nil
}
