package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
	"gorm.io/datatypes"

	"gopherai-interview/internal/model"
)

const setSessionAttempts = 3

// SessionCache keeps copies of session rows. Writers set the dirty marker
// before a swap and write the committed row through after it; readers fall
// back to the store while the marker is set.
type SessionCache struct {
	client         *redisv9.Client
	sessionTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewSessionCache(client *redisv9.Client, sessionTTL, dirtyMarkerTTL time.Duration) *SessionCache {
	if sessionTTL <= 0 {
		sessionTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &SessionCache{
		client:         client,
		sessionTTL:     sessionTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

// cachedSession mirrors InterviewSession with the JSON columns exposed.
type cachedSession struct {
	ID             uuid.UUID           `json:"id"`
	OrganizationID *uuid.UUID          `json:"organization_id,omitempty"`
	UserID         uuid.UUID           `json:"user_id"`
	ContentType    model.ContentType   `json:"content_type"`
	Status         model.SessionStatus `json:"status"`
	QuestionIDs    json.RawMessage     `json:"question_ids,omitempty"`
	Answers        json.RawMessage     `json:"answers,omitempty"`
	Generated      json.RawMessage     `json:"generated_content,omitempty"`
	Version        int                 `json:"version"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	DeletedAt      *time.Time          `json:"deleted_at,omitempty"`
}

func (c *SessionCache) GetSession(ctx context.Context, id uuid.UUID) (*model.InterviewSession, bool, error) {
	raw, err := c.client.Get(ctx, c.sessionKey(id)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get session failed: %w", err)
	}

	var cached cachedSession
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached session failed: %w", err)
	}
	return &model.InterviewSession{
		ID:             cached.ID,
		OrganizationID: cached.OrganizationID,
		UserID:         cached.UserID,
		ContentType:    cached.ContentType,
		Status:         cached.Status,
		QuestionIDs:    datatypes.JSON(cached.QuestionIDs),
		AnswersJSON:    datatypes.JSON(cached.Answers),
		GeneratedJSON:  datatypes.JSON(cached.Generated),
		Version:        cached.Version,
		CreatedAt:      cached.CreatedAt,
		UpdatedAt:      cached.UpdatedAt,
		DeletedAt:      cached.DeletedAt,
	}, true, nil
}

// SetSession stores the row unless the cache already holds the same or a
// newer version. The read and the write run under WATCH, so a reader's
// older snapshot can never replace a row a writer has just put there.
func (c *SessionCache) SetSession(ctx context.Context, session *model.InterviewSession) error {
	payload, err := json.Marshal(cachedSession{
		ID:             session.ID,
		OrganizationID: session.OrganizationID,
		UserID:         session.UserID,
		ContentType:    session.ContentType,
		Status:         session.Status,
		QuestionIDs:    json.RawMessage(session.QuestionIDs),
		Answers:        json.RawMessage(session.AnswersJSON),
		Generated:      json.RawMessage(session.GeneratedJSON),
		Version:        session.Version,
		CreatedAt:      session.CreatedAt,
		UpdatedAt:      session.UpdatedAt,
		DeletedAt:      session.DeletedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal session cache failed: %w", err)
	}

	key := c.sessionKey(session.ID)
	setIfNewer := func(tx *redisv9.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil && err != redisv9.Nil {
			return err
		}
		if err == nil {
			var cached struct {
				Version int `json:"version"`
			}
			if json.Unmarshal(raw, &cached) == nil && cached.Version >= session.Version {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
			pipe.Set(ctx, key, payload, c.sessionTTL)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < setSessionAttempts; attempt++ {
		err = c.client.Watch(ctx, setIfNewer, key)
		if err == redisv9.TxFailedErr {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis set session failed: %w", err)
		}
		return nil
	}
	return fmt.Errorf("redis set session failed: %w", err)
}

func (c *SessionCache) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if err := c.client.Del(ctx, c.sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete session failed: %w", err)
	}
	return nil
}

func (c *SessionCache) MarkDirty(ctx context.Context, id uuid.UUID) error {
	if err := c.client.Set(ctx, c.dirtyKey(id), "1", c.dirtyMarkerTTL).Err(); err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	return nil
}

func (c *SessionCache) IsDirty(ctx context.Context, id uuid.UUID) (bool, error) {
	exists, err := c.client.Exists(ctx, c.dirtyKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func (c *SessionCache) sessionKey(id uuid.UUID) string {
	return fmt.Sprintf("interview:session:%s", id)
}

func (c *SessionCache) dirtyKey(id uuid.UUID) string {
	return fmt.Sprintf("interview:session:dirty:%s", id)
}
