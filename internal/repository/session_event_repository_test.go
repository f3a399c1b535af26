package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"gopherai-interview/internal/model"
)

func TestSessionEventRepository(t *testing.T) {
	repo := NewSessionEventRepository(newTestDB(t))
	ctx := context.Background()
	sessionID, actorID := uuid.New(), uuid.New()
	base := Now()

	created := model.SessionEvent{
		ID:         uuid.New(),
		SessionID:  sessionID,
		ActorID:    actorID,
		Kind:       model.EventCreated,
		Version:    1,
		OccurredAt: base,
	}
	require.NoError(t, repo.Publish(ctx, created))
	// A redelivered event is stored once.
	require.NoError(t, repo.Publish(ctx, created))

	require.NoError(t, repo.Create(ctx, &model.SessionEvent{
		SessionID:  sessionID,
		ActorID:    actorID,
		Kind:       model.EventConflict,
		Version:    2,
		Payload:    datatypes.JSON(`{"op":"save_answer_diff"}`),
		OccurredAt: base.Add(time.Second),
	}))
	require.NoError(t, repo.Publish(ctx, model.SessionEvent{
		SessionID:  uuid.New(),
		ActorID:    actorID,
		Kind:       model.EventCreated,
		OccurredAt: base,
	}))

	events, err := repo.ListBySessionID(ctx, sessionID, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.EventCreated, events[0].Kind)
	assert.Equal(t, model.EventConflict, events[1].Kind)
	assert.JSONEq(t, `{"op":"save_answer_diff"}`, string(events[1].Payload))
}
