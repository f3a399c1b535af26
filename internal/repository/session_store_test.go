package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopherai-interview/internal/model"
)

type sessionStore interface {
	Create(ctx context.Context, session *model.InterviewSession) error
	Load(ctx context.Context, id uuid.UUID, includeDeleted bool) (*model.InterviewSession, error)
	ListVisible(ctx context.Context, filter ListFilter) ([]model.InterviewSession, error)
	CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int, mutate MutateFunc) (SwapResult, error)
}

func storeImplementations(t *testing.T) map[string]func() sessionStore {
	return map[string]func() sessionStore{
		"gorm":   func() sessionStore { return NewSessionStore(newTestDB(t)) },
		"memory": func() sessionStore { return NewMemorySessionStore() },
	}
}

func newDraft(t *testing.T, owner uuid.UUID, orgID *uuid.UUID) *model.InterviewSession {
	t.Helper()
	s := &model.InterviewSession{
		OrganizationID: orgID,
		UserID:         owner,
		ContentType:    model.ContentTypeService,
		Status:         model.StatusDraft,
	}
	require.NoError(t, s.SetQuestions([]string{"q1"}))
	require.NoError(t, s.SetAnswers(model.AnswerDocument{}))
	return s
}

func setAnswer(text string) MutateFunc {
	return func(row *model.InterviewSession) error {
		doc, err := row.Answers()
		if err != nil {
			return err
		}
		doc["q1"] = []model.AnswerTurn{{TurnIndex: 0, AnswerText: text}}
		row.Status = model.StatusInProgress
		return row.SetAnswers(doc)
	}
}

func TestSessionStore_CreateAndLoad(t *testing.T) {
	for name, newStore := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			ctx := context.Background()
			session := newDraft(t, uuid.New(), nil)
			require.NoError(t, store.Create(ctx, session))

			assert.NotEqual(t, uuid.Nil, session.ID)
			assert.Equal(t, 1, session.Version)
			assert.False(t, session.UpdatedAt.IsZero())

			got, err := store.Load(ctx, session.ID, false)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, session.UserID, got.UserID)
			assert.Equal(t, model.StatusDraft, got.Status)
			assert.True(t, session.UpdatedAt.Equal(got.UpdatedAt))
			questions, err := got.Questions()
			require.NoError(t, err)
			assert.Equal(t, []string{"q1"}, questions)

			missing, err := store.Load(ctx, uuid.New(), true)
			require.NoError(t, err)
			assert.Nil(t, missing)
		})
	}
}

func TestSessionStore_CompareAndSwap(t *testing.T) {
	for name, newStore := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			ctx := context.Background()
			owner := uuid.New()
			session := newDraft(t, owner, nil)
			require.NoError(t, store.Create(ctx, session))

			res, err := store.CompareAndSwap(ctx, session.ID, 1, func(row *model.InterviewSession) error {
				row.UserID = uuid.New() // immutable, must not stick
				return setAnswer("Hello")(row)
			})
			require.NoError(t, err)
			require.False(t, res.Conflict)
			assert.Equal(t, 2, res.Session.Version)
			assert.Equal(t, owner, res.Session.UserID)
			assert.True(t, res.Session.UpdatedAt.After(session.UpdatedAt))

			got, err := store.Load(ctx, session.ID, false)
			require.NoError(t, err)
			assert.Equal(t, 2, got.Version)
			assert.Equal(t, owner, got.UserID)
			assert.Equal(t, model.StatusInProgress, got.Status)
			answers, err := got.Answers()
			require.NoError(t, err)
			assert.Equal(t, "Hello", answers["q1"][0].AnswerText)

			stale, err := store.CompareAndSwap(ctx, session.ID, 1, setAnswer("World"))
			require.NoError(t, err)
			require.True(t, stale.Conflict)
			assert.Equal(t, 2, stale.Session.Version)
			latest, err := stale.Session.Answers()
			require.NoError(t, err)
			assert.Equal(t, "Hello", latest["q1"][0].AnswerText)

			boom := errors.New("precondition failed")
			_, err = store.CompareAndSwap(ctx, session.ID, 2, func(*model.InterviewSession) error { return boom })
			assert.ErrorIs(t, err, boom)
			got, err = store.Load(ctx, session.ID, false)
			require.NoError(t, err)
			assert.Equal(t, 2, got.Version)

			_, err = store.CompareAndSwap(ctx, uuid.New(), 1, setAnswer("x"))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSessionStore_SoftDeleteVisibility(t *testing.T) {
	for name, newStore := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			ctx := context.Background()
			owner := uuid.New()
			session := newDraft(t, owner, nil)
			require.NoError(t, store.Create(ctx, session))

			res, err := store.CompareAndSwap(ctx, session.ID, 1, func(row *model.InterviewSession) error {
				at := Now()
				row.DeletedAt = &at
				return nil
			})
			require.NoError(t, err)
			require.NotNil(t, res.Session.DeletedAt)

			hidden, err := store.Load(ctx, session.ID, false)
			require.NoError(t, err)
			assert.Nil(t, hidden)

			visible, err := store.Load(ctx, session.ID, true)
			require.NoError(t, err)
			require.NotNil(t, visible)
			assert.True(t, visible.IsDeleted())

			list, err := store.ListVisible(ctx, ListFilter{UserID: owner})
			require.NoError(t, err)
			assert.Empty(t, list)

			res, err = store.CompareAndSwap(ctx, session.ID, 2, func(row *model.InterviewSession) error {
				row.DeletedAt = nil
				return nil
			})
			require.NoError(t, err)
			assert.Nil(t, res.Session.DeletedAt)
			assert.Equal(t, 3, res.Session.Version)
		})
	}
}

func TestSessionStore_ListVisible(t *testing.T) {
	for name, newStore := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			ctx := context.Background()
			owner := uuid.New()
			orgID := uuid.New()

			older := newDraft(t, owner, nil)
			older.CreatedAt = Now().Add(-time.Hour)
			require.NoError(t, store.Create(ctx, older))
			newer := newDraft(t, owner, nil)
			require.NoError(t, store.Create(ctx, newer))
			require.NoError(t, store.Create(ctx, newDraft(t, owner, &orgID)))
			require.NoError(t, store.Create(ctx, newDraft(t, uuid.New(), nil)))

			personal, err := store.ListVisible(ctx, ListFilter{UserID: owner})
			require.NoError(t, err)
			require.Len(t, personal, 2)
			assert.Equal(t, newer.ID, personal[0].ID)
			assert.Equal(t, older.ID, personal[1].ID)

			org, err := store.ListVisible(ctx, ListFilter{UserID: owner, OrganizationID: &orgID})
			require.NoError(t, err)
			require.Len(t, org, 1)
			assert.Equal(t, orgID, *org[0].OrganizationID)

			limited, err := store.ListVisible(ctx, ListFilter{UserID: owner, Limit: 1})
			require.NoError(t, err)
			assert.Len(t, limited, 1)
		})
	}
}

func TestNextUpdatedAt_StrictlyIncreasing(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return fixed }

	assert.Equal(t, fixed.Add(time.Millisecond), nextUpdatedAt(clock, fixed))
	assert.Equal(t, fixed.Add(2*time.Millisecond), nextUpdatedAt(clock, fixed.Add(time.Millisecond)))
	assert.Equal(t, fixed, nextUpdatedAt(clock, fixed.Add(-time.Second)))
}
