package app

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"gopherai-interview/internal/model"
	"gopherai-interview/internal/repository"
)

// ConflictPayload is the latest persisted state handed back when a write
// loses against a concurrent one, so the client can merge or overwrite.
type ConflictPayload struct {
	ID        uuid.UUID            `json:"id"`
	Version   int                  `json:"version"`
	UpdatedAt time.Time            `json:"updated_at"`
	Answers   model.AnswerDocument `json:"answers"`
}

// SaveResult is either a committed write (OK) or a conflict. Conflicts are
// not errors and are never resolved server-side.
type SaveResult struct {
	OK        bool                 `json:"ok"`
	UpdatedAt time.Time            `json:"updatedAt"`
	Answers   model.AnswerDocument `json:"answers"`
	Version   int                  `json:"version"`
	Status    model.SessionStatus  `json:"status"`
	Conflict  *ConflictPayload     `json:"-"`
}

type SaveAnswerDiffInput struct {
	ActorID           uuid.UUID
	SessionID         uuid.UUID
	QuestionID        string
	NewAnswer         *string
	QuestionText      string
	EvidenceRefs      []string
	Model             *model.ModelMetadata
	AppendTurn        bool
	PreviousUpdatedAt time.Time
}

// SaveAnswerDiff applies one question's change. The write is rejected with
// a conflict when the row moved past the updatedAt the client last saw, or
// when another writer commits between our read and our CAS.
func (s *InterviewService) SaveAnswerDiff(ctx context.Context, input SaveAnswerDiffInput) (*SaveResult, error) {
	const op = "save_answer_diff"
	result, err := s.saveAnswerDiff(ctx, input)
	s.observeSave(op, result, err)
	return result, err
}

func (s *InterviewService) saveAnswerDiff(ctx context.Context, input SaveAnswerDiffInput) (*SaveResult, error) {
	const op = "save_answer_diff"
	if input.ActorID == uuid.Nil || input.SessionID == uuid.Nil {
		return nil, invalidInput("actor and session are required")
	}
	questionID := strings.TrimSpace(input.QuestionID)
	if questionID == "" {
		return nil, invalidInput("question id is required")
	}
	if input.PreviousUpdatedAt.IsZero() {
		return nil, invalidInput("previousUpdatedAt is required")
	}

	casCtx, cancel := context.WithTimeout(ctx, s.casTimeout)
	defer cancel()

	session, err := s.loadMutable(casCtx, op, input.ActorID, input.SessionID)
	if err != nil {
		return nil, err
	}
	if !session.UpdatedAt.Equal(input.PreviousUpdatedAt) {
		return s.conflictResult(ctx, op, input.ActorID, session)
	}

	diff := AnswerDiff{
		QuestionID:   questionID,
		NewAnswer:    input.NewAnswer,
		QuestionText: strings.TrimSpace(input.QuestionText),
		EvidenceRefs: input.EvidenceRefs,
		Model:        input.Model,
		AppendTurn:   input.AppendTurn,
	}
	result, err := s.swapAnswers(ctx, casCtx, op, input.ActorID, session, func(doc model.AnswerDocument) model.AnswerDocument {
		return ApplyAnswerDiff(doc, diff)
	})
	if err != nil || result.Conflict != nil {
		return result, err
	}
	deleted := input.NewAnswer == nil || strings.TrimSpace(*input.NewAnswer) == ""
	s.emit(ctx, model.EventAnswerSaved, session.ID, input.ActorID, result.Version, map[string]any{
		"question_id": questionID,
		"deleted":     deleted,
	})
	return result, nil
}

type ReplaceAnswersInput struct {
	ActorID       uuid.UUID
	SessionID     uuid.UUID
	Answers       model.AnswerDocument
	ClientVersion int
}

// ReplaceAnswers swaps in a whole answer document with a single CAS against
// the version the client last saw.
func (s *InterviewService) ReplaceAnswers(ctx context.Context, input ReplaceAnswersInput) (*SaveResult, error) {
	const op = "replace_answers"
	result, err := s.replaceAnswers(ctx, input)
	s.observeSave(op, result, err)
	return result, err
}

func (s *InterviewService) replaceAnswers(ctx context.Context, input ReplaceAnswersInput) (*SaveResult, error) {
	const op = "replace_answers"
	if input.ActorID == uuid.Nil || input.SessionID == uuid.Nil {
		return nil, invalidInput("actor and session are required")
	}
	if input.ClientVersion <= 0 {
		return nil, invalidInput("clientVersion must be positive")
	}
	if err := input.Answers.Validate(); err != nil {
		return nil, invalidInput(err.Error())
	}

	casCtx, cancel := context.WithTimeout(ctx, s.casTimeout)
	defer cancel()

	session, err := s.loadMutable(casCtx, op, input.ActorID, input.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Version != input.ClientVersion {
		return s.conflictResult(ctx, op, input.ActorID, session)
	}

	replacement := input.Answers.Clone()
	result, err := s.swapAnswers(ctx, casCtx, op, input.ActorID, session, func(model.AnswerDocument) model.AnswerDocument {
		return replacement
	})
	if err != nil || result.Conflict != nil {
		return result, err
	}
	s.emit(ctx, model.EventAnswersReplaced, session.ID, input.ActorID, result.Version, map[string]any{
		"questions": len(replacement),
	})
	return result, nil
}

// loadMutable loads a session the actor may write and that still accepts
// answers.
func (s *InterviewService) loadMutable(ctx context.Context, op string, actorID, sessionID uuid.UUID) (*model.InterviewSession, error) {
	session, err := s.loadAuthorized(ctx, op, actorID, sessionID, ActionWrite)
	if err != nil {
		return nil, err
	}
	if err := ensureAcceptsAnswers(session); err != nil {
		return nil, err
	}
	return session, nil
}

func ensureAcceptsAnswers(session *model.InterviewSession) error {
	if session.IsDeleted() {
		return ErrSessionNotFound
	}
	if session.Status == model.StatusCompleted {
		return invalidState("completed sessions do not accept answers")
	}
	return nil
}

func (s *InterviewService) swapAnswers(
	ctx, casCtx context.Context,
	op string,
	actorID uuid.UUID,
	base *model.InterviewSession,
	transform func(model.AnswerDocument) model.AnswerDocument,
) (*SaveResult, error) {
	s.markDirty(ctx, base.ID)
	swap, err := s.store.CompareAndSwap(casCtx, base.ID, base.Version, func(row *model.InterviewSession) error {
		if err := ensureAcceptsAnswers(row); err != nil {
			return err
		}
		doc, err := row.Answers()
		if err != nil {
			return err
		}
		if err := row.SetAnswers(transform(doc)); err != nil {
			return err
		}
		if row.Status == model.StatusDraft {
			row.Status = model.StatusInProgress
		}
		return nil
	})
	s.writeThrough(ctx, base.ID, swap, err)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if swap.Conflict {
		return s.conflictResult(ctx, op, actorID, swap.Session)
	}
	return savedResult(swap.Session)
}

func savedResult(session *model.InterviewSession) (*SaveResult, error) {
	answers, err := session.Answers()
	if err != nil {
		return nil, err
	}
	return &SaveResult{
		OK:        true,
		UpdatedAt: session.UpdatedAt,
		Answers:   answers,
		Version:   session.Version,
		Status:    session.Status,
	}, nil
}

func (s *InterviewService) conflictResult(ctx context.Context, op string, actorID uuid.UUID, latest *model.InterviewSession) (*SaveResult, error) {
	payload, err := s.conflict(ctx, op, actorID, latest)
	if err != nil {
		return nil, err
	}
	return &SaveResult{Conflict: payload, Version: latest.Version, UpdatedAt: latest.UpdatedAt, Status: latest.Status}, nil
}

func (s *InterviewService) conflict(ctx context.Context, op string, actorID uuid.UUID, latest *model.InterviewSession) (*ConflictPayload, error) {
	answers, err := latest.Answers()
	if err != nil {
		return nil, err
	}
	s.metrics.IncConflict(op)
	s.log.Info("optimistic lock conflict", "op", op, "session_id", latest.ID, "actor_id", actorID, "latest_version", latest.Version)
	s.emit(ctx, model.EventConflict, latest.ID, actorID, latest.Version, map[string]any{"op": op})
	return &ConflictPayload{
		ID:        latest.ID,
		Version:   latest.Version,
		UpdatedAt: latest.UpdatedAt,
		Answers:   answers,
	}, nil
}

func (s *InterviewService) observeSave(op string, result *SaveResult, err error) {
	outcome := outcomeOf(err)
	if err == nil && result != nil && result.Conflict != nil {
		outcome = "conflict"
	}
	s.metrics.ObserveOperation(op, outcome)
}

var _ SessionStore = (*repository.SessionStore)(nil)
var _ SessionStore = (*repository.MemorySessionStore)(nil)
