package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"gopherai-interview/internal/model"
	"gopherai-interview/internal/platform/logger"
	"gopherai-interview/internal/repository"
)

const (
	defaultCASTimeout        = 800 * time.Millisecond
	defaultGenerationTimeout = 45 * time.Second
	defaultDeleteRetryLimit  = 3
	eventPublishTimeout      = 2 * time.Second
)

type SessionStore interface {
	Create(ctx context.Context, session *model.InterviewSession) error
	Load(ctx context.Context, id uuid.UUID, includeDeleted bool) (*model.InterviewSession, error)
	ListVisible(ctx context.Context, filter repository.ListFilter) ([]model.InterviewSession, error)
	CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int, mutate repository.MutateFunc) (repository.SwapResult, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event model.SessionEvent) error
}

// SessionCache serves the read path only. Conflict detection always reads
// the store.
type SessionCache interface {
	GetSession(ctx context.Context, id uuid.UUID) (*model.InterviewSession, bool, error)
	SetSession(ctx context.Context, session *model.InterviewSession) error
	DeleteSession(ctx context.Context, id uuid.UUID) error
	MarkDirty(ctx context.Context, id uuid.UUID) error
	IsDirty(ctx context.Context, id uuid.UUID) (bool, error)
}

type Metrics interface {
	ObserveOperation(op, outcome string)
	IncConflict(op string)
	ObserveGeneration(outcome string, dur time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, string)          {}
func (noopMetrics) IncConflict(string)                       {}
func (noopMetrics) ObserveGeneration(string, time.Duration) {}

type InterviewServiceDeps struct {
	Store     SessionStore
	Members   MembershipResolver
	Generator Generator
	Publisher EventPublisher
	Cache     SessionCache
	Metrics   Metrics
	Log       *logger.Logger

	CASTimeout        time.Duration
	GenerationTimeout time.Duration
	DeleteRetryLimit  int
}

// InterviewService owns the session lifecycle: create, diff-save, bulk
// replace, finalize, soft delete and restore.
type InterviewService struct {
	store     SessionStore
	policy    *AccessPolicy
	generator Generator
	publisher EventPublisher
	cache     SessionCache
	metrics   Metrics
	log       *logger.Logger

	casTimeout        time.Duration
	generationTimeout time.Duration
	deleteRetryLimit  int
}

func NewInterviewService(deps InterviewServiceDeps) *InterviewService {
	svc := &InterviewService{
		store:             deps.Store,
		policy:            NewAccessPolicy(deps.Members),
		generator:         deps.Generator,
		publisher:         deps.Publisher,
		cache:             deps.Cache,
		metrics:           deps.Metrics,
		log:               deps.Log,
		casTimeout:        deps.CASTimeout,
		generationTimeout: deps.GenerationTimeout,
		deleteRetryLimit:  deps.DeleteRetryLimit,
	}
	if svc.metrics == nil {
		svc.metrics = noopMetrics{}
	}
	if svc.log == nil {
		svc.log = logger.Nop()
	}
	if svc.casTimeout <= 0 {
		svc.casTimeout = defaultCASTimeout
	}
	if svc.generationTimeout <= 0 {
		svc.generationTimeout = defaultGenerationTimeout
	}
	if svc.deleteRetryLimit <= 0 {
		svc.deleteRetryLimit = defaultDeleteRetryLimit
	}
	return svc
}

// SessionView is the API representation of a session row.
type SessionView struct {
	ID               uuid.UUID               `json:"id"`
	OrganizationID   *uuid.UUID              `json:"organization_id"`
	UserID           uuid.UUID               `json:"user_id"`
	ContentType      model.ContentType       `json:"content_type"`
	Status           model.SessionStatus     `json:"status"`
	QuestionIDs      []string                `json:"question_ids"`
	Answers          model.AnswerDocument    `json:"answers"`
	GeneratedContent *model.GeneratedContent `json:"generated_content"`
	Version          int                     `json:"version"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
	DeletedAt        *time.Time              `json:"deleted_at,omitempty"`
}

func NewSessionView(session *model.InterviewSession) (*SessionView, error) {
	answers, err := session.Answers()
	if err != nil {
		return nil, err
	}
	generated, err := session.Generated()
	if err != nil {
		return nil, err
	}
	questionIDs, err := session.Questions()
	if err != nil {
		return nil, err
	}
	return &SessionView{
		ID:               session.ID,
		OrganizationID:   session.OrganizationID,
		UserID:           session.UserID,
		ContentType:      session.ContentType,
		Status:           session.Status,
		QuestionIDs:      questionIDs,
		Answers:          answers,
		GeneratedContent: generated,
		Version:          session.Version,
		CreatedAt:        session.CreatedAt,
		UpdatedAt:        session.UpdatedAt,
		DeletedAt:        session.DeletedAt,
	}, nil
}

type CreateSessionInput struct {
	ActorID        uuid.UUID
	OrganizationID *uuid.UUID
	ContentType    model.ContentType
	QuestionIDs    []string
}

func (s *InterviewService) CreateSession(ctx context.Context, input CreateSessionInput) (*SessionView, error) {
	const op = "create_session"
	view, err := s.createSession(ctx, input)
	s.metrics.ObserveOperation(op, outcomeOf(err))
	return view, err
}

func (s *InterviewService) createSession(ctx context.Context, input CreateSessionInput) (*SessionView, error) {
	if input.ActorID == uuid.Nil {
		return nil, invalidInput("actor is required")
	}
	if !input.ContentType.Valid() {
		return nil, invalidInput(fmt.Sprintf("unsupported content type %q", input.ContentType))
	}
	questionIDs, err := normalizeQuestionIDs(input.QuestionIDs)
	if err != nil {
		return nil, err
	}
	if input.OrganizationID != nil {
		if err := s.policy.AuthorizeOrganization(ctx, input.ActorID, *input.OrganizationID, ActionWrite); err != nil {
			return nil, err
		}
	}

	session := &model.InterviewSession{
		ID:             uuid.New(),
		OrganizationID: input.OrganizationID,
		UserID:         input.ActorID,
		ContentType:    input.ContentType,
		Status:         model.StatusDraft,
		Version:        1,
	}
	if err := session.SetQuestions(questionIDs); err != nil {
		return nil, err
	}
	if err := session.SetAnswers(model.AnswerDocument{}); err != nil {
		return nil, err
	}

	casCtx, cancel := context.WithTimeout(ctx, s.casTimeout)
	defer cancel()
	if err := s.store.Create(casCtx, session); err != nil {
		return nil, mapStoreError(err)
	}

	s.emit(ctx, model.EventCreated, session.ID, input.ActorID, session.Version, map[string]any{
		"content_type": session.ContentType,
	})
	return NewSessionView(session)
}

func (s *InterviewService) GetSession(ctx context.Context, actorID, sessionID uuid.UUID) (*SessionView, error) {
	const op = "get_session"
	view, err := s.getSession(ctx, actorID, sessionID)
	s.metrics.ObserveOperation(op, outcomeOf(err))
	return view, err
}

func (s *InterviewService) getSession(ctx context.Context, actorID, sessionID uuid.UUID) (*SessionView, error) {
	if actorID == uuid.Nil || sessionID == uuid.Nil {
		return nil, invalidInput("actor and session are required")
	}

	session, err := s.readThrough(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	ownership, err := s.policy.Resolve(ctx, actorID, session)
	if err != nil {
		return nil, err
	}
	if !ownership.Allows(ActionRead) {
		return nil, fmt.Errorf("%w: read on session %s", ErrForbidden, session.ID)
	}
	// Soft-deleted rows stay visible only to actors who could restore them.
	if session.IsDeleted() && !ownership.Allows(ActionRestore) {
		return nil, ErrSessionNotFound
	}
	return NewSessionView(session)
}

type ListSessionsInput struct {
	ActorID        uuid.UUID
	OrganizationID *uuid.UUID
	Limit          int
}

func (s *InterviewService) ListSessions(ctx context.Context, input ListSessionsInput) ([]SessionView, error) {
	const op = "list_sessions"
	views, err := s.listSessions(ctx, input)
	s.metrics.ObserveOperation(op, outcomeOf(err))
	return views, err
}

func (s *InterviewService) listSessions(ctx context.Context, input ListSessionsInput) ([]SessionView, error) {
	if input.ActorID == uuid.Nil {
		return nil, invalidInput("actor is required")
	}
	if input.OrganizationID != nil {
		if err := s.policy.AuthorizeOrganization(ctx, input.ActorID, *input.OrganizationID, ActionRead); err != nil {
			return nil, err
		}
	}
	rows, err := s.store.ListVisible(ctx, repository.ListFilter{
		UserID:         input.ActorID,
		OrganizationID: input.OrganizationID,
		Limit:          input.Limit,
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	views := make([]SessionView, 0, len(rows))
	for i := range rows {
		view, err := NewSessionView(&rows[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

type FinalizeInput struct {
	ActorID   uuid.UUID
	SessionID uuid.UUID
}

type FinalizeResult struct {
	OK               bool                    `json:"ok"`
	GeneratedContent *model.GeneratedContent `json:"generatedContent,omitempty"`
	Version          int                     `json:"version"`
	UpdatedAt        time.Time               `json:"updatedAt"`
	AlreadyCompleted bool                    `json:"alreadyCompleted"`
	Conflict         *ConflictPayload        `json:"-"`
}

// Finalize generates content from a snapshot of the answers and then
// commits status=completed together with the content. No lock is held
// while the generator runs; if the answers moved on in the meantime the
// commit loses its CAS and the caller receives a conflict.
func (s *InterviewService) Finalize(ctx context.Context, input FinalizeInput) (*FinalizeResult, error) {
	const op = "finalize"
	result, err := s.finalize(ctx, input)
	outcome := outcomeOf(err)
	if err == nil && result.Conflict != nil {
		outcome = "conflict"
	}
	s.metrics.ObserveOperation(op, outcome)
	return result, err
}

func (s *InterviewService) finalize(ctx context.Context, input FinalizeInput) (*FinalizeResult, error) {
	const op = "finalize"
	if input.ActorID == uuid.Nil || input.SessionID == uuid.Nil {
		return nil, invalidInput("actor and session are required")
	}

	loadCtx, cancelLoad := context.WithTimeout(ctx, s.casTimeout)
	session, err := s.loadAuthorized(loadCtx, op, input.ActorID, input.SessionID, ActionWrite)
	cancelLoad()
	if err != nil {
		return nil, err
	}
	if session.IsDeleted() {
		return nil, ErrSessionNotFound
	}
	if session.Status == model.StatusCompleted {
		return completedResult(session, true)
	}

	answers, err := session.Answers()
	if err != nil {
		return nil, err
	}
	if answers.AnsweredCount() == 0 {
		return nil, invalidState("finalize requires at least one answered question")
	}
	if s.generator == nil {
		return nil, fmt.Errorf("%w: no generator configured", ErrGenerationFailed)
	}

	content, err := s.generate(ctx, session, answers)
	if err != nil {
		s.log.Warn("generation failed",
			"op", op,
			"session_id", session.ID,
			"actor_id", input.ActorID,
			"error", err,
		)
		s.emit(ctx, model.EventGenerationFailed, session.ID, input.ActorID, session.Version, map[string]any{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	casCtx, cancel := context.WithTimeout(ctx, s.casTimeout)
	defer cancel()
	s.markDirty(ctx, session.ID)
	swap, err := s.store.CompareAndSwap(casCtx, session.ID, session.Version, func(row *model.InterviewSession) error {
		if row.IsDeleted() {
			return ErrSessionNotFound
		}
		row.Status = model.StatusCompleted
		return row.SetGenerated(content)
	})
	s.writeThrough(ctx, session.ID, swap, err)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if swap.Conflict {
		latest := swap.Session
		if latest.Status == model.StatusCompleted && !latest.IsDeleted() {
			return completedResult(latest, true)
		}
		payload, err := s.conflict(ctx, op, input.ActorID, latest)
		if err != nil {
			return nil, err
		}
		return &FinalizeResult{Conflict: payload, Version: latest.Version, UpdatedAt: latest.UpdatedAt}, nil
	}

	s.emit(ctx, model.EventFinalized, swap.Session.ID, input.ActorID, swap.Session.Version, nil)
	return completedResult(swap.Session, false)
}

func (s *InterviewService) generate(ctx context.Context, session *model.InterviewSession, answers model.AnswerDocument) (*model.GeneratedContent, error) {
	genCtx, cancel := context.WithTimeout(ctx, s.generationTimeout)
	defer cancel()

	start := time.Now()
	content, err := s.generator.Generate(genCtx, GenerationRequest{
		SessionID:   session.ID,
		ContentType: session.ContentType,
		Answers:     answers.Clone(),
	})
	if err == nil && content == nil {
		err = errors.New("generator returned no content")
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.metrics.ObserveGeneration(outcome, time.Since(start))
	return content, err
}

func completedResult(session *model.InterviewSession, already bool) (*FinalizeResult, error) {
	content, err := session.Generated()
	if err != nil {
		return nil, err
	}
	return &FinalizeResult{
		OK:               true,
		GeneratedContent: content,
		Version:          session.Version,
		UpdatedAt:        session.UpdatedAt,
		AlreadyCompleted: already,
	}, nil
}

type LifecycleInput struct {
	ActorID   uuid.UUID
	SessionID uuid.UUID
}

type LifecycleResult struct {
	OK        bool             `json:"ok"`
	Version   int              `json:"version"`
	UpdatedAt time.Time        `json:"updatedAt"`
	DeletedAt *time.Time       `json:"deletedAt,omitempty"`
	Conflict  *ConflictPayload `json:"-"`
}

// SoftDelete hides a session. Forbidden is checked before the deleted flag,
// so a non-member never learns whether the session was already deleted.
func (s *InterviewService) SoftDelete(ctx context.Context, input LifecycleInput) (*LifecycleResult, error) {
	const op = "soft_delete"
	result, err := s.toggleDeleted(ctx, op, input, ActionDelete, func(row *model.InterviewSession) error {
		if row.IsDeleted() {
			return ErrSessionNotFound
		}
		at := repository.Now()
		row.DeletedAt = &at
		return nil
	}, model.EventDeleted)
	s.metrics.ObserveOperation(op, outcomeOf(err))
	return result, err
}

// Restore clears the soft-delete marker of a deleted session.
func (s *InterviewService) Restore(ctx context.Context, input LifecycleInput) (*LifecycleResult, error) {
	const op = "restore"
	result, err := s.toggleDeleted(ctx, op, input, ActionRestore, func(row *model.InterviewSession) error {
		if !row.IsDeleted() {
			return invalidState("session is not deleted")
		}
		row.DeletedAt = nil
		return nil
	}, model.EventRestored)
	s.metrics.ObserveOperation(op, outcomeOf(err))
	return result, err
}

// toggleDeleted re-reads, re-authorizes and retries its CAS a bounded number
// of times; neither operation touches answers, so a version race is not a
// user-visible conflict until the retries run out.
func (s *InterviewService) toggleDeleted(
	ctx context.Context,
	op string,
	input LifecycleInput,
	action Action,
	mutate repository.MutateFunc,
	kind model.SessionEventKind,
) (*LifecycleResult, error) {
	if input.ActorID == uuid.Nil || input.SessionID == uuid.Nil {
		return nil, invalidInput("actor and session are required")
	}

	var latest *model.InterviewSession
	for attempt := 0; attempt < s.deleteRetryLimit; attempt++ {
		result, current, err := s.toggleOnce(ctx, op, input, action, mutate)
		if err != nil {
			return nil, err
		}
		if result != nil {
			s.emit(ctx, kind, input.SessionID, input.ActorID, result.Version, nil)
			return result, nil
		}
		latest = current
		s.log.Debug("lifecycle cas retry", "op", op, "session_id", input.SessionID, "attempt", attempt+1)
	}

	payload, err := s.conflict(ctx, op, input.ActorID, latest)
	if err != nil {
		return nil, err
	}
	return &LifecycleResult{Version: latest.Version, UpdatedAt: latest.UpdatedAt, Conflict: payload}, nil
}

func (s *InterviewService) toggleOnce(
	ctx context.Context,
	op string,
	input LifecycleInput,
	action Action,
	mutate repository.MutateFunc,
) (*LifecycleResult, *model.InterviewSession, error) {
	casCtx, cancel := context.WithTimeout(ctx, s.casTimeout)
	defer cancel()

	session, err := s.loadAuthorized(casCtx, op, input.ActorID, input.SessionID, action)
	if err != nil {
		return nil, nil, err
	}
	// Surface precondition failures before attempting the write.
	if err := mutate(session.Clone()); err != nil {
		return nil, nil, err
	}

	s.markDirty(ctx, session.ID)
	swap, err := s.store.CompareAndSwap(casCtx, session.ID, session.Version, mutate)
	s.writeThrough(ctx, session.ID, swap, err)
	if err != nil {
		return nil, nil, mapStoreError(err)
	}
	if swap.Conflict {
		return nil, swap.Session, nil
	}
	return &LifecycleResult{
		OK:        true,
		Version:   swap.Session.Version,
		UpdatedAt: swap.Session.UpdatedAt,
		DeletedAt: swap.Session.DeletedAt,
	}, nil, nil
}

// loadAuthorized reads the row including soft-deleted state and checks the
// action against freshly resolved membership. Denials are audited.
func (s *InterviewService) loadAuthorized(ctx context.Context, op string, actorID, sessionID uuid.UUID, action Action) (*model.InterviewSession, error) {
	session, err := s.store.Load(ctx, sessionID, true)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if err := s.policy.Authorize(ctx, actorID, session, action); err != nil {
		if errors.Is(err, ErrForbidden) {
			s.log.Info("access denied", "op", op, "session_id", sessionID, "actor_id", actorID, "action", action)
			s.emit(ctx, model.EventDenied, sessionID, actorID, session.Version, map[string]any{
				"op":     op,
				"action": action,
			})
		}
		return nil, err
	}
	return session, nil
}

func (s *InterviewService) readThrough(ctx context.Context, sessionID uuid.UUID) (*model.InterviewSession, error) {
	if s.cache != nil {
		if dirty, err := s.cache.IsDirty(ctx, sessionID); err == nil && !dirty {
			if cached, hit, cacheErr := s.cache.GetSession(ctx, sessionID); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	loadCtx, cancel := context.WithTimeout(ctx, s.casTimeout)
	defer cancel()
	session, err := s.store.Load(loadCtx, sessionID, true)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if session != nil && s.cache != nil {
		if dirty, err := s.cache.IsDirty(ctx, sessionID); err == nil && !dirty {
			if err := s.cache.SetSession(ctx, session); err != nil {
				s.log.Warn("fill session cache failed", "session_id", sessionID, "error", err)
			}
		}
	}
	return session, nil
}

func (s *InterviewService) markDirty(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.MarkDirty(ctx, id); err != nil {
		s.log.Warn("mark session cache dirty failed", "session_id", id, "error", err)
	}
}

// writeThrough puts the row a CAS committed, or lost against, into the
// cache. The cache keeps whichever version is newer. Store errors drop the
// entry instead.
func (s *InterviewService) writeThrough(ctx context.Context, id uuid.UUID, swap repository.SwapResult, swapErr error) {
	if s.cache == nil {
		return
	}
	if swapErr != nil || swap.Session == nil {
		s.invalidate(ctx, id)
		return
	}
	if err := s.cache.SetSession(ctx, swap.Session); err != nil {
		s.log.Warn("write session cache failed", "session_id", id, "error", err)
		s.invalidate(ctx, id)
	}
}

func (s *InterviewService) invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteSession(ctx, id); err != nil {
		s.log.Warn("invalidate session cache failed", "session_id", id, "error", err)
	}
}

// emit publishes an audit event. Publishing is best-effort and detached
// from request cancellation.
func (s *InterviewService) emit(ctx context.Context, kind model.SessionEventKind, sessionID, actorID uuid.UUID, version int, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	event := model.SessionEvent{
		ID:         uuid.New(),
		SessionID:  sessionID,
		ActorID:    actorID,
		Kind:       kind,
		Version:    version,
		OccurredAt: repository.Now(),
	}
	if len(payload) > 0 {
		raw, err := json.Marshal(payload)
		if err == nil {
			event.Payload = datatypes.JSON(raw)
		}
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, event); err != nil {
		s.log.Warn("publish session event failed", "kind", kind, "session_id", sessionID, "error", err)
	}
}

func normalizeQuestionIDs(ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, invalidInput("question id must not be blank")
		}
		if _, dup := seen[id]; dup {
			return nil, invalidInput(fmt.Sprintf("duplicate question id %q", id))
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
