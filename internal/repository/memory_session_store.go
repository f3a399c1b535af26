package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gopherai-interview/internal/model"
)

// MemorySessionStore keeps sessions in process. Used by the "memory"
// storage driver and by tests; CAS semantics match SessionStore.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*model.InterviewSession
	clock    func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[uuid.UUID]*model.InterviewSession),
		clock:    Now,
	}
}

func (s *MemorySessionStore) Create(ctx context.Context, session *model.InterviewSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = s.clock()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}
	if session.Version == 0 {
		session.Version = 1
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *MemorySessionStore) Load(ctx context.Context, id uuid.UUID, includeDeleted bool) (*model.InterviewSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok || (session.IsDeleted() && !includeDeleted) {
		return nil, nil
	}
	return session.Clone(), nil
}

func (s *MemorySessionStore) ListVisible(ctx context.Context, filter ListFilter) ([]model.InterviewSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.InterviewSession
	for _, session := range s.sessions {
		if session.IsDeleted() {
			continue
		}
		if filter.OrganizationID != nil {
			if session.OrganizationID == nil || *session.OrganizationID != *filter.OrganizationID {
				continue
			}
		} else if session.UserID != filter.UserID || session.OrganizationID != nil {
			continue
		}
		out = append(out, *session.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemorySessionStore) CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int, mutate MutateFunc) (SwapResult, error) {
	if err := ctx.Err(); err != nil {
		return SwapResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[id]
	if !ok {
		return SwapResult{}, ErrNotFound
	}
	if current.Version != expectedVersion {
		return SwapResult{Session: current.Clone(), Conflict: true}, nil
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return SwapResult{}, err
	}
	// Only the mutable columns are taken from the mutated copy.
	committed := current.Clone()
	committed.Status = next.Status
	committed.AnswersJSON = next.AnswersJSON
	committed.GeneratedJSON = next.GeneratedJSON
	committed.DeletedAt = next.DeletedAt
	committed.Version = current.Version + 1
	committed.UpdatedAt = nextUpdatedAt(s.clock, current.UpdatedAt)

	s.sessions[id] = committed
	return SwapResult{Session: committed.Clone()}, nil
}
