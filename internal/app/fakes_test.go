package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"gopherai-interview/internal/model"
	"gopherai-interview/internal/repository"
)

type generatorFunc func(ctx context.Context, req GenerationRequest) (*model.GeneratedContent, error)

func (f generatorFunc) Generate(ctx context.Context, req GenerationRequest) (*model.GeneratedContent, error) {
	return f(ctx, req)
}

func staticGenerator(calls *int) Generator {
	return generatorFunc(func(_ context.Context, req GenerationRequest) (*model.GeneratedContent, error) {
		if calls != nil {
			*calls++
		}
		return &model.GeneratedContent{
			Category: "services",
			Summary:  "Generated summary",
			EmbeddingContext: model.EmbeddingContext{
				Version: "v1",
				RawText: "raw",
				Chunks:  []string{"raw"},
			},
		}, nil
	})
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.SessionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event model.SessionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) kinds() []model.SessionEventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.SessionEventKind, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

type recordingMetrics struct {
	mu          sync.Mutex
	operations  map[string]int
	conflicts   map[string]int
	generations map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		operations:  map[string]int{},
		conflicts:   map[string]int{},
		generations: map[string]int{},
	}
}

func (m *recordingMetrics) ObserveOperation(op, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[op+"/"+outcome]++
}

func (m *recordingMetrics) IncConflict(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts[op]++
}

func (m *recordingMetrics) ObserveGeneration(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generations[outcome]++
}

type memoryCache struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*model.InterviewSession
	dirty    map[uuid.UUID]bool
	gets     int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		sessions: map[uuid.UUID]*model.InterviewSession{},
		dirty:    map[uuid.UUID]bool{},
	}
}

func (c *memoryCache) GetSession(_ context.Context, id uuid.UUID) (*model.InterviewSession, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	s, ok := c.sessions[id]
	if !ok {
		return nil, false, nil
	}
	return s.Clone(), true, nil
}

// SetSession keeps the newer version, like the redis cache.
func (c *memoryCache) SetSession(_ context.Context, session *model.InterviewSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.sessions[session.ID]; ok && cur.Version >= session.Version {
		return nil
	}
	c.sessions[session.ID] = session.Clone()
	return nil
}

func (c *memoryCache) DeleteSession(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
	return nil
}

// expireMarkers stands in for the dirty marker TTL running out.
func (c *memoryCache) expireMarkers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = map[uuid.UUID]bool{}
}

func (c *memoryCache) version(id uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[id]; ok {
		return s.Version
	}
	return 0
}

func (c *memoryCache) MarkDirty(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty[id] = true
	return nil
}

func (c *memoryCache) IsDirty(_ context.Context, id uuid.UUID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty[id], nil
}

func (c *memoryCache) cached(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sessions[id]
	return ok
}

// interleavingCache runs a hook inside the next SetSession, before the row
// is written. It lets a writer commit between a reader's dirty check and its
// cache fill.
type interleavingCache struct {
	*memoryCache
	mu     sync.Mutex
	before func()
}

func (c *interleavingCache) interleave(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.before = fn
}

func (c *interleavingCache) SetSession(ctx context.Context, session *model.InterviewSession) error {
	c.mu.Lock()
	hook := c.before
	c.before = nil
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return c.memoryCache.SetSession(ctx, session)
}

// racingStore lets another writer commit right before each of the next
// `races` swaps, so those swaps lose their CAS.
type racingStore struct {
	*repository.MemorySessionStore
	mu    sync.Mutex
	races int
}

func (s *racingStore) CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int, mutate repository.MutateFunc) (repository.SwapResult, error) {
	s.mu.Lock()
	race := s.races > 0
	if race {
		s.races--
	}
	s.mu.Unlock()
	if race {
		if _, err := s.MemorySessionStore.CompareAndSwap(ctx, id, expectedVersion, func(*model.InterviewSession) error { return nil }); err != nil {
			return repository.SwapResult{}, err
		}
	}
	return s.MemorySessionStore.CompareAndSwap(ctx, id, expectedVersion, mutate)
}

// stallingStore blocks every load until the caller's deadline passes.
type stallingStore struct {
	*repository.MemorySessionStore
}

func (s stallingStore) Load(ctx context.Context, _ uuid.UUID, _ bool) (*model.InterviewSession, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type testEnv struct {
	svc       *InterviewService
	store     *repository.MemorySessionStore
	members   *repository.MemoryMembershipStore
	publisher *recordingPublisher
	metrics   *recordingMetrics
}

type envOption func(*InterviewServiceDeps)

func withGenerator(g Generator) envOption {
	return func(d *InterviewServiceDeps) { d.Generator = g }
}

func withStore(s SessionStore) envOption {
	return func(d *InterviewServiceDeps) { d.Store = s }
}

func withCache(c SessionCache) envOption {
	return func(d *InterviewServiceDeps) { d.Cache = c }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	env := &testEnv{
		store:     repository.NewMemorySessionStore(),
		members:   repository.NewMemoryMembershipStore(),
		publisher: &recordingPublisher{},
		metrics:   newRecordingMetrics(),
	}
	deps := InterviewServiceDeps{
		Store:             env.store,
		Members:           env.members,
		Generator:         staticGenerator(nil),
		Publisher:         env.publisher,
		Metrics:           env.metrics,
		CASTimeout:        time.Second,
		GenerationTimeout: time.Second,
		DeleteRetryLimit:  3,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	env.svc = NewInterviewService(deps)
	return env
}

func (e *testEnv) addMember(t *testing.T, orgID, userID uuid.UUID, role model.MemberRole) {
	t.Helper()
	require.NoError(t, e.members.Upsert(context.Background(), &model.OrganizationMember{
		OrganizationID: orgID,
		UserID:         userID,
		Role:           role,
	}))
}

func (e *testEnv) createPersonal(t *testing.T, owner uuid.UUID) *SessionView {
	t.Helper()
	view, err := e.svc.CreateSession(context.Background(), CreateSessionInput{
		ActorID:     owner,
		ContentType: model.ContentTypeService,
		QuestionIDs: []string{"q1", "q2"},
	})
	require.NoError(t, err)
	return view
}

func (e *testEnv) save(t *testing.T, actor, sessionID uuid.UUID, questionID, answer string, seen time.Time) *SaveResult {
	t.Helper()
	res, err := e.svc.SaveAnswerDiff(context.Background(), SaveAnswerDiffInput{
		ActorID:           actor,
		SessionID:         sessionID,
		QuestionID:        questionID,
		NewAnswer:         &answer,
		PreviousUpdatedAt: seen,
	})
	require.NoError(t, err)
	return res
}
