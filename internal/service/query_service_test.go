package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"ai-docquery-be/internal/dto"
	"ai-docquery-be/internal/entity"
	"ai-docquery-be/internal/repository/contract"
	"ai-docquery-be/internal/repository/specification"
	"ai-docquery-be/internal/repository/unitofwork"
	"ai-docquery-be/pkg/agent/loop"
	"ai-docquery-be/pkg/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUow backs the session and message repositories with slices so
// the orchestration can be tested without a database.
type fakeUow struct {
	sessions *fakeSessionRepo
	messages *fakeMessageRepo
}

func newFakeUow() *fakeUow {
	return &fakeUow{
		sessions: &fakeSessionRepo{},
		messages: &fakeMessageRepo{},
	}
}

func (f *fakeUow) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork { return f }

func (f *fakeUow) Begin(ctx context.Context) error { return nil }
func (f *fakeUow) Commit() error                   { return nil }
func (f *fakeUow) Rollback() error                 { return nil }

func (f *fakeUow) DocumentRepository() contract.DocumentRepository           { return nil }
func (f *fakeUow) DocumentChunkRepository() contract.DocumentChunkRepository { return nil }
func (f *fakeUow) RecordRepository() contract.RecordRepository               { return nil }
func (f *fakeUow) ChatSessionRepository() contract.ChatSessionRepository     { return f.sessions }
func (f *fakeUow) ChatMessageRepository() contract.ChatMessageRepository     { return f.messages }
func (f *fakeUow) QueryLogRepository() contract.QueryLogRepository           { return nil }

type fakeSessionRepo struct {
	created []*entity.ChatSession
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *entity.ChatSession) error {
	session.Id = uuid.New()
	session.CreatedAt = time.Now()
	r.created = append(r.created, session)
	return nil
}

func (r *fakeSessionRepo) Update(ctx context.Context, session *entity.ChatSession) error { return nil }
func (r *fakeSessionRepo) Delete(ctx context.Context, id uuid.UUID) error                { return nil }

func (r *fakeSessionRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ChatSession, error) {
	if len(r.created) == 0 {
		return nil, nil
	}
	return r.created[0], nil
}

func (r *fakeSessionRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatSession, error) {
	return r.created, nil
}

type fakeMessageRepo struct {
	created []*entity.ChatMessage
}

func (r *fakeMessageRepo) Create(ctx context.Context, message *entity.ChatMessage) error {
	message.Id = uuid.New()
	message.CreatedAt = time.Now()
	r.created = append(r.created, message)
	return nil
}

func (r *fakeMessageRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatMessage, error) {
	return r.created, nil
}

func (r *fakeMessageRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	return int64(len(r.created)), nil
}

type fakeEngine struct {
	outcome *loop.Outcome
	err     error
	gotUser string
	gotHist []store.ChatTurn
}

func (e *fakeEngine) Run(ctx context.Context, userID string, query string, history []store.ChatTurn) (*loop.Outcome, error) {
	e.gotUser = userID
	e.gotHist = history
	return e.outcome, e.err
}

type capturePublisher struct {
	payloads [][]byte
}

func (p *capturePublisher) Publish(ctx context.Context, payload []byte) error {
	p.payloads = append(p.payloads, payload)
	return nil
}

func TestAskCreatesSessionAndPersistsTurn(t *testing.T) {
	uow := newFakeUow()
	engine := &fakeEngine{
		outcome: &loop.Outcome{
			Answer:    "Revenue was 350.",
			Steps:     2,
			QueryType: store.QueryTypeStructured,
			Sources: []store.RetrievedDocument{
				{ID: uuid.New().String(), Content: "chunk text", Score: 0.91,
					Metadata: map[string]interface{}{"document_id": uuid.New().String()}},
			},
			Metrics: store.Metrics{SearchCount: 2, LatencyMs: 120},
		},
	}
	pub := &capturePublisher{}
	svc := NewQueryService(uow, engine, pub, nil)

	userId := uuid.New()
	res, err := svc.Ask(context.Background(), userId, &dto.AskRequest{
		Query: "what was Q1 revenue?",
	})
	require.NoError(t, err)

	assert.Equal(t, "Revenue was 350.", res.Answer)
	assert.Equal(t, "STRUCTURED", res.QueryType)
	assert.Len(t, res.Sources, 1)
	assert.Equal(t, userId.String(), engine.gotUser)

	// A fresh session titled from the query
	require.Len(t, uow.sessions.created, 1)
	assert.Equal(t, "what was Q1 revenue?", uow.sessions.created[0].Title)
	assert.Equal(t, uow.sessions.created[0].Id, res.ChatSessionId)

	// Both turns persisted, assistant carries citations
	require.Len(t, uow.messages.created, 2)
	assert.Equal(t, "user", uow.messages.created[0].Role)
	assert.Equal(t, "assistant", uow.messages.created[1].Role)
	assert.NotNil(t, uow.messages.created[1].Citations)

	// Completion event published with the turn telemetry
	require.Len(t, pub.payloads, 1)
	var msg dto.QueryCompletedMessage
	require.NoError(t, json.Unmarshal(pub.payloads[0], &msg))
	assert.Equal(t, userId, msg.UserId)
	assert.Equal(t, 2, msg.Steps)
	assert.Equal(t, int64(120), msg.LatencyMs)
}

func TestAskReusesExistingSessionWithHistory(t *testing.T) {
	uow := newFakeUow()
	sess := &entity.ChatSession{UserId: uuid.New(), Title: "existing"}
	require.NoError(t, uow.sessions.Create(context.Background(), sess))
	require.NoError(t, uow.messages.Create(context.Background(), &entity.ChatMessage{
		Content: "earlier question", Role: "user", ChatSessionId: sess.Id,
	}))

	engine := &fakeEngine{outcome: &loop.Outcome{Answer: "ok", QueryType: store.QueryTypeUnstructured}}
	svc := NewQueryService(uow, engine, &capturePublisher{}, nil)

	res, err := svc.Ask(context.Background(), sess.UserId, &dto.AskRequest{
		ChatSessionId: sess.Id,
		Query:         "follow up",
	})
	require.NoError(t, err)

	assert.Equal(t, sess.Id, res.ChatSessionId)
	require.NotEmpty(t, engine.gotHist)
	assert.Equal(t, "earlier question", engine.gotHist[0].Content)
	// No second session created
	assert.Len(t, uow.sessions.created, 1)
}

func TestAskEngineErrorPropagatesWithoutPersisting(t *testing.T) {
	uow := newFakeUow()
	engine := &fakeEngine{err: assert.AnError}
	pub := &capturePublisher{}
	svc := NewQueryService(uow, engine, pub, nil)

	_, err := svc.Ask(context.Background(), uuid.New(), &dto.AskRequest{Query: "anything"})
	require.Error(t, err)

	assert.Empty(t, uow.messages.created)
	assert.Empty(t, pub.payloads)
}

func TestAskClarificationOutcome(t *testing.T) {
	uow := newFakeUow()
	engine := &fakeEngine{outcome: &loop.Outcome{
		Answer:        "Which quarter do you mean?",
		Clarification: true,
		QueryType:     store.QueryTypeStructured,
	}}
	svc := NewQueryService(uow, engine, &capturePublisher{}, nil)

	res, err := svc.Ask(context.Background(), uuid.New(), &dto.AskRequest{Query: "revenue?"})
	require.NoError(t, err)

	assert.True(t, res.Clarification)
	assert.Empty(t, res.Sources)
}

func TestTruncateTitle(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	got := truncateTitle(string(long))
	assert.Len(t, got, 123)
	assert.Equal(t, "short", truncateTitle("short"))
}
