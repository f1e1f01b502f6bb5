package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"ai-docquery-be/internal/dto"
	"ai-docquery-be/internal/entity"
	"ai-docquery-be/internal/repository/specification"
	"ai-docquery-be/internal/repository/unitofwork"
	"ai-docquery-be/pkg/agent/loop"
	"ai-docquery-be/pkg/events"
	pktNats "ai-docquery-be/pkg/nats"
	"ai-docquery-be/pkg/store"

	"github.com/google/uuid"
)

const historyFetchLimit = 20

// AgentEngine is the reasoning loop as the service sees it
type AgentEngine interface {
	Run(ctx context.Context, userID string, query string, history []store.ChatTurn) (*loop.Outcome, error)
}

type IQueryService interface {
	Ask(ctx context.Context, userId uuid.UUID, req *dto.AskRequest) (*dto.AskResponse, error)
	CreateSession(ctx context.Context, userId uuid.UUID, req *dto.CreateSessionRequest) (*dto.CreateSessionResponse, error)
	ListSessions(ctx context.Context, userId uuid.UUID) ([]*dto.SessionResponse, error)
	GetHistory(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) ([]*dto.ChatHistoryResponse, error)
	GetQueryLogs(ctx context.Context, userId uuid.UUID) ([]*dto.QueryLogResponse, error)
}

type queryService struct {
	uowFactory unitofwork.RepositoryFactory
	engine     AgentEngine
	publisher  IPublisherService
	natsPub    *pktNats.Publisher
}

// NewQueryService wires the turn orchestration: run the agent, persist
// the conversation, and emit the completion event. natsPub may be nil;
// the external mirror is best-effort.
func NewQueryService(
	uowFactory unitofwork.RepositoryFactory,
	engine AgentEngine,
	publisher IPublisherService,
	natsPub *pktNats.Publisher,
) IQueryService {
	return &queryService{
		uowFactory: uowFactory,
		engine:     engine,
		publisher:  publisher,
		natsPub:    natsPub,
	}
}

func (s *queryService) Ask(ctx context.Context, userId uuid.UUID, req *dto.AskRequest) (*dto.AskResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	session, err := s.resolveSession(ctx, uow, userId, req)
	if err != nil {
		return nil, err
	}

	history, err := s.loadHistory(ctx, uow, session.Id)
	if err != nil {
		return nil, err
	}

	outcome, err := s.engine.Run(ctx, userId.String(), req.Query, history)
	if err != nil {
		return nil, err
	}

	if err := s.persistTurn(ctx, uow, session.Id, req.Query, outcome); err != nil {
		// The answer exists; losing the transcript is bad but not
		// worth failing the request over
		log.Printf("[ERROR] Failed to persist turn for session %s: %v", session.Id, err)
	}

	s.emitCompleted(ctx, userId, req.Query, outcome)

	return &dto.AskResponse{
		ChatSessionId: session.Id,
		Answer:        outcome.Answer,
		Clarification: outcome.Clarification,
		QueryType:     string(outcome.QueryType),
		Steps:         outcome.Steps,
		CacheHit:      outcome.CacheHit,
		Sources:       mapSources(outcome.Sources),
	}, nil
}

func (s *queryService) resolveSession(ctx context.Context, uow unitofwork.UnitOfWork, userId uuid.UUID, req *dto.AskRequest) (*entity.ChatSession, error) {
	repo := uow.ChatSessionRepository()

	if req.ChatSessionId == uuid.Nil {
		session := &entity.ChatSession{
			UserId: userId,
			Title:  truncateTitle(req.Query),
		}
		if err := repo.Create(ctx, session); err != nil {
			return nil, err
		}
		return session, nil
	}

	session, err := repo.FindOne(ctx,
		specification.ByID{ID: req.ChatSessionId},
		specification.ByUser{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("chat session %s not found", req.ChatSessionId)
	}
	return session, nil
}

func (s *queryService) loadHistory(ctx context.Context, uow unitofwork.UnitOfWork, sessionId uuid.UUID) ([]store.ChatTurn, error) {
	messages, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.BySession{SessionID: sessionId},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: historyFetchLimit},
	)
	if err != nil {
		return nil, err
	}

	// Reverse back to chronological order
	turns := make([]store.ChatTurn, len(messages))
	for i, msg := range messages {
		turns[len(messages)-1-i] = store.ChatTurn{
			Role:      msg.Role,
			Content:   msg.Content,
			Timestamp: msg.CreatedAt,
		}
	}
	return turns, nil
}

func (s *queryService) persistTurn(ctx context.Context, uow unitofwork.UnitOfWork, sessionId uuid.UUID, query string, outcome *loop.Outcome) error {
	repo := uow.ChatMessageRepository()

	userMsg := &entity.ChatMessage{
		Content:       query,
		Role:          "user",
		ChatSessionId: sessionId,
	}
	if err := repo.Create(ctx, userMsg); err != nil {
		return err
	}

	assistantMsg := &entity.ChatMessage{
		Content:       outcome.Answer,
		Role:          "assistant",
		ChatSessionId: sessionId,
		Citations:     citationsOf(outcome),
	}
	return repo.Create(ctx, assistantMsg)
}

func (s *queryService) emitCompleted(ctx context.Context, userId uuid.UUID, query string, outcome *loop.Outcome) {
	msg := dto.QueryCompletedMessage{
		UserId:    userId,
		Query:     query,
		QueryType: string(outcome.QueryType),
		Steps:     outcome.Steps,
		CacheHit:  outcome.CacheHit,
		LatencyMs: outcome.Metrics.LatencyMs,
		Metrics:   metricsMap(outcome.Metrics),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[ERROR] Failed to marshal completion message: %v", err)
		return
	}
	if err := s.publisher.Publish(ctx, payload); err != nil {
		log.Printf("[ERROR] Failed to publish completion message: %v", err)
	}

	if s.natsPub != nil {
		evt := events.NewQueryCompleted(userId.String(), query, string(outcome.QueryType),
			outcome.Steps, outcome.CacheHit, outcome.Metrics.LatencyMs)
		if err := s.natsPub.Publish(ctx, evt); err != nil {
			log.Printf("[WARN] Failed to mirror completion event to NATS: %v", err)
		}
	}
}

func (s *queryService) CreateSession(ctx context.Context, userId uuid.UUID, req *dto.CreateSessionRequest) (*dto.CreateSessionResponse, error) {
	session := &entity.ChatSession{
		UserId: userId,
		Title:  req.Title,
	}
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.ChatSessionRepository().Create(ctx, session); err != nil {
		return nil, err
	}
	return &dto.CreateSessionResponse{Id: session.Id}, nil
}

func (s *queryService) ListSessions(ctx context.Context, userId uuid.UUID) ([]*dto.SessionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	sessions, err := uow.ChatSessionRepository().FindAll(ctx,
		specification.ByUser{UserID: userId},
		specification.OrderBy{Field: "updated_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	out := make([]*dto.SessionResponse, len(sessions))
	for i, sess := range sessions {
		out[i] = &dto.SessionResponse{
			Id:        sess.Id,
			Title:     sess.Title,
			CreatedAt: sess.CreatedAt,
			UpdatedAt: sess.UpdatedAt,
		}
	}
	return out, nil
}

func (s *queryService) GetHistory(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) ([]*dto.ChatHistoryResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	session, err := uow.ChatSessionRepository().FindOne(ctx,
		specification.ByID{ID: sessionId},
		specification.ByUser{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("chat session %s not found", sessionId)
	}

	messages, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.BySession{SessionID: sessionId},
		specification.OrderBy{Field: "created_at", Desc: false},
	)
	if err != nil {
		return nil, err
	}

	out := make([]*dto.ChatHistoryResponse, len(messages))
	for i, msg := range messages {
		out[i] = &dto.ChatHistoryResponse{
			Id:        msg.Id,
			Role:      msg.Role,
			Content:   msg.Content,
			Citations: msg.Citations,
			CreatedAt: msg.CreatedAt,
		}
	}
	return out, nil
}

func (s *queryService) GetQueryLogs(ctx context.Context, userId uuid.UUID) ([]*dto.QueryLogResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	logs, err := uow.QueryLogRepository().FindAll(ctx,
		specification.ByUser{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: 100},
	)
	if err != nil {
		return nil, err
	}

	out := make([]*dto.QueryLogResponse, len(logs))
	for i, l := range logs {
		out[i] = &dto.QueryLogResponse{
			Id:        l.Id,
			Query:     l.Query,
			QueryType: l.QueryType,
			Steps:     l.Steps,
			CacheHit:  l.CacheHit,
			LatencyMs: l.LatencyMs,
			CreatedAt: l.CreatedAt,
		}
	}
	return out, nil
}

func mapSources(sources []store.RetrievedDocument) []dto.SourceDTO {
	out := make([]dto.SourceDTO, 0, len(sources))
	for _, src := range sources {
		chunkId, err := uuid.Parse(src.ID)
		if err != nil {
			continue
		}
		var documentId uuid.UUID
		if raw, ok := src.Metadata["document_id"].(string); ok {
			documentId, _ = uuid.Parse(raw)
		}
		out = append(out, dto.SourceDTO{
			ChunkId:    chunkId,
			DocumentId: documentId,
			Score:      src.Score,
			Excerpt:    truncateTitle(src.Content),
		})
	}
	return out
}

func citationsOf(outcome *loop.Outcome) map[string]interface{} {
	if len(outcome.Sources) == 0 {
		return nil
	}
	chunks := make([]map[string]interface{}, 0, len(outcome.Sources))
	for _, src := range outcome.Sources {
		chunks = append(chunks, map[string]interface{}{
			"chunk_id": src.ID,
			"score":    src.Score,
		})
	}
	return map[string]interface{}{"chunks": chunks}
}

func metricsMap(m store.Metrics) map[string]interface{} {
	return map[string]interface{}{
		"search_count":         m.SearchCount,
		"relevance_history":    m.RelevanceHist,
		"completeness_history": m.CompletionHist,
		"error_counters":       m.ErrorCounters,
	}
}

func truncateTitle(s string) string {
	const maxLen = 120
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
