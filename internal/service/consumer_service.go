package service

import (
	"context"
	"encoding/json"
	"log"

	"ai-docquery-be/internal/dto"
	"ai-docquery-be/internal/entity"
	"ai-docquery-be/internal/repository/unitofwork"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService drains the completion topic and writes the audit
// trail, keeping QueryLog inserts off the request path.
type consumerService struct {
	pubSub     *gochannel.GoChannel
	topicName  string
	uowFactory unitofwork.RepositoryFactory
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
) IConsumerService {
	return &consumerService{
		pubSub:     pubSub,
		topicName:  topicName,
		uowFactory: uowFactory,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.QueryCompletedMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Printf("[ERROR] Failed to unmarshal completion message: %v", err)
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	log.Printf("[INFO] Recording query log for user %s (type=%s, steps=%d)",
		payload.UserId, payload.QueryType, payload.Steps)

	uow := cs.uowFactory.NewUnitOfWork(ctx)

	queryLog := &entity.QueryLog{
		UserId:    payload.UserId,
		Query:     payload.Query,
		QueryType: payload.QueryType,
		Steps:     payload.Steps,
		CacheHit:  payload.CacheHit,
		LatencyMs: payload.LatencyMs,
		Metrics:   payload.Metrics,
	}
	if err := uow.QueryLogRepository().Create(ctx, queryLog); err != nil {
		log.Printf("[ERROR] Failed to persist query log: %v", err)
		msg.Nack() // Nack for retriable errors
		return
	}

	msg.Ack()
}
