package bootstrap

import (
	"context"
	"log"
	"time"

	"ai-docquery-be/internal/adapter"
	"ai-docquery-be/internal/config"
	"ai-docquery-be/internal/controller"
	"ai-docquery-be/internal/handler"
	"ai-docquery-be/internal/pkg/logger"
	"ai-docquery-be/internal/repository/unitofwork"
	"ai-docquery-be/internal/service"
	"ai-docquery-be/internal/websocket"
	"ai-docquery-be/pkg/agent/classify"
	"ai-docquery-be/pkg/agent/loop"
	"ai-docquery-be/pkg/agent/retrieve"
	"ai-docquery-be/pkg/agent/route"
	"ai-docquery-be/pkg/agent/structured"
	"ai-docquery-be/pkg/cache"
	"ai-docquery-be/pkg/embedding"
	"ai-docquery-be/pkg/embedding/jina"
	"ai-docquery-be/pkg/events"
	"ai-docquery-be/pkg/llm/factory"

	pktNats "ai-docquery-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const queryCompletedTopic = "query_completed"

type Container struct {
	// Controllers
	QueryController    controller.IQueryController
	DocumentController controller.IDocumentController
	RecordController   controller.IRecordController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	// WebSockets
	ProgressHandler *handler.ProgressHandler
	WebSocketHub    *websocket.Hub
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	agentLogger := log.New(log.Writer(), "[agent] ", log.LstdFlags)

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. AI Providers
	var embeddingProvider embedding.EmbeddingProvider
	if cfg.Ai.EmbeddingProvider == "ollama" {
		embeddingProvider = embedding.NewOllamaProvider(
			cfg.Ai.OllamaBaseURL,
			cfg.Ai.OllamaModel,
		)
		log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.OllamaModel)
	} else if cfg.Ai.EmbeddingProvider == "jina" {
		embeddingProvider = jina.NewJinaProvider(cfg.Keys.Jina)
		log.Printf("[INFO] Using Embedding Provider: JINA AI")
	} else {
		embeddingProvider = embedding.NewGeminiProvider(cfg.Keys.GoogleGemini)
		log.Printf("[INFO] Using Embedding Provider: GEMINI")
	}

	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.OllamaBaseURL,
		cfg.Keys.HuggingFace,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// 4. Infrastructure
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	}

	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	cacheTTL := time.Duration(cfg.Cache.TTLMinutes) * time.Minute
	var resultCache cache.Cache
	if cfg.Cache.Backend == "redis" {
		resultCache = cache.NewRedisCache(rdb, "docquery")
		log.Printf("[INFO] Using Cache Backend: REDIS")
	} else {
		resultCache = cache.NewMemoryCache(cacheTTL)
		log.Printf("[INFO] Using Cache Backend: MEMORY")
	}

	// WebSocket Hub for progress streaming
	wsLogger := logger.NewIsolatedLogger("logs/progress.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// 5. Agent Pipeline
	classifier := classify.NewClassifier(llmProvider, resultCache, cacheTTL, agentLogger)

	recordStore := adapter.NewRecordStoreAdapter(uowFactory)
	schema, err := recordStore.LoadSchema(context.Background())
	if err != nil {
		log.Printf("[WARN] Failed to discover record schema, structured queries degraded: %v", err)
		schema = structured.Schema{}
	}
	generator := structured.NewGenerator(llmProvider, recordStore, schema, agentLogger)

	vectorSearch := adapter.NewVectorSearchAdapter(uowFactory)
	retriever := retrieve.NewRetriever(llmProvider, embeddingProvider, vectorSearch, retrieve.Config{
		DenseWeight:    cfg.Agent.DenseWeight,
		SparseWeight:   cfg.Agent.SparseWeight,
		ExpansionCount: cfg.Agent.ExpansionCount,
		TopK:           cfg.Agent.TopK,
		ScoreThreshold: cfg.Agent.ScoreThreshold,
	}, agentLogger)

	router := route.NewRouter(
		generator,
		retriever,
		resultCache,
		cacheTTL,
		time.Duration(cfg.Agent.HybridTimeoutMs)*time.Millisecond,
		agentLogger,
	)

	progress := func(userID, stage, detail string) {
		uid, err := uuid.Parse(userID)
		if err != nil {
			return
		}
		wsHub.SendProgress(uid, websocket.ProgressEvent{
			Stage:  stage,
			Detail: detail,
			At:     time.Now(),
		})
	}

	engine := loop.NewEngine(llmProvider, classifier, router, loop.Config{
		MaxSteps:              cfg.Agent.MaxSteps,
		MaxRetries:            cfg.Agent.MaxRetries,
		BaseDelay:             time.Duration(cfg.Agent.BaseDelayMs) * time.Millisecond,
		BackoffFactor:         cfg.Agent.BackoffFactor,
		StepTimeout:           time.Duration(cfg.Agent.StepTimeoutMs) * time.Millisecond,
		RelevanceThreshold:    cfg.Agent.RelevanceThreshold,
		CompletenessThreshold: cfg.Agent.CompletenessThreshold,
		HistoryWindow:         cfg.Agent.HistoryWindow,
	}, agentLogger, progress)

	// 6. Services
	publisherService := service.NewPublisherService(queryCompletedTopic, pubSub)
	consumerService := service.NewConsumerService(pubSub, queryCompletedTopic, uowFactory)

	// Ingest and import invalidate routed results: cached answers may
	// cite documents that no longer reflect the corpus. The change is
	// also announced over NATS so peer instances drop their caches.
	invalidate := func(ctx context.Context) {
		router.ClearCache(ctx)
		if natsPub != nil {
			if err := natsPub.Publish(ctx, events.NewCorpusChanged("", "local")); err != nil {
				log.Printf("[WARN] Failed to announce corpus change: %v", err)
			}
		}
	}
	if natsSub != nil {
		err := natsSub.Subscribe("events."+events.CorpusChangedType, "docquery-cache-invalidator",
			func(ctx context.Context, _ events.Event) error {
				router.ClearCache(ctx)
				return nil
			})
		if err != nil {
			log.Printf("[WARN] Failed to subscribe to corpus changes: %v", err)
		}
	}

	documentService := service.NewDocumentService(uowFactory, embeddingProvider, invalidate)
	recordService := service.NewRecordService(uowFactory, invalidate)
	queryService := service.NewQueryService(uowFactory, engine, publisherService, natsPub)

	sysLogger.Info("Bootstrap", "Container initialized", map[string]interface{}{
		"llm_provider":       cfg.Ai.LLMProvider,
		"embedding_provider": cfg.Ai.EmbeddingProvider,
		"cache_backend":      cfg.Cache.Backend,
		"collections":        len(schema),
	})

	return &Container{
		QueryController:    controller.NewQueryController(queryService),
		DocumentController: controller.NewDocumentController(documentService),
		RecordController:   controller.NewRecordController(recordService),

		ConsumerService: consumerService,
		ProgressHandler: handler.NewProgressHandler(wsHub, wsLogger),
		WebSocketHub:    wsHub,
	}
}
