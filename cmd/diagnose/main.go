package main

import (
	"context"
	"log"
	"os"
	"time"

	"ai-docquery-be/internal/config"
	"ai-docquery-be/internal/repository/unitofwork"
	"ai-docquery-be/pkg/database"
	"ai-docquery-be/pkg/embedding"
	"ai-docquery-be/pkg/embedding/jina"
	"ai-docquery-be/pkg/llm/factory"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Connectivity checker for every external dependency the server needs.
// Run before deploying to catch misconfiguration without starting the
// full container.
func main() {
	cfg := config.Load()

	pass := color.New(color.FgGreen, color.Bold).PrintfFunc()
	fail := color.New(color.FgRed, color.Bold).PrintfFunc()
	warn := color.New(color.FgYellow).PrintfFunc()
	head := color.New(color.FgCyan, color.Bold).PrintlnFunc()

	head("=== Dependency Diagnostics ===")

	// 1. Postgres + pgvector
	db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		fail("[FAIL] Postgres: %v\n", err)
	} else {
		pass("[PASS] Postgres connected\n")

		var hasVector bool
		row := db.Raw(`SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')`).Row()
		if err := row.Scan(&hasVector); err != nil || !hasVector {
			fail("[FAIL] pgvector extension missing (run cmd/migrate)\n")
		} else {
			pass("[PASS] pgvector extension present\n")
		}

		// Lexical probe exercises retrieval without touching any
		// embedding provider
		if seedUser := os.Getenv("SEED_USER_ID"); seedUser != "" {
			if userId, err := uuid.Parse(seedUser); err == nil {
				uow := unitofwork.NewRepositoryFactory(db).NewUnitOfWork(context.Background())
				hits, err := uow.DocumentChunkRepository().SearchLexicalWithScore(context.Background(), "report", 3, userId)
				if err != nil {
					fail("[FAIL] Lexical full-text search: %v\n", err)
				} else {
					pass("[PASS] Lexical full-text search (%d hits)\n", len(hits))
				}
			}
		}
	}

	// 2. Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		opt = &redis.Options{Addr: cfg.App.RedisURL}
	}
	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		warn("[WARN] Redis unreachable: %v (memory cache still works)\n", err)
	} else {
		pass("[PASS] Redis connected\n")
	}
	cancel()

	// 3. NATS
	if cfg.App.NatsURL == "" {
		warn("[WARN] NATS_URL not set, event mirroring disabled\n")
	} else {
		nc, err := nats.Connect(cfg.App.NatsURL, nats.Timeout(3*time.Second))
		if err != nil {
			warn("[WARN] NATS unreachable: %v\n", err)
		} else {
			pass("[PASS] NATS connected\n")
			nc.Close()
		}
	}

	// 4. LLM Provider
	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.OllamaBaseURL,
		cfg.Keys.HuggingFace,
	)
	if err != nil {
		fail("[FAIL] LLM provider %s: %v\n", cfg.Ai.LLMProvider, err)
	} else {
		genCtx, genCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer genCancel()
		if _, err := llmProvider.Generate(genCtx, "Reply with the single word: ok"); err != nil {
			fail("[FAIL] LLM generation (%s/%s): %v\n", cfg.Ai.LLMProvider, cfg.Ai.LLMModel, err)
		} else {
			pass("[PASS] LLM generation (%s/%s)\n", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)
		}
	}

	// 5. Embedding Provider
	var embeddingProvider embedding.EmbeddingProvider
	switch cfg.Ai.EmbeddingProvider {
	case "ollama":
		embeddingProvider = embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.OllamaModel)
	case "jina":
		embeddingProvider = jina.NewJinaProvider(cfg.Keys.Jina)
	default:
		embeddingProvider = embedding.NewGeminiProvider(cfg.Keys.GoogleGemini)
	}
	res, err := embeddingProvider.Generate("diagnostic probe", "retrieval_query")
	if err != nil {
		fail("[FAIL] Embedding generation (%s): %v\n", cfg.Ai.EmbeddingProvider, err)
	} else {
		pass("[PASS] Embedding generation (%s, dim=%d)\n", cfg.Ai.EmbeddingProvider, len(res.Embedding.Values))
	}

	log.Println("Diagnostics complete.")
}
