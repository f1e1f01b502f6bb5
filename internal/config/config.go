package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	Agent    AgentConfig
	Cache    CacheConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JWTSecret          string
}

type DatabaseConfig struct {
	Connection string
}

type APIKeys struct {
	GoogleGemini string
	HuggingFace  string
	Jina         string
}

type AIConfig struct {
	EmbeddingProvider string // "gemini", "ollama" or "jina"
	OllamaBaseURL     string
	OllamaModel       string
	LLMProvider       string // "ollama" or "huggingface"
	LLMModel          string // e.g. "llama3", "qwen2.5"
}

// AgentConfig carries every empirically-chosen knob of the reasoning
// pipeline so none of them is hard-coded at the call sites.
type AgentConfig struct {
	MaxSteps              int
	MaxRetries            int
	BaseDelayMs           int
	BackoffFactor         float64
	StepTimeoutMs         int
	HybridTimeoutMs       int
	RelevanceThreshold    float64
	CompletenessThreshold float64
	DenseWeight           float64
	SparseWeight          float64
	ExpansionCount        int
	TopK                  int
	ScoreThreshold        float64
	HistoryWindow         int
}

type CacheConfig struct {
	Backend    string // "memory" or "redis"
	TTLMinutes int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JWTSecret:          getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
			HuggingFace:  getEnv("HUGGINGFACE_API_KEY", ""),
			Jina:         getEnv("JINA_API_KEY", ""),
		},
		Ai: AIConfig{
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "gemini"),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:       getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			LLMProvider:       getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:          getEnv("LLM_MODEL", "llama3"),
		},
		Agent: AgentConfig{
			MaxSteps:              getEnvAsInt("AGENT_MAX_STEPS", 3),
			MaxRetries:            getEnvAsInt("AGENT_MAX_RETRIES", 2),
			BaseDelayMs:           getEnvAsInt("AGENT_BASE_DELAY_MS", 250),
			BackoffFactor:         getEnvAsFloat("AGENT_BACKOFF_FACTOR", 2.0),
			StepTimeoutMs:         getEnvAsInt("AGENT_STEP_TIMEOUT_MS", 30000),
			HybridTimeoutMs:       getEnvAsInt("AGENT_HYBRID_TIMEOUT_MS", 20000),
			RelevanceThreshold:    getEnvAsFloat("AGENT_RELEVANCE_THRESHOLD", 0.8),
			CompletenessThreshold: getEnvAsFloat("AGENT_COMPLETENESS_THRESHOLD", 0.7),
			DenseWeight:           getEnvAsFloat("AGENT_DENSE_WEIGHT", 0.7),
			SparseWeight:          getEnvAsFloat("AGENT_SPARSE_WEIGHT", 0.3),
			ExpansionCount:        getEnvAsInt("AGENT_EXPANSION_COUNT", 3),
			TopK:                  getEnvAsInt("AGENT_TOP_K", 10),
			ScoreThreshold:        getEnvAsFloat("AGENT_SCORE_THRESHOLD", 0.35),
			HistoryWindow:         getEnvAsInt("AGENT_HISTORY_WINDOW", 10),
		},
		Cache: CacheConfig{
			Backend:    getEnv("CACHE_BACKEND", "memory"),
			TTLMinutes: getEnvAsInt("CACHE_TTL_MINUTES", 60),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}
