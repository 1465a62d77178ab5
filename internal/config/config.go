package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider identifies an LLM or embedding backend.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// LLM extraction backend
	LLMProvider     Provider
	LLMModel        string
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// Embeddings
	EmbedProvider  Provider
	EmbedModel     string
	EmbedDimension int

	// Tickets
	TicketTTL time.Duration

	// Batch processing
	Concurrency   int
	RetryBudget   int
	RetryBase     time.Duration
	VocabularyDir string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "ontograph"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "graph"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LLMProvider:     Provider(getEnv("ONTOGRAPH_LLM_PROVIDER", "ollama")),
		LLMModel:        getEnv("ONTOGRAPH_LLM_MODEL", "llama3.1"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),

		EmbedProvider:  Provider(getEnv("ONTOGRAPH_EMBED_PROVIDER", "ollama")),
		EmbedModel:     getEnv("ONTOGRAPH_EMBED_MODEL", "all-minilm:l6-v2"),
		EmbedDimension: getEnvInt("ONTOGRAPH_EMBED_DIMENSION", 384),

		TicketTTL: time.Duration(getEnvInt("ONTOGRAPH_TICKET_TTL_SECONDS", 60)) * time.Second,

		Concurrency:   getEnvInt("ONTOGRAPH_CONCURRENCY", 4),
		RetryBudget:   getEnvInt("ONTOGRAPH_RETRY_BUDGET", 3),
		RetryBase:     time.Duration(getEnvInt("ONTOGRAPH_RETRY_BASE_MS", 1000)) * time.Millisecond,
		VocabularyDir: getEnv("ONTOGRAPH_VOCABULARY_DIR", "./vocabularies"),

		LogFile:  getEnv("ONTOGRAPH_LOG_FILE", "/tmp/ontograph.log"),
		LogLevel: parseLogLevel(getEnv("ONTOGRAPH_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
