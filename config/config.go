package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultPersistDir is where the local backend keeps collection files.
const DefaultPersistDir = "./chroma_db"

// DefaultSystemPrompt is the instruction sent as the system message when
// SYSTEM_PROMPT is not set.
const DefaultSystemPrompt = "You are a helpful medical assistant. Use only the provided context when answering. If the answer is not in the context, say you don't know."

type Config struct {
	App       AppConfig
	Store     StoreConfig
	Embedding EmbeddingConfig
	LLM       LLMConfig
	Index     IndexConfig
	Retrieval RetrievalConfig
	Log       LogConfig
}

type AppConfig struct {
	Port        string
	Environment string
}

// StoreConfig addresses the collection. Backend selects the implementation:
// "chroma" (server), "local" (file under PersistDir) or "pgvector".
type StoreConfig struct {
	Backend     string
	PersistDir  string
	Collection  string
	ChromaURL   string
	DatabaseURL string
}

type EmbeddingConfig struct {
	Model         string
	OllamaBaseURL string
	BatchSize     int
}

type LLMConfig struct {
	Provider      string // "ollama", "openai" or "gemini"
	Model         string
	OpenAIModel   string
	GeminiModel   string
	OllamaBaseURL string
	OpenAIBaseURL string
	OpenAIAPIKey  string
	GeminiAPIKey  string
	SystemPrompt  string
	Timeout       time.Duration
}

type IndexConfig struct {
	DataDir          string
	ChunkSize        int
	ChunkOverlap     int
	Watch            bool
	UnidocLicenseKey string
}

type RetrievalConfig struct {
	TopK            int
	MaxContextChars int
}

type LogConfig struct {
	Level    string
	FilePath string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	ollamaURL := getEnv("OLLAMA_BASE_URL", "http://localhost:11434")

	return &Config{
		App: AppConfig{
			Port:        getEnv("APP_PORT", "8080"),
			Environment: getEnv("GO_ENV", "development"),
		},
		Store: StoreConfig{
			Backend:     strings.ToLower(getEnv("VECTOR_STORE", "chroma")),
			PersistDir:  getEnv("CHROMA_PERSIST_DIR", DefaultPersistDir),
			Collection:  getEnv("CHROMA_COLLECTION", "medical-chatbot"),
			ChromaURL:   getEnv("CHROMA_URL", "http://localhost:8000"),
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},
		Embedding: EmbeddingConfig{
			Model:         getEnv("EMBED_MODEL", "all-minilm"),
			OllamaBaseURL: ollamaURL,
			BatchSize:     getEnvAsInt("EMBED_BATCH_SIZE", 32),
		},
		LLM: LLMConfig{
			Provider:      strings.ToLower(getEnv("LLM_PROVIDER", "ollama")),
			Model:         getEnv("OLLAMA_MODEL", "llama3.2"),
			OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			OllamaBaseURL: ollamaURL,
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
			SystemPrompt:  getEnv("SYSTEM_PROMPT", DefaultSystemPrompt),
			Timeout:       getEnvAsDuration("GENERATION_TIMEOUT", 0),
		},
		Index: IndexConfig{
			DataDir:          getEnv("DATA_DIR", "data/"),
			ChunkSize:        getEnvAsInt("CHUNK_SIZE", 500),
			ChunkOverlap:     getEnvAsInt("CHUNK_OVERLAP", 20),
			Watch:            getEnvAsBool("INDEX_WATCH", false),
			UnidocLicenseKey: getEnv("UNIDOC_LICENSE_KEY", ""),
		},
		Retrieval: RetrievalConfig{
			TopK:            getEnvAsInt("TOP_K", 3),
			MaxContextChars: getEnvAsInt("MAX_CONTEXT_CHARS", 3000),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			FilePath: getEnv("LOG_FILE_PATH", ""),
		},
	}
}

// IsProduction reports whether GO_ENV selects production behaviour
// (JSON console logs, gin release mode).
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
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

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
