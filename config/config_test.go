package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// unsetEnv clears keys for the duration of the test so Load falls back to defaults.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		if old, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, old) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	unsetEnv(t,
		"CHROMA_PERSIST_DIR", "EMBED_MODEL", "CHROMA_COLLECTION", "OLLAMA_MODEL",
		"SYSTEM_PROMPT", "VECTOR_STORE", "LLM_PROVIDER", "TOP_K", "MAX_CONTEXT_CHARS",
		"INDEX_WATCH", "GENERATION_TIMEOUT", "DATA_DIR", "CHUNK_SIZE", "CHUNK_OVERLAP",
		"OPENAI_MODEL", "GEMINI_MODEL",
	)

	cfg := Load()

	assert.Equal(t, "./chroma_db", cfg.Store.PersistDir)
	assert.Equal(t, "medical-chatbot", cfg.Store.Collection)
	assert.Equal(t, "chroma", cfg.Store.Backend)
	assert.Equal(t, "all-minilm", cfg.Embedding.Model)
	assert.Equal(t, "llama3.2", cfg.LLM.Model)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.OpenAIModel)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.GeminiModel)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, DefaultSystemPrompt, cfg.LLM.SystemPrompt)
	assert.Equal(t, time.Duration(0), cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, 3000, cfg.Retrieval.MaxContextChars)
	assert.Equal(t, "data/", cfg.Index.DataDir)
	assert.Equal(t, 500, cfg.Index.ChunkSize)
	assert.Equal(t, 20, cfg.Index.ChunkOverlap)
	assert.False(t, cfg.Index.Watch)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CHROMA_COLLECTION", "cardiology")
	t.Setenv("VECTOR_STORE", "LOCAL")
	t.Setenv("TOP_K", "5")
	t.Setenv("INDEX_WATCH", "true")
	t.Setenv("GENERATION_TIMEOUT", "45s")
	t.Setenv("SYSTEM_PROMPT", "Answer briefly.")

	cfg := Load()

	assert.Equal(t, "cardiology", cfg.Store.Collection)
	assert.Equal(t, "local", cfg.Store.Backend)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.True(t, cfg.Index.Watch)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "Answer briefly.", cfg.LLM.SystemPrompt)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("MAX_CONTEXT_CHARS", "lots")
	t.Setenv("INDEX_WATCH", "maybe")

	cfg := Load()

	assert.Equal(t, 3000, cfg.Retrieval.MaxContextChars)
	assert.False(t, cfg.Index.Watch)
}
