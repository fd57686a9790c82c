// Package config resolves runtime settings from the environment and loads
// chaos scenario files for the experiment runner.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Provider names accepted in LLM_PROVIDER.
const (
	ProviderOllama = "ollama"
	ProviderGroq   = "groq"
)

// Settings holds the resolved runtime configuration for one process.
type Settings struct {
	LLMProvider      string
	OllamaBaseURL    string
	OllamaModel      string
	GroqAPIKey       string
	GroqModel        string
	EmbeddingModel   string
	MemoryPersistDir string
	UserID           string
	RuntimeDir       string
	LogLevel         string
	TelemetryMode    string
	MaxGraphIters    int
	EvalThreshold    float64
	MaxToolRetries   int

	// Fault injection flags
	SimulateToolTimeout  bool
	SimulateToolError    bool
	SimulateBadRetrieval bool
	SimulateLLMError     bool
	FailureSeed          int64
}

// Load resolves Settings from the environment, applying defaults for unset
// variables. Numeric variables that fail to parse abort the load.
func Load() (*Settings, error) {
	maxGraphIters, err := envInt("MAX_GRAPH_ITERS", 20)
	if err != nil {
		return nil, err
	}
	evalThreshold, err := envFloat("EVAL_THRESHOLD", 3.5)
	if err != nil {
		return nil, err
	}
	maxToolRetries, err := envInt("MAX_TOOL_RETRIES", 1)
	if err != nil {
		return nil, err
	}
	failureSeed, err := envInt64("FAILURE_SEED", 42)
	if err != nil {
		return nil, err
	}

	return &Settings{
		LLMProvider:      strings.ToLower(strings.TrimSpace(envStr("LLM_PROVIDER", ProviderOllama))),
		OllamaBaseURL:    envStr("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:      envStr("OLLAMA_MODEL", "qwen2.5:7b-instruct"),
		GroqAPIKey:       envStr("GROQ_API_KEY", ""),
		GroqModel:        envStr("GROQ_MODEL", "llama-3.1-8b-instant"),
		EmbeddingModel:   envStr("EMBEDDING_MODEL", "all-MiniLM-L6-v2"),
		MemoryPersistDir: envStr("CHROMA_PERSIST_DIR", "./data/chroma_persistent"),
		UserID:           envStr("USER_ID", "local_user"),
		RuntimeDir:       envStr("RUNTIME_DIR", "./runtime"),
		LogLevel:         envStr("LOG_LEVEL", "INFO"),
		TelemetryMode:    strings.ToLower(strings.TrimSpace(envStr("TELEMETRY_MODE", "minimal"))),
		MaxGraphIters:    maxGraphIters,
		EvalThreshold:    evalThreshold,
		MaxToolRetries:   maxToolRetries,

		SimulateToolTimeout:  envBool("SIMULATE_TOOL_TIMEOUT"),
		SimulateToolError:    envBool("SIMULATE_TOOL_ERROR"),
		SimulateBadRetrieval: envBool("SIMULATE_BAD_RETRIEVAL"),
		SimulateLLMError:     envBool("SIMULATE_LLM_ERROR"),
		FailureSeed:          failureSeed,
	}, nil
}

// Model returns the chat model name for the active provider.
func (s *Settings) Model() string {
	if s.LLMProvider == ProviderGroq {
		return s.GroqModel
	}
	return s.OllamaModel
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), "true")
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	return n, nil
}

func envInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	return f, nil
}
