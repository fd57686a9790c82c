// Package llm provides the text-in/text-out model client used by the
// planning nodes, plus the lenient JSON extraction and schema validation
// applied to structured model output.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tripwright/tripwright/pkg/config"
	"github.com/tripwright/tripwright/pkg/telemetry"
)

// ErrEmptyResponse indicates the model returned no usable completion.
var ErrEmptyResponse = errors.New("llm returned empty response")

// Request is one prompt. Context and Tags only affect logging.
type Request struct {
	System  string
	User    string
	Context *telemetry.LogContext
	Tags    map[string]string
}

// Client is a text-in/text-out model. Implementations must propagate
// errors as-is; callers decide whether a failure is fatal.
type Client interface {
	InvokeText(ctx context.Context, req Request) (string, error)
	Model() string
}

// ChatCompleter is the slice of the go-openai client the Client uses.
// Tests substitute a scripted implementation.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Observability carried by the client. All fields are optional.
type Observability struct {
	Metrics    *telemetry.MetricsCollector
	Controller *telemetry.Controller
	Tracker    *telemetry.FailureTracker
	Faults     *telemetry.FaultInjector
	Stage      string
}

// OpenAIClient speaks the OpenAI chat-completions dialect. Both supported
// providers (Groq's hosted API and a local Ollama server) expose it.
type OpenAIClient struct {
	chat        ChatCompleter
	model       string
	temperature float32
	obs         Observability
	logger      *telemetry.Logger
}

const (
	groqBaseURL        = "https://api.groq.com/openai/v1"
	defaultTemperature = 0.1
)

// NewClient builds the model client for the configured provider.
func NewClient(settings *config.Settings, obs Observability) (*OpenAIClient, error) {
	var cfg openai.ClientConfig
	switch settings.LLMProvider {
	case config.ProviderGroq:
		if settings.GroqAPIKey == "" {
			return nil, errors.New("GROQ_API_KEY is required when LLM_PROVIDER=groq")
		}
		cfg = openai.DefaultConfig(settings.GroqAPIKey)
		cfg.BaseURL = groqBaseURL
	case config.ProviderOllama:
		// Ollama ignores the key but the client requires one.
		cfg = openai.DefaultConfig("ollama")
		cfg.BaseURL = settings.OllamaBaseURL + "/v1"
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER: %q", settings.LLMProvider)
	}
	return NewClientWithCompleter(openai.NewClientWithConfig(cfg), settings.Model(), obs), nil
}

// NewClientWithCompleter wraps a prebuilt chat completer. Used directly by
// tests and the experiment harness.
func NewClientWithCompleter(chat ChatCompleter, model string, obs Observability) *OpenAIClient {
	return &OpenAIClient{
		chat:        chat,
		model:       model,
		temperature: defaultTemperature,
		obs:         obs,
		logger:      telemetry.GetLogger("llm").WithTracker(obs.Tracker),
	}
}

// Model returns the configured chat model name.
func (c *OpenAIClient) Model() string { return c.model }

// InvokeText performs one completion. Counters llm_calls, llm_errors and
// the llm_latency_ms timer are recorded when metrics are attached; the
// fault-injection LLM site fires before any network work.
func (c *OpenAIClient) InvokeText(ctx context.Context, req Request) (string, error) {
	if c.obs.Metrics != nil {
		c.obs.Metrics.Inc("llm_calls", 1)
	}
	started := time.Now()

	if c.obs.Faults != nil {
		if err := c.obs.Faults.MaybeLLMError(c.stage(req)); err != nil {
			return "", c.fail(req, started, err)
		}
	}

	resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
	})
	if err != nil {
		return "", c.fail(req, started, fmt.Errorf("chat completion: %w", err))
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", c.fail(req, started, ErrEmptyResponse)
	}

	out := resp.Choices[0].Message.Content
	elapsed := msSince(started)
	if c.obs.Metrics != nil {
		c.obs.Metrics.ObserveMS("llm_latency_ms", elapsed)
	}
	c.logger.Info("LLM call completed", "llm_call", req.Context, map[string]any{
		"latency_ms": elapsed,
		"tags":       req.Tags,
		"chars":      len(out),
	})
	if c.obs.Controller != nil {
		c.obs.Controller.Trace("llm_call", map[string]any{
			"latency_ms": elapsed,
			"tags":       req.Tags,
		}, req.Context)
	}
	return out, nil
}

func (c *OpenAIClient) stage(req Request) string {
	if s, ok := req.Tags["node"]; ok {
		return s
	}
	if c.obs.Stage != "" {
		return c.obs.Stage
	}
	return "llm"
}

func (c *OpenAIClient) fail(req Request, started time.Time, err error) error {
	elapsed := msSince(started)
	if c.obs.Metrics != nil {
		c.obs.Metrics.Inc("llm_errors", 1)
		c.obs.Metrics.ObserveMS("llm_latency_ms", elapsed)
	}
	c.logger.LogEvent(slog.LevelError, "LLM call failed", "llm_error", req.Context, map[string]any{
		"latency_ms": elapsed,
		"error":      err.Error(),
		"tags":       req.Tags,
	})
	if c.obs.Controller != nil {
		c.obs.Controller.Trace("llm_error", map[string]any{
			"latency_ms": elapsed,
			"error":      err.Error(),
		}, req.Context)
	}
	if c.obs.Tracker != nil {
		c.obs.Tracker.RecordFailure(telemetry.Failure{
			Category:     telemetry.CategoryLLM,
			Severity:     telemetry.SeverityHigh,
			GraphNode:    c.stage(req),
			ErrorType:    fmt.Sprintf("%T", err),
			ErrorMessage: err.Error(),
			LLMModel:     c.model,
			LatencyMS:    elapsed,
			Tags:         []string{"llm"},
		})
	}
	return err
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Nanoseconds()) / 1e6
}
