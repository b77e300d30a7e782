// Package llm is the gateway to the large-language-model backends: local
// Ollama-style endpoints and OpenAI-style endpoints. It exposes three
// operations — GenerateText, GenerateJSON and GenerateYesNo — over a
// tagged variant of backend families rather than an inheritance
// hierarchy, so per-call parameter overrides stay explicit.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/jeremyandrews/argus/internal/logger"
)

// Backend is the tagged variant discriminating which wire protocol a
// Params value should be dispatched over.
type Backend string

const (
	BackendOllama Backend = "ollama"
	BackendOpenAI Backend = "openai"
)

// SchemaTag selects a structured-output schema for backends that support
// JSON-mode binding.
type SchemaTag string

const (
	SchemaGeneric         SchemaTag = "generic"
	SchemaEntityExtraction SchemaTag = "entity_extraction"
	SchemaThreatLocation  SchemaTag = "threat_location"
)

// ThinkingConfig controls reasoning-trace handling for models that emit
// <think> blocks (spec §4.1 design note).
type ThinkingConfig struct {
	StripThinkingTags bool
	TopP              float64
	TopK              int
	MinP              float64
}

// Params carries the per-request overrides the gateway accepts. Backend,
// Host, Port and Model select the wire target; everything else tunes the
// single request.
type Params struct {
	Backend     Backend
	Host        string
	Port        string
	Model       string
	APIKey      string // required for BackendOpenAI
	Temperature float64
	Thinking    *ThinkingConfig
	NoThink     bool
	Timeout     time.Duration
}

var thinkTagRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

const defaultTimeout = 60 * time.Second

// Gateway dispatches generation requests to whichever backend a Params
// value names. It is stateless across calls: no cross-request caches, no
// shared mutable client state beyond a pooled *http.Client.
type Gateway struct {
	client *http.Client
}

// New creates a Gateway with a connection-pooled HTTP client.
func New() *Gateway {
	return &Gateway{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// GenerateText returns best-effort text for prompt. On any backend
// failure it returns ("", nil) rather than faulting — callers treat a
// nil error with empty text as "no result", per spec §4.1.
func (g *Gateway) GenerateText(ctx context.Context, prompt string, params Params) (string, error) {
	text, err := g.dispatch(ctx, prompt, params, "")
	if err != nil {
		logger.Warn("llm generate_text failed", "backend", params.Backend, "model", params.Model, "error", err)
		return "", nil
	}
	return text, nil
}

// GenerateJSON instructs the backend to emit JSON bound to the given
// schema tag (for backends that support structured output) and returns
// the raw JSON text, or "" on failure.
func (g *Gateway) GenerateJSON(ctx context.Context, prompt string, params Params, schema SchemaTag) (string, error) {
	text, err := g.dispatch(ctx, prompt, params, schema)
	if err != nil {
		logger.Warn("llm generate_json failed", "backend", params.Backend, "model", params.Model, "schema", schema, "error", err)
		return "", nil
	}
	return text, nil
}

// YesNo is the trivalent result of GenerateYesNo.
type YesNo int

const (
	Unknown YesNo = iota
	Yes
	No
)

// GenerateYesNo is a convenience over GenerateText for yes/no prompts.
func (g *Gateway) GenerateYesNo(ctx context.Context, prompt string, params Params) (YesNo, error) {
	text, err := g.GenerateText(ctx, prompt, params)
	if err != nil {
		return Unknown, err
	}
	switch {
	case strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "yes"):
		return Yes, nil
	case strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "no"):
		return No, nil
	default:
		return Unknown, nil
	}
}

// dispatch performs one request against the primary host/port/model in
// params, with the caller responsible for trying a fallback (Worker in
// worker.go owns fallback sequencing per spec §4.1).
func (g *Gateway) dispatch(ctx context.Context, prompt string, params Params, schema SchemaTag) (string, error) {
	if params.NoThink {
		prompt = prompt + "\n/no_think"
	}

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		raw string
		err error
	)
	switch params.Backend {
	case BackendOpenAI:
		raw, err = g.callOpenAI(ctx, prompt, params, schema)
	default:
		raw, err = g.callOllama(ctx, prompt, params, schema)
	}
	if err != nil {
		return "", err
	}

	if params.Thinking != nil && params.Thinking.StripThinkingTags {
		raw = stripThinkingTags(raw)
	}
	return raw, nil
}

// stripThinkingTags removes <think>...</think> spans. If stripping would
// empty the response, the original text is returned unchanged — models
// that wrap their entire answer in a thinking block still produce
// something usable downstream (spec §4.1, §9 design note).
func stripThinkingTags(text string) string {
	stripped := strings.TrimSpace(thinkTagRe.ReplaceAllString(text, ""))
	if stripped == "" {
		return text
	}
	return stripped
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	MinP        float64 `json:"min_p,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
}

func (g *Gateway) callOllama(ctx context.Context, prompt string, params Params, schema SchemaTag) (string, error) {
	opts := ollamaOptions{Temperature: params.Temperature}
	if params.Thinking != nil {
		opts.TopP = params.Thinking.TopP
		opts.TopK = params.Thinking.TopK
		opts.MinP = params.Thinking.MinP
	}
	req := ollamaChatRequest{
		Model:    params.Model,
		Messages: []ollamaMessage{{Role: "user", Content: prompt}},
		Options:  opts,
	}
	if schema != "" {
		req.Format = "json"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	url := fmt.Sprintf("http://%s:%s/api/chat", params.Host, params.Port)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode, string(b))
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	return out.Message.Content, nil
}

type openAIChatRequest struct {
	Model          string              `json:"model"`
	Messages       []ollamaMessage     `json:"messages"`
	Temperature    float64             `json:"temperature,omitempty"`
	ResponseFormat *openAIRespFormat   `json:"response_format,omitempty"`
}

type openAIRespFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message ollamaMessage `json:"message"`
	} `json:"choices"`
}

func (g *Gateway) callOpenAI(ctx context.Context, prompt string, params Params, schema SchemaTag) (string, error) {
	req := openAIChatRequest{
		Model:       params.Model,
		Messages:    []ollamaMessage{{Role: "user", Content: prompt}},
		Temperature: params.Temperature,
	}
	if schema != "" {
		req.ResponseFormat = &openAIRespFormat{Type: "json_object"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal openai request: %w", err)
	}

	base := "https://api.openai.com/v1"
	if params.Host != "" {
		base = fmt.Sprintf("http://%s:%s/v1", params.Host, params.Port)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build openai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if params.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+params.APIKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai status %d: %s", resp.StatusCode, string(b))
	}

	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai response had no choices")
	}
	return out.Choices[0].Message.Content, nil
}
