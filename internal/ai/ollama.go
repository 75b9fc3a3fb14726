package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Default Ollama settings
// ---------------------------------------------------------------------------

const (
	defaultOllamaModel   = "llama3"
	defaultOllamaContext = 8192 // DefaultChunkSize characters plus prompt and reply
	ollamaTimeout        = 120 * time.Second
)

// ---------------------------------------------------------------------------
// OllamaProvider
// ---------------------------------------------------------------------------

// ollamaProvider implements Provider by calling the local Ollama HTTP API.
type ollamaProvider struct {
	baseURL      string
	httpClient   *http.Client
	defaultModel string
	numCtx       int
}

// newOllamaProvider creates an Ollama-backed provider.
func newOllamaProvider(cfg ProviderConfig) (*ollamaProvider, error) {
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	numCtx := cfg.ContextWindow
	if numCtx == 0 {
		numCtx = defaultOllamaContext
	}
	return &ollamaProvider{
		baseURL:      strings.TrimRight(cfg.OllamaURL, "/"),
		httpClient:   &http.Client{Timeout: ollamaTimeout},
		defaultModel: model,
		numCtx:       numCtx,
	}, nil
}

// Name implements Provider.
func (o *ollamaProvider) Name() string { return "ollama" }

// Close implements Provider.
func (o *ollamaProvider) Close() error { return nil }

// ---------------------------------------------------------------------------
// Generate: POST /api/chat (non-streaming)
// ---------------------------------------------------------------------------

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Format   string              `json:"format,omitempty"`
	Options  *ollamaOptions      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	NumCtx      int      `json:"num_ctx,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaChatResponse struct {
	Message    ollamaChatMessage `json:"message"`
	Done       bool              `json:"done"`
	DoneReason string            `json:"done_reason"`
}

// Generate implements Provider.
func (o *ollamaProvider) Generate(ctx context.Context, messages []Message, opts GenerateOptions) (*Message, error) {
	reqBody := ollamaChatRequest{
		Model:    o.resolveModel(opts.Model),
		Messages: convertMessages(messages),
		Stream:   false,
		Options:  buildOptions(opts, o.numCtx),
	}
	if opts.JSON {
		reqBody.Format = "json"
	}

	var resp ollamaChatResponse
	if err := o.doJSON(ctx, "/api/chat", reqBody, &resp); err != nil {
		return nil, fmt.Errorf("ai/ollama: chat: %w", err)
	}

	return &Message{
		Role:       RoleAssistant,
		Content:    resp.Message.Content,
		StopReason: resp.DoneReason,
	}, nil
}

// ---------------------------------------------------------------------------
// HTTP helper
// ---------------------------------------------------------------------------

func (o *ollamaProvider) doJSON(ctx context.Context, path string, reqBody interface{}, out interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// ---------------------------------------------------------------------------
// Conversion helpers
// ---------------------------------------------------------------------------

func (o *ollamaProvider) resolveModel(override string) string {
	if override != "" {
		return override
	}
	return o.defaultModel
}

func convertMessages(msgs []Message) []ollamaChatMessage {
	out := make([]ollamaChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ollamaChatMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

func buildOptions(opts GenerateOptions, numCtx int) *ollamaOptions {
	oo := &ollamaOptions{NumCtx: numCtx}
	if opts.Temperature > 0 {
		oo.Temperature = opts.Temperature
	}
	if opts.TopP > 0 {
		oo.TopP = opts.TopP
	}
	if opts.MaxTokens > 0 {
		oo.NumPredict = opts.MaxTokens
	}
	if len(opts.StopWords) > 0 {
		oo.Stop = opts.StopWords
	}
	return oo
}
