package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaProvider implements Provider for Ollama-style local backends. The
// corpus carries no Ollama SDK, so this adapter speaks the native HTTP API
// directly.
type OllamaProvider struct {
	cfg      Config
	endpoint string
	client   *http.Client
}

// NewOllamaProvider creates a new Ollama provider adapter.
func NewOllamaProvider(cfg Config) *OllamaProvider {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	return &OllamaProvider{
		cfg:      cfg,
		endpoint: endpoint,
		client:   &http.Client{Timeout: requestTimeout},
	}
}

// Name returns the configured provider name.
func (p *OllamaProvider) Name() string {
	return p.cfg.Name
}

// Type returns the backend family.
func (p *OllamaProvider) Type() Type {
	return TypeOllama
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	DoneReason      string  `json:"done_reason,omitempty"`
	PromptEvalCount int     `json:"prompt_eval_count,omitempty"`
	EvalCount       int     `json:"eval_count,omitempty"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// HealthCheck probes GET /api/tags, the cheapest endpoint Ollama exposes.
func (p *OllamaProvider) HealthCheck(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags response: %w", err)
	}

	models := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

// Complete makes a non-streaming chat call.
func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := p.doChat(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var chat ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}

	return &CompletionResponse{
		Content:      chat.Message.Content,
		FinishReason: mapOllamaDoneReason(chat.DoneReason),
		Provider:     p.cfg.Name,
		Model:        p.cfg.Model,
		LatencyMs:    time.Since(start).Milliseconds(),
		Usage: &TokenUsage{
			InputTokens:  chat.PromptEvalCount,
			OutputTokens: chat.EvalCount,
		},
	}, nil
}

// Stream makes a streaming chat call. Ollama streams line-delimited JSON
// objects; each line carries a content delta until done is set.
func (p *OllamaProvider) Stream(ctx context.Context, req CompletionRequest, onChunk func(StreamChunk)) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := p.doChat(ctx, req, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	content := ""
	var last ollamaChatResponse

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, fmt.Errorf("failed to decode stream chunk: %w", err)
		}
		if chunk.Message.Content != "" {
			content += chunk.Message.Content
			onChunk(StreamChunk{Text: chunk.Message.Content})
		}
		if chunk.Done {
			last = chunk
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	onChunk(StreamChunk{Done: true})

	return &CompletionResponse{
		Content:      content,
		FinishReason: mapOllamaDoneReason(last.DoneReason),
		Provider:     p.cfg.Name,
		Model:        p.cfg.Model,
		LatencyMs:    time.Since(start).Milliseconds(),
		Usage: &TokenUsage{
			InputTokens:  last.PromptEvalCount,
			OutputTokens: last.EvalCount,
		},
	}, nil
}

func (p *OllamaProvider) doChat(ctx context.Context, req CompletionRequest, stream bool) (*http.Response, error) {
	options := map[string]any{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:    p.cfg.Model,
		Messages: req.Messages,
		Stream:   stream,
		Options:  options,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("chat request returned status %d", resp.StatusCode)
	}
	return resp, nil
}

func mapOllamaDoneReason(reason string) FinishReason {
	switch reason {
	case "length":
		return FinishLength
	default:
		return FinishStop
	}
}
