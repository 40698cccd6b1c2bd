package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider implements Provider for OpenAI and OpenAI-compatible REST
// backends (a custom endpoint covers gateways speaking the same protocol).
type OpenAIProvider struct {
	cfg    Config
	client openai.Client
}

// NewOpenAIProvider creates a new OpenAI-compatible provider adapter.
func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	return &OpenAIProvider{
		cfg:    cfg,
		client: openai.NewClient(opts...),
	}
}

// Name returns the configured provider name.
func (p *OpenAIProvider) Name() string {
	return p.cfg.Name
}

// Type returns the backend family.
func (p *OpenAIProvider) Type() Type {
	return TypeOpenAI
}

// HealthCheck lists available models as a low-cost probe.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, err
	}

	models := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

// Complete makes a chat completion call.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	start := time.Now()
	response, err := p.client.Chat.Completions.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, err
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	choice := response.Choices[0]

	return &CompletionResponse{
		Content:      choice.Message.Content,
		FinishReason: mapOpenAIFinishReason(string(choice.FinishReason)),
		Provider:     p.cfg.Name,
		Model:        response.Model,
		LatencyMs:    time.Since(start).Milliseconds(),
		Usage: &TokenUsage{
			InputTokens:  int(response.Usage.PromptTokens),
			OutputTokens: int(response.Usage.CompletionTokens),
		},
	}, nil
}

// Stream makes a streaming chat completion call, delivering content deltas
// to onChunk as they arrive.
func (p *OpenAIProvider) Stream(ctx context.Context, req CompletionRequest, onChunk func(StreamChunk)) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	start := time.Now()
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.buildParams(req))

	acc := openai.ChatCompletionAccumulator{}
	content := ""
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			content += chunk.Choices[0].Delta.Content
			onChunk(StreamChunk{Text: chunk.Choices[0].Delta.Content})
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	onChunk(StreamChunk{Done: true})

	finish := FinishStop
	if len(acc.Choices) > 0 {
		finish = mapOpenAIFinishReason(string(acc.Choices[0].FinishReason))
	}

	return &CompletionResponse{
		Content:      content,
		FinishReason: finish,
		Provider:     p.cfg.Name,
		Model:        p.cfg.Model,
		LatencyMs:    time.Since(start).Milliseconds(),
		Usage: &TokenUsage{
			InputTokens:  int(acc.Usage.PromptTokens),
			OutputTokens: int(acc.Usage.CompletionTokens),
		},
	}, nil
}

// buildParams converts a normalized request to chat completion params.
// Tool observations become user turns since the loop carries them as
// delimited text.
func (p *OpenAIProvider) buildParams(req CompletionRequest) openai.ChatCompletionNewParams {
	messages := []openai.ChatCompletionMessageParamUnion{}
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(msg.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default: // user, tool
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.cfg.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	return params
}

func mapOpenAIFinishReason(reason string) FinishReason {
	switch reason {
	case "length":
		return FinishLength
	case "tool_calls", "function_call":
		return FinishToolCalls
	default:
		return FinishStop
	}
}
