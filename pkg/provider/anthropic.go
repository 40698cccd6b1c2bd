package provider

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider for Anthropic-native backends.
type AnthropicProvider struct {
	cfg    Config
	client anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider adapter.
func NewAnthropicProvider(cfg Config) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	return &AnthropicProvider{
		cfg:    cfg,
		client: anthropic.NewClient(opts...),
	}
}

// Name returns the configured provider name.
func (p *AnthropicProvider) Name() string {
	return p.cfg.Name
}

// Type returns the backend family.
func (p *AnthropicProvider) Type() Type {
	return TypeAnthropic
}

// HealthCheck lists available models as a low-cost probe.
func (p *AnthropicProvider) HealthCheck(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	page, err := p.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, err
	}

	models := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

// Complete makes a messages API call.
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	start := time.Now()
	response, err := p.client.Messages.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, err
	}

	content := ""
	for _, block := range response.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			content += b.Text
		}
	}

	return &CompletionResponse{
		Content:      content,
		FinishReason: mapAnthropicStopReason(string(response.StopReason)),
		Provider:     p.cfg.Name,
		Model:        string(response.Model),
		LatencyMs:    time.Since(start).Milliseconds(),
		Usage: &TokenUsage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}, nil
}

// Stream makes a streaming messages API call, delivering text deltas to
// onChunk as they arrive.
func (p *AnthropicProvider) Stream(ctx context.Context, req CompletionRequest, onChunk func(StreamChunk)) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	start := time.Now()
	stream := p.client.Messages.NewStreaming(ctx, p.buildParams(req))

	message := anthropic.Message{}
	content := ""
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, err
		}
		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				content += deltaVariant.Text
				onChunk(StreamChunk{Text: deltaVariant.Text})
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	onChunk(StreamChunk{Done: true})

	return &CompletionResponse{
		Content:      content,
		FinishReason: mapAnthropicStopReason(string(message.StopReason)),
		Provider:     p.cfg.Name,
		Model:        p.cfg.Model,
		LatencyMs:    time.Since(start).Milliseconds(),
		Usage: &TokenUsage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
		},
	}, nil
}

// buildParams converts a normalized request to Anthropic message params.
// System turns feed the system field; tool observations become user turns
// since the loop carries them as delimited text.
func (p *AnthropicProvider) buildParams(req CompletionRequest) anthropic.MessageNewParams {
	anthropicMessages := []anthropic.MessageParam{}
	systemPrompt := ""

	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
		case "assistant":
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(msg.Content),
				},
			})
		default: // user, tool
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.cfg.Model),
		Messages:  anthropicMessages,
		MaxTokens: int64(maxTokens),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	return params
}

func mapAnthropicStopReason(reason string) FinishReason {
	switch reason {
	case "max_tokens":
		return FinishLength
	case "tool_use":
		return FinishToolCalls
	default:
		return FinishStop
	}
}
