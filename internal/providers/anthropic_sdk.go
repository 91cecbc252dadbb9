package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// AnthropicSDKAdapter backs "claude-*" model ids using the official
// anthropic-sdk-go client's native streaming, bypassing this core's own
// SSE plumbing the same way OpenAISDKAdapter bypasses it for "gpt-*".
type AnthropicSDKAdapter struct {
	client       anthropic.Client
	defaultMaxTokens int
}

// NewAnthropicSDKAdapter builds an adapter bound to a single API key.
func NewAnthropicSDKAdapter(apiKey string) *AnthropicSDKAdapter {
	return &AnthropicSDKAdapter{
		client:           anthropic.NewClient(option.WithAPIKey(apiKey)),
		defaultMaxTokens: 4096,
	}
}

func (a *AnthropicSDKAdapter) Name() string { return "anthropic" }

// defaultThinkingBudget is the extended-thinking token budget used when a
// request sets ThinkingMode to ThinkingEnabled without specifying its own
// budget; the normalized request shape only carries the three-way mode.
const defaultThinkingBudget = 16384

func (a *AnthropicSDKAdapter) Open(ctx context.Context, req CompletionRequest) (Stream, error) {
	messages, err := convertAnthropicMessages(req.Messages)
	if err != nil {
		return nil, New("anthropic", req.Model, err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertAnthropicTools(req.Tools)
	}
	if req.ThinkingMode == ThinkingEnabled {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(defaultThinkingBudget)
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	stream := a.client.Messages.NewStreaming(ctx, params)
	return &anthropicSDKStream{model: req.Model, stream: stream}, nil
}

func convertAnthropicMessages(msgs []models.Message) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, m := range msgs {
		var content []anthropic.ContentBlockParamUnion
		switch m.Role {
		case models.RoleTool:
			for _, tr := range m.ToolResults {
				content = append(content, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
			}
			out = append(out, anthropic.NewUserMessage(content...))
			continue
		default:
			if m.Content != "" {
				content = append(content, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if len(tc.Input) > 0 {
					if err := json.Unmarshal(tc.Input, &input); err != nil {
						return nil, err
					}
				}
				content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
		}
		if m.Role == models.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(content...))
		} else {
			out = append(out, anthropic.NewUserMessage(content...))
		}
	}
	return out, nil
}

func convertAnthropicTools(tools []ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		_ = json.Unmarshal(t.Schema, &schema)
		toolParam := anthropic.ToolUnionParamOfTool(schema, t.Name)
		toolParam.OfTool.Description = anthropic.String(t.Description)
		out = append(out, toolParam)
	}
	return out
}

type anthropicSDKStream struct {
	model  string
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]

	currentToolCall  *models.ToolCall
	currentToolInput strings.Builder
	pending          []*models.Chunk
	lastStopReason   string
}

// Next drains the SDK's event-based stream.Next()/Current() iterator into
// the one-chunk-per-Next() shape every other Stream implementation uses.
// Each SDK event yields at most one chunk; anything queued in pending is
// returned first, but nothing in this adapter adds to pending.
func (s *anthropicSDKStream) Next() (*models.Chunk, error) {
	if len(s.pending) > 0 {
		c := s.pending[0]
		s.pending = s.pending[1:]
		return c, nil
	}

	for s.stream.Next() {
		event := s.stream.Current()
		switch event.Type {
		case "content_block_start":
			blockStart := event.AsContentBlockStart()
			block := blockStart.ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				s.currentToolCall = &models.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				s.currentToolInput.Reset()
				return &models.Chunk{
					Kind:          models.ChunkToolCallDelta,
					ToolCallIndex: int(blockStart.Index),
					ToolCallID:    toolUse.ID,
					ToolCallName:  toolUse.Name,
				}, nil
			}
		case "content_block_delta":
			blockDelta := event.AsContentBlockDelta()
			delta := blockDelta.Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					return &models.Chunk{Kind: models.ChunkTextDelta, Delta: delta.Text}, nil
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					return &models.Chunk{Kind: models.ChunkReasoningDelta, Delta: delta.Thinking}, nil
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					s.currentToolInput.WriteString(delta.PartialJSON)
					if s.currentToolCall != nil {
						return &models.Chunk{
							Kind:          models.ChunkToolCallDelta,
							ToolCallIndex: int(blockDelta.Index),
							ToolCallID:    s.currentToolCall.ID,
							ToolCallName:  s.currentToolCall.Name,
							ArgsDelta:     delta.PartialJSON,
						}, nil
					}
				}
			}
		case "content_block_stop":
			if s.currentToolCall != nil {
				s.currentToolCall.Input = json.RawMessage(s.currentToolInput.String())
				chunk := &models.Chunk{
					Kind:         models.ChunkToolCallDone,
					ToolCallID:   s.currentToolCall.ID,
					ToolCallName: s.currentToolCall.Name,
				}
				s.currentToolCall = nil
				return chunk, nil
			}
		case "message_delta":
			delta := event.AsMessageDelta()
			if delta.Delta.StopReason != "" {
				s.lastStopReason = string(delta.Delta.StopReason)
			}
			if delta.Usage.OutputTokens > 0 {
				return &models.Chunk{Kind: models.ChunkUsage, CompletionTokens: int(delta.Usage.OutputTokens)}, nil
			}
		case "message_stop":
			return &models.Chunk{Kind: models.ChunkDone, FinishReason: normalizeFinishReason(s.lastStopReason)}, nil
		case "error":
			return nil, New("anthropic", s.model, errors.New("anthropic stream error"))
		}
	}
	if err := s.stream.Err(); err != nil {
		return nil, New("anthropic", s.model, err)
	}
	return nil, io.EOF
}

func (s *anthropicSDKStream) Close() error { return nil }
