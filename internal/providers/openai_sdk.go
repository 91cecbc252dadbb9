package providers

import (
	"context"
	"encoding/json"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// OpenAISDKAdapter backs native "gpt-*" model ids using the official
// go-openai client rather than this core's own SSE plumbing. It still
// satisfies the Adapter/Stream contract the agent loop depends on, so
// the loop never has to know which transport a given model id uses.
type OpenAISDKAdapter struct {
	client *openai.Client
}

// NewOpenAISDKAdapter builds an adapter bound to a single API key.
func NewOpenAISDKAdapter(apiKey string) *OpenAISDKAdapter {
	return &OpenAISDKAdapter{client: openai.NewClient(apiKey)}
}

func (a *OpenAISDKAdapter) Name() string { return "openai" }

func (a *OpenAISDKAdapter) Open(ctx context.Context, req CompletionRequest) (Stream, error) {
	wire := buildWireRequest(req)

	chatReq := openai.ChatCompletionRequest{
		Model:       wire.Model,
		Temperature: float32(wire.Temperature),
		MaxTokens:   wire.MaxTokens,
		Stream:      true,
	}
	for _, m := range wire.Messages {
		om := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		chatReq.Messages = append(chatReq.Messages, om)
	}
	for _, t := range wire.Tools {
		var params any
		if len(t.Function.Parameters) > 0 {
			_ = json.Unmarshal(t.Function.Parameters, &params)
		}
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  params,
			},
		})
	}

	stream, err := a.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, New("openai", req.Model, err)
	}
	return &openAISDKStream{model: req.Model, stream: stream, toolArgsByIndex: make(map[int]*toolCallAccum)}, nil
}

type openAISDKStream struct {
	model           string
	stream          *openai.ChatCompletionStream
	toolArgsByIndex map[int]*toolCallAccum
}

func (s *openAISDKStream) Next() (*models.Chunk, error) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, New("openai", s.model, err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.Delta.Content != "" {
			return &models.Chunk{Kind: models.ChunkTextDelta, Delta: choice.Delta.Content}, nil
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			acc, ok := s.toolArgsByIndex[idx]
			if !ok {
				acc = &toolCallAccum{}
				s.toolArgsByIndex[idx] = acc
			}
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			return &models.Chunk{
				Kind:          models.ChunkToolCallDelta,
				ToolCallIndex: idx,
				ToolCallID:    acc.id,
				ToolCallName:  acc.name,
				ArgsDelta:     tc.Function.Arguments,
			}, nil
		}
		if choice.FinishReason != "" {
			return &models.Chunk{Kind: models.ChunkDone, FinishReason: normalizeFinishReason(string(choice.FinishReason))}, nil
		}
	}
}

func (s *openAISDKStream) Close() error {
	s.stream.Close()
	return nil
}
