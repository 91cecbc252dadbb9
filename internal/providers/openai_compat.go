package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/haasonsaas/agentcore/internal/httpclient"
	"github.com/haasonsaas/agentcore/internal/sse"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// OpenAICompatAdapter talks the OpenAI chat-completions wire format over
// raw HTTP+SSE. It backs every vendor that exposes an OpenAI-compatible
// endpoint but ships no first-party Go SDK: glm, kimi, minimax, and
// deepseek all resolve to one of these, configured only by base URL and
// model id. This is the component that actually exercises C1 and C2 —
// the SDK-backed adapters in this package bypass both by doing their own
// transport internally.
type OpenAICompatAdapter struct {
	http    *httpclient.Client
	name    string
	baseURL string
	apiKey  string
}

// NewOpenAICompatAdapter builds an adapter bound to a single vendor's base
// URL and API key. name is used only for logging/error attribution (e.g.
// "zhipu-glm", "moonshot-kimi", "minimax", "deepseek").
func NewOpenAICompatAdapter(name, baseURL, apiKey string, hc *httpclient.Client) *OpenAICompatAdapter {
	if hc == nil {
		hc = httpclient.New(nil)
	}
	return &OpenAICompatAdapter{http: hc, name: name, baseURL: baseURL, apiKey: apiKey}
}

func (a *OpenAICompatAdapter) Name() string { return a.name }

type oaChatRequest struct {
	Model       string          `json:"model"`
	Messages    []oaChatMessage `json:"messages"`
	Tools       []oaTool        `json:"tools,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream"`
}

type oaChatMessage struct {
	Role       string             `json:"role"`
	Content    string             `json:"content,omitempty"`
	ToolCalls  []oaToolCall       `json:"tool_calls,omitempty"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
}

type oaToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function oaFunctionCall `json:"function"`
}

type oaFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaTool struct {
	Type     string     `json:"type"`
	Function oaFunction `json:"function"`
}

type oaFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// buildWireRequest normalizes the neutral CompletionRequest into the
// OpenAI chat-completions shape every compat vendor expects.
func buildWireRequest(req CompletionRequest) oaChatRequest {
	wire := oaChatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	}
	if req.System != "" {
		wire.Messages = append(wire.Messages, oaChatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		wm := oaChatMessage{Role: string(m.Role), Content: m.Content}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, oaToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: oaFunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Input),
				},
			})
		}
		if m.Role == models.RoleTool {
			for _, tr := range m.ToolResults {
				wire.Messages = append(wire.Messages, oaChatMessage{
					Role:       "tool",
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
			continue
		}
		wire.Messages = append(wire.Messages, wm)
	}
	for _, t := range req.Tools {
		wire.Tools = append(wire.Tools, oaTool{
			Type: "function",
			Function: oaFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		})
	}
	return wire
}

func (a *OpenAICompatAdapter) Open(ctx context.Context, req CompletionRequest) (Stream, error) {
	wire := buildWireRequest(req)
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, New(a.name, req.Model, fmt.Errorf("marshal request: %w", err))
	}

	resp, err := a.http.Do(ctx, httpclient.Request{
		Method: "POST",
		URL:    a.baseURL + "/chat/completions",
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + a.apiKey,
			"Accept":        "text/event-stream",
		},
		Body: body,
	})
	if err != nil {
		if perr, ok := AsError(err); ok {
			perr.Provider = a.name
			perr.Model = req.Model
			return nil, perr
		}
		return nil, New(a.name, req.Model, err)
	}

	return &openAICompatStream{
		name:   a.name,
		model:  req.Model,
		body:   resp.Body,
		reader: sse.NewReader(resp.Body),
		// toolArgsByIndex remembers each tool call's id and name by the
		// vendor's tool_call index, since later deltas for the same call
		// carry only the index; argument fragments are passed through per
		// chunk, not accumulated here.
		toolArgsByIndex: make(map[int]*toolCallAccum),
	}, nil
}

type toolCallAccum struct {
	id   string
	name string
}

type openAICompatStream struct {
	name            string
	model           string
	body            io.Closer
	reader          *sse.Reader
	toolArgsByIndex map[int]*toolCallAccum
	closed          bool
}

type oaStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning_content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (s *openAICompatStream) Next() (*models.Chunk, error) {
	for {
		ev, err := s.reader.Next()
		if err != nil {
			if err == sse.ErrStreamClosed || err == io.EOF {
				return nil, io.EOF
			}
			return nil, New(s.name, s.model, err)
		}

		var wc oaStreamChunk
		if decErr := sse.DecodeJSON(ev, &wc); decErr != nil {
			continue // tolerate non-JSON keep-alive frames some vendors send
		}
		if wc.Usage != nil {
			return &models.Chunk{
				Kind:             models.ChunkUsage,
				PromptTokens:     wc.Usage.PromptTokens,
				CompletionTokens: wc.Usage.CompletionTokens,
			}, nil
		}
		if len(wc.Choices) == 0 {
			continue
		}
		choice := wc.Choices[0]

		if choice.Delta.Reasoning != "" {
			return &models.Chunk{Kind: models.ChunkReasoningDelta, Delta: choice.Delta.Reasoning}, nil
		}
		if choice.Delta.Content != "" {
			return &models.Chunk{Kind: models.ChunkTextDelta, Delta: choice.Delta.Content}, nil
		}
		for _, tc := range choice.Delta.ToolCalls {
			acc, ok := s.toolArgsByIndex[tc.Index]
			if !ok {
				acc = &toolCallAccum{}
				s.toolArgsByIndex[tc.Index] = acc
			}
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			return &models.Chunk{
				Kind:          models.ChunkToolCallDelta,
				ToolCallIndex: tc.Index,
				ToolCallID:    acc.id,
				ToolCallName:  acc.name,
				ArgsDelta:     tc.Function.Arguments,
			}, nil
		}
		if choice.FinishReason != "" {
			return &models.Chunk{Kind: models.ChunkDone, FinishReason: normalizeFinishReason(choice.FinishReason)}, nil
		}
	}
}

func (s *openAICompatStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
