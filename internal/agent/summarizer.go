package agent

import (
	"context"
	"fmt"
	"io"

	"github.com/haasonsaas/agentcore/internal/compaction"
	"github.com/haasonsaas/agentcore/internal/providers"
	"github.com/haasonsaas/agentcore/internal/stream"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// adapterSummarizer implements compaction.Summarizer by issuing a
// dedicated, non-streaming-to-the-caller completion call through the same
// Adapter the turn loop itself uses, per spec.md section 4.7 step 3 and
// DESIGN.md's C7 note that compaction must not open a second LLM client
// path.
type adapterSummarizer struct {
	adapter providers.Adapter
	modelID string
}

func (s *adapterSummarizer) Summarize(ctx context.Context, messages []models.Message) (string, error) {
	transcript := compaction.FormatForSummary(messages)
	req := providers.CompletionRequest{
		Model:  s.modelID,
		System: compaction.SummaryPrompt,
		Messages: []models.Message{
			{Role: models.RoleUser, Content: transcript},
		},
		Stream: true,
	}

	st, err := s.adapter.Open(ctx, req)
	if err != nil {
		return "", fmt.Errorf("agent: summarization call: %w", err)
	}
	defer st.Close()

	proc := stream.New(nil)
	for {
		chunk, err := st.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("agent: summarization stream: %w", err)
		}
		done, feedErr := proc.Feed(chunk)
		if feedErr != nil {
			return "", fmt.Errorf("agent: summarization assemble: %w", feedErr)
		}
		if done {
			break
		}
	}
	return proc.Assembled().Text, nil
}
