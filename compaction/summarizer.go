package compaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// SummaryRequest carries the material for one summarization call.
type SummaryRequest struct {
	// Conversation is the serialized pending region.
	Conversation string

	// PreviousSummary is the text of an earlier summary, empty if none.
	PreviousSummary string
}

// Summarizer produces the compressed summary text for a compaction.
type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (string, error)
}

// summaryTemperature keeps summarization deterministic enough to be safe to
// splice back into the conversation.
const summaryTemperature = 0.2

// AnthropicSummarizer implements Summarizer using Claude's streaming API.
type AnthropicSummarizer struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicSummarizer creates a summarizer backed by the given client.
func NewAnthropicSummarizer(client *anthropic.Client, model string, maxTokens int64) *AnthropicSummarizer {
	return &AnthropicSummarizer{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
	}
}

var _ Summarizer = (*AnthropicSummarizer)(nil)

// Summarize generates the summary text, accumulating the streamed response.
func (s *AnthropicSummarizer) Summarize(ctx context.Context, req SummaryRequest) (string, error) {
	if req.Conversation == "" {
		return "", ErrNoMessagesToCompact
	}

	userPrompt := BuildSummarizationUserPrompt(req.PreviousSummary, req.Conversation)

	stream := s.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(s.model),
		MaxTokens:   s.maxTokens,
		Temperature: anthropic.Float(summaryTemperature),
		System: []anthropic.TextBlockParam{
			{Text: SummarizationSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return "", fmt.Errorf("%w: failed to accumulate stream: %v", ErrSummarizationFailed, err)
		}
	}

	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSummarizationFailed, err)
	}

	var summary strings.Builder
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			summary.WriteString(text.Text)
		}
	}

	if summary.Len() == 0 {
		return "", fmt.Errorf("%w: empty response from summarizer", ErrSummarizationFailed)
	}

	return summary.String(), nil
}
