// Package streaming folds provider streaming events into message snapshots
// with a stable message id. Every snapshot carries the same id, so feeding
// them into a session one after another collapses the stream into a single
// context entry instead of a trail of partials.
package streaming

import (
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"github.com/youssefsiam38/agentmem/types"
)

const (
	blockText    = "text"
	blockToolUse = "tool_use"
)

// contentBlock is one streamed content block under accumulation.
type contentBlock struct {
	kind     string
	text     strings.Builder
	toolID   string
	toolName string
	toolArgs strings.Builder
}

// Accumulator accumulates streaming events into a message. The message id
// is allocated up front and never changes; provider metadata is tracked
// separately as it arrives.
type Accumulator struct {
	messageID  string
	providerID string
	model      string

	stopReason       string
	stopSequence     string
	promptTokens     int
	completionTokens int

	blocks  []*contentBlock
	byIndex map[int]*contentBlock
	stopped bool
}

// NewAccumulator creates an accumulator with a fresh stable message id.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		messageID: uuid.New().String(),
		byIndex:   make(map[int]*contentBlock),
	}
}

// MessageID returns the stable id every snapshot carries.
func (a *Accumulator) MessageID() string {
	return a.messageID
}

// ProviderMessageID returns the provider-side message id, empty until the
// message_start event arrives.
func (a *Accumulator) ProviderMessageID() string {
	return a.providerID
}

// Model returns the model reported by the stream.
func (a *Accumulator) Model() string {
	return a.model
}

// Done reports whether the stream delivered message_stop.
func (a *Accumulator) Done() bool {
	return a.stopped
}

// ProcessEvent folds one streaming event into the accumulated state.
func (a *Accumulator) ProcessEvent(event anthropic.MessageStreamEventUnion) {
	switch e := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		a.providerID = e.Message.ID
		a.model = string(e.Message.Model)
		a.promptTokens = int(e.Message.Usage.InputTokens)

	case anthropic.ContentBlockStartEvent:
		block := &contentBlock{}
		switch content := e.ContentBlock.AsAny().(type) {
		case anthropic.TextBlock:
			block.kind = blockText
			block.text.WriteString(content.Text)
		case anthropic.ToolUseBlock:
			block.kind = blockToolUse
			block.toolID = content.ID
			block.toolName = content.Name
		default:
			return
		}
		a.blocks = append(a.blocks, block)
		a.byIndex[int(e.Index)] = block

	case anthropic.ContentBlockDeltaEvent:
		block, ok := a.byIndex[int(e.Index)]
		if !ok {
			return
		}
		switch delta := e.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			block.text.WriteString(delta.Text)
		case anthropic.InputJSONDelta:
			block.toolArgs.WriteString(delta.PartialJSON)
		}

	case anthropic.ContentBlockStopEvent:
		// The block stays in the snapshot; it just stops receiving deltas.
		delete(a.byIndex, int(e.Index))

	case anthropic.MessageDeltaEvent:
		a.stopReason = string(e.Delta.StopReason)
		a.stopSequence = e.Delta.StopSequence
		a.completionTokens = int(e.Usage.OutputTokens)

	case anthropic.MessageStopEvent:
		a.stopped = true
	}
}

// Snapshot renders the accumulated state as a message. Safe to call
// mid-stream; early snapshots simply carry less content.
func (a *Accumulator) Snapshot() types.Message {
	msg := types.Message{
		MessageID:    a.messageID,
		Role:         types.RoleAssistant,
		Type:         types.MessageTypeText,
		FinishReason: FinishReason(a.stopReason),
	}

	var text strings.Builder
	for _, block := range a.blocks {
		switch block.kind {
		case blockText:
			text.WriteString(block.text.String())
		case blockToolUse:
			args := block.toolArgs.String()
			if args == "" {
				args = "{}"
			}
			msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
				ID:   block.toolID,
				Type: types.ToolCallTypeFunction,
				Function: types.FunctionCall{
					Name:      block.toolName,
					Arguments: args,
				},
			})
		}
	}
	msg.Content = types.TextContent(text.String())
	if len(msg.ToolCalls) > 0 {
		msg.Type = types.MessageTypeToolCall
	}

	if a.promptTokens > 0 || a.completionTokens > 0 {
		msg.Usage = &types.Usage{
			PromptTokens:     a.promptTokens,
			CompletionTokens: a.completionTokens,
			TotalTokens:      a.promptTokens + a.completionTokens,
		}
	}
	return msg
}
