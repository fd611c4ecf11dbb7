// Package repair restores tool-call protocol invariants in conversation
// state. Two surfaces: streaming repair patches a live message list while
// the agent loop is writing, and context normalization rebuilds a persisted
// context on cold start. Both guarantee that every assistant tool call is
// followed by exactly one response for each call id.
package repair

import (
	"encoding/json"

	"github.com/youssefsiam38/agentmem/types"
)

// InterruptedError is the error code carried by synthesized results for
// tool calls that never completed.
const InterruptedError = "TOOL_CALL_INTERRUPTED"

// InvalidResponseReason is the exclusion reason recorded for messages that
// normalization drops from a context.
const InvalidResponseReason = "invalid_response"

const interruptedMessage = "Tool call was interrupted before a result was received"

// InterruptedResult is the payload of a synthesized tool response.
type InterruptedResult struct {
	Success     bool   `json:"success"`
	Error       string `json:"error"`
	Interrupted bool   `json:"interrupted"`
	Message     string `json:"message"`
}

// NewInterruptedToolResult synthesizes the tool response for a call that
// received no answer.
func NewInterruptedToolResult(toolCallID string) types.Message {
	payload, err := json.Marshal(InterruptedResult{
		Success:     false,
		Error:       InterruptedError,
		Interrupted: true,
		Message:     interruptedMessage,
	})
	if err != nil {
		// The payload is a fixed struct of scalars; this cannot happen.
		payload = []byte(`{"success":false,"error":"` + InterruptedError + `","interrupted":true}`)
	}
	return types.NewToolResultMessage(toolCallID, string(payload))
}

// RepairStreamedToolCalls scans a live message list for assistant tool
// calls left without responses and inserts a synthesized interrupted result
// for each orphaned call id, directly after that call's contiguous response
// run. persist, when non-nil, is invoked for every synthesized message in
// insertion order. Returns the repaired list and the number of synthesized
// messages.
func RepairStreamedToolCalls(messages []types.Message, persist func(types.Message)) ([]types.Message, int) {
	out := make([]types.Message, 0, len(messages))
	synthesized := 0

	i := 0
	for i < len(messages) {
		msg := messages[i]
		out = append(out, msg)
		i++

		if msg.Role != types.RoleAssistant || len(msg.ToolCalls) == 0 {
			continue
		}

		answered := make(map[string]bool)
		for i < len(messages) && messages[i].Role == types.RoleTool {
			answered[messages[i].ToolCallID] = true
			out = append(out, messages[i])
			i++
		}

		for _, call := range msg.ToolCalls {
			if call.ID == "" || answered[call.ID] {
				continue
			}
			stub := NewInterruptedToolResult(call.ID)
			out = append(out, stub)
			synthesized++
			if persist != nil {
				persist(stub)
			}
		}
	}

	return out, synthesized
}
