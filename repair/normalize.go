package repair

import (
	"github.com/youssefsiam38/agentmem/types"
)

// NormalizeResult reports what a normalization pass changed.
type NormalizeResult struct {
	// Messages is the normalized context ordering.
	Messages []types.Message

	// Changed reports whether normalization altered anything.
	Changed bool

	// Updated holds messages rewritten in place, with invalid tool calls
	// stripped. These must propagate to both the context and the history.
	Updated []types.Message

	// Dropped holds messages removed from the context. Callers record them
	// as excluded with InvalidResponseReason; they stay in the history.
	Dropped []types.Message

	// Synthesized holds interrupted tool results added to close orphaned
	// calls. These belong to the context only, never the history.
	Synthesized []types.Message
}

// validToolCall reports whether a call satisfies the provider protocol:
// non-empty id, function type, non-empty function name, and arguments
// serialized as a JSON string.
func validToolCall(call types.ToolCall) bool {
	return call.ID != "" &&
		call.Type == types.ToolCallTypeFunction &&
		call.Function.Name != "" &&
		call.Function.ArgumentsIsString()
}

// NormalizeContext rewrites a context's message list so that every
// assistant tool-call block is well formed: only valid calls survive, each
// call id is answered exactly once, unexpected and duplicate tool responses
// are dropped, and unanswered calls receive a synthesized interrupted
// result. Running it on its own output changes nothing.
func NormalizeContext(messages []types.Message) NormalizeResult {
	var res NormalizeResult
	out := make([]types.Message, 0, len(messages))

	i := 0
	for i < len(messages) {
		msg := messages[i]

		switch {
		case msg.Role == types.RoleTool:
			// A tool response outside any assistant block has nothing to
			// answer.
			res.Dropped = append(res.Dropped, msg)
			i++

		case msg.Role == types.RoleAssistant && len(msg.ToolCalls) > 0:
			i = normalizeToolCallBlock(messages, i, &res, &out)

		case msg.Role == types.RoleAssistant && msg.Content.IsEmpty():
			res.Dropped = append(res.Dropped, msg)
			i++

		default:
			out = append(out, msg)
			i++
		}
	}

	res.Messages = out
	res.Changed = len(res.Updated) > 0 || len(res.Dropped) > 0 || len(res.Synthesized) > 0
	return res
}

// normalizeToolCallBlock handles one assistant message carrying tool calls
// together with its contiguous run of tool responses. Returns the index of
// the first message after the block.
func normalizeToolCallBlock(messages []types.Message, i int, res *NormalizeResult, out *[]types.Message) int {
	msg := messages[i]

	valid := make([]types.ToolCall, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		if validToolCall(call) {
			valid = append(valid, call)
		}
	}

	if len(valid) == 0 {
		if msg.Content.IsEmpty() {
			res.Dropped = append(res.Dropped, msg)
		} else {
			downgraded := msg.Clone()
			downgraded.ToolCalls = nil
			downgraded.Type = types.MessageTypeText
			res.Updated = append(res.Updated, downgraded)
			*out = append(*out, downgraded)
		}
		// Responses to the stripped calls now sit outside any block and
		// fall to the orphan rule on the following iterations.
		return i + 1
	}

	kept := msg
	if len(valid) != len(msg.ToolCalls) {
		kept = msg.Clone()
		kept.ToolCalls = valid
		kept.Type = types.MessageTypeToolCall
		res.Updated = append(res.Updated, kept)
	}
	*out = append(*out, kept)

	answered := make(map[string]bool, len(valid))
	for _, call := range valid {
		answered[call.ID] = false
	}

	j := i + 1
	for j < len(messages) && messages[j].Role == types.RoleTool {
		response := messages[j]
		if done, expected := answered[response.ToolCallID]; expected && !done {
			answered[response.ToolCallID] = true
			*out = append(*out, response)
		} else {
			res.Dropped = append(res.Dropped, response)
		}
		j++
	}

	for _, call := range valid {
		if !answered[call.ID] {
			stub := NewInterruptedToolResult(call.ID)
			res.Synthesized = append(res.Synthesized, stub)
			*out = append(*out, stub)
		}
	}

	return j
}
