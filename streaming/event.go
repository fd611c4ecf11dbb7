package streaming

import (
	"github.com/anthropics/anthropic-sdk-go"
)

// Finish reasons recorded on streamed messages, normalized from provider
// stop reasons.
const (
	FinishStop      = "stop"
	FinishLength    = "length"
	FinishToolCalls = "tool_calls"
)

// FinishReason normalizes a provider stop reason to the finish_reason
// vocabulary stored on messages. Unknown reasons pass through unchanged.
func FinishReason(stopReason string) string {
	switch stopReason {
	case "":
		return ""
	case "end_turn", "stop_sequence":
		return FinishStop
	case "max_tokens":
		return FinishLength
	case "tool_use":
		return FinishToolCalls
	default:
		return stopReason
	}
}

// changesSnapshot reports whether an event alters what Snapshot returns.
// Block-stop bookkeeping and pings do not warrant a new upsert.
func changesSnapshot(event anthropic.MessageStreamEventUnion) bool {
	switch event.AsAny().(type) {
	case anthropic.MessageStartEvent,
		anthropic.ContentBlockStartEvent,
		anthropic.ContentBlockDeltaEvent,
		anthropic.MessageDeltaEvent,
		anthropic.MessageStopEvent:
		return true
	default:
		return false
	}
}
