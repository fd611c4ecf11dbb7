package compaction

import (
	"encoding/json"

	"github.com/youssefsiam38/agentmem/types"
)

// Character-based estimation constants. Claude tokenizes English at roughly
// four characters per token; each message adds a little framing overhead.
const (
	charsPerToken      = 4
	perMessageOverhead = 4
)

// TokenCount is the token accounting for one context snapshot.
type TokenCount struct {
	// Accumulated is the sum of usage.total_tokens over messages carrying usage.
	Accumulated int

	// Estimated is the character-based estimate across all messages.
	Estimated int

	// MessagesWithUsage counts how many messages carried usage data.
	MessagesWithUsage int

	// HasSummary reports whether a summary message is present.
	HasSummary bool

	// Reliable reports whether Used came from accumulated usage rather than
	// the estimate.
	Reliable bool

	// Used is the figure trigger decisions work with.
	Used int
}

// CountTokens computes the token accounting for a context snapshot. The
// accumulated usage figure is trusted only when usage covers more than half
// the messages and no summary exists; a summary means earlier usage no
// longer describes the live context.
func CountTokens(messages []types.Message) TokenCount {
	var tc TokenCount
	for i := range messages {
		msg := &messages[i]
		if msg.Usage != nil {
			tc.Accumulated += msg.Usage.TotalTokens
			tc.MessagesWithUsage++
		}
		if msg.Type == types.MessageTypeSummary {
			tc.HasSummary = true
		}
		tc.Estimated += EstimateMessageTokens(*msg)
	}

	tc.Reliable = tc.MessagesWithUsage*2 > len(messages) && !tc.HasSummary
	if tc.Reliable {
		tc.Used = tc.Accumulated
	} else {
		tc.Used = tc.Estimated
	}
	return tc
}

// EstimateMessageTokens estimates one message's token footprint from its
// serialized length.
func EstimateMessageTokens(msg types.Message) int {
	return len(serializeMessage(msg))/charsPerToken + perMessageOverhead
}

// serializeMessage renders a message the way it is measured and summarized.
func serializeMessage(msg types.Message) string {
	data, err := json.Marshal(msg)
	if err != nil {
		return msg.Content.AsText()
	}
	return string(data)
}
