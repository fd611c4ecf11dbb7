package compaction

import (
	"github.com/youssefsiam38/agentmem/types"
)

// Partition is the three-way split compaction operates on. Pending is the
// archive region that gets folded into the summary; Active survives
// verbatim.
type Partition struct {
	System  []types.Message
	Pending []types.Message
	Active  []types.Message
}

// PartitionMessages splits a context snapshot for compaction. The nominal
// boundary keeps the last keepLastN non-system messages active; it is then
// pulled back so the pending region ends on a user turn, and tool-call
// pairs split by the boundary are reunited on the active side.
func PartitionMessages(messages []types.Message, keepLastN int) Partition {
	var p Partition

	nonSystem := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == types.RoleSystem {
			p.System = append(p.System, msg)
			continue
		}
		nonSystem = append(nonSystem, msg)
	}

	split := len(nonSystem) - keepLastN
	if split <= 0 {
		p.Active = nonSystem
		return p
	}

	// The outgoing prompt must retain at least one user message, so the
	// boundary moves back to just after the last user turn before it.
	for i := split - 1; i >= 0; i-- {
		if nonSystem[i].Role == types.RoleUser {
			split = i + 1
			break
		}
	}

	p.Pending = nonSystem[:split:split]
	p.Active = nonSystem[split:]
	p.migrateToolPairs()
	return p
}

// migrateToolPairs reunites tool-call pairs across the boundary. A tool
// result in the active region whose issuing assistant landed in pending
// drags that assistant, and every result answering it, to the front of the
// active region in their original order.
func (p *Partition) migrateToolPairs() {
	if len(p.Pending) == 0 || len(p.Active) == 0 {
		return
	}

	issuedBy := make(map[string]string)        // tool_call_id -> assistant messageId
	pendingAssistants := make(map[string]bool) // assistant messageIds in pending
	for _, region := range [][]types.Message{p.Pending, p.Active} {
		for _, msg := range region {
			if msg.Role != types.RoleAssistant {
				continue
			}
			for _, call := range msg.ToolCalls {
				if call.ID != "" {
					issuedBy[call.ID] = msg.MessageID
				}
			}
		}
	}
	for _, msg := range p.Pending {
		if msg.Role == types.RoleAssistant && len(msg.ToolCalls) > 0 {
			pendingAssistants[msg.MessageID] = true
		}
	}

	move := make(map[string]bool)
	for _, msg := range p.Active {
		if msg.Role != types.RoleTool || msg.ToolCallID == "" {
			continue
		}
		if assistantID, ok := issuedBy[msg.ToolCallID]; ok && pendingAssistants[assistantID] {
			move[assistantID] = true
		}
	}
	if len(move) == 0 {
		return
	}

	movedCalls := make(map[string]bool)
	migrated := make([]types.Message, 0, len(move))
	kept := make([]types.Message, 0, len(p.Pending))
	for _, msg := range p.Pending {
		switch {
		case msg.Role == types.RoleAssistant && move[msg.MessageID]:
			for _, call := range msg.ToolCalls {
				movedCalls[call.ID] = true
			}
			migrated = append(migrated, msg)
		case msg.Role == types.RoleTool && movedCalls[msg.ToolCallID]:
			migrated = append(migrated, msg)
		default:
			kept = append(kept, msg)
		}
	}

	p.Pending = kept
	p.Active = append(migrated, p.Active...)
}

// CanCompact reports whether the pending region has anything to fold.
func (p *Partition) CanCompact() bool {
	return len(p.Pending) > 0
}

// PendingIDs returns the message ids of the archive region in order.
func (p *Partition) PendingIDs() []string {
	ids := make([]string, len(p.Pending))
	for i, msg := range p.Pending {
		ids[i] = msg.MessageID
	}
	return ids
}

// SplitLeadingSummary separates a previous compaction summary from the rest
// of the pending region. Consecutive leading summaries collapse into one
// previous-summary text.
func (p *Partition) SplitLeadingSummary() (string, []types.Message) {
	rest := p.Pending
	previous := ""
	for len(rest) > 0 && rest[0].Type == types.MessageTypeSummary {
		if previous != "" {
			previous += "\n\n"
		}
		previous += rest[0].Content.AsText()
		rest = rest[1:]
	}
	return previous, rest
}
