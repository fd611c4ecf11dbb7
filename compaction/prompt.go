package compaction

import (
	"github.com/youssefsiam38/agentmem/types"
)

// SummarizationSystemPrompt is the system prompt used for context
// summarization. It instructs the model to produce a structured summary that
// can replace the archived messages without losing the context the agent
// needs to continue.
const SummarizationSystemPrompt = `You are a conversation summarizer for an AI agent system. Your task is to compress the conversation below into a summary that will replace the original messages while preserving everything the agent needs to continue working.

Create a structured summary with the following 8 sections. If a section has no relevant content, write "None" for that section.

## Format

1. **Session Intent**
   - The user's goals and requests, in order
   - Constraints or requirements they specified

2. **Key Decisions**
   - Decisions made during the conversation and their outcomes
   - Alternatives that were considered and rejected

3. **Tool Activity**
   - Tools that were invoked and what they returned
   - Results the agent is still relying on

4. **Artifacts**
   - Files, resources, or identifiers created, modified, or referenced
   - Their locations and purposes

5. **Errors and Recoveries**
   - Errors encountered and how they were resolved
   - Workarounds currently in effect

6. **Constraints and Preferences**
   - Preferences the user expressed
   - Style, formatting, or process constraints

7. **Unresolved Items**
   - Questions raised but not answered
   - Tasks mentioned but not started

8. **Current State**
   - What was being worked on most recently and its status
   - The immediate next action when resuming

## Guidelines

- Be concise but complete; keep every detail needed to continue
- Use bullet points
- Include specific names (files, functions, identifiers, error messages)
- Preserve exact user quotes when they convey important intent
- Do not add information that was not in the conversation`

// Marker block delimiters for a previous summary carried into a new
// summarization request.
const (
	previousSummaryOpen  = "<previous_summary>"
	previousSummaryClose = "</previous_summary>"
)

// BuildSummarizationUserPrompt creates the user message for summarization.
// previousSummary, when non-empty, is wrapped in a marker block so the model
// folds it into the new summary.
func BuildSummarizationUserPrompt(previousSummary, conversationText string) string {
	prompt := `Summarize the following conversation according to the format in your instructions.

`
	if previousSummary != "" {
		prompt += previousSummaryOpen + "\n" + previousSummary + "\n" + previousSummaryClose + `

The block above is the summary of an earlier part of this conversation. Carry its still-relevant content into the new summary.

`
	}

	prompt += `<conversation>
` + conversationText + `
</conversation>

Produce one summary covering both the earlier summary (if present) and the conversation. Follow the 8-section format exactly.`

	return prompt
}

// SerializeConversation renders messages for the summarization prompt, one
// serialized message per line, each truncated at maxCharsPerMessage.
func SerializeConversation(messages []types.Message, maxCharsPerMessage int) string {
	out := ""
	for i, msg := range messages {
		if i > 0 {
			out += "\n"
		}
		line := serializeMessage(msg)
		if maxCharsPerMessage > 0 && len(line) > maxCharsPerMessage {
			line = line[:maxCharsPerMessage] + "...[truncated]"
		}
		out += line
	}
	return out
}
