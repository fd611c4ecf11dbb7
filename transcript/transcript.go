// Package transcript exports a session's history as a human-readable
// document: Markdown, or Markdown rendered to sanitized HTML. It is a pure
// read-side view; nothing here mutates the session.
package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/youssefsiam38/agentmem"
	"github.com/youssefsiam38/agentmem/types"
)

// renderer converts transcript Markdown to HTML. Raw HTML in message text
// passes through the renderer and is stripped by the sanitizer instead, so
// benign inline markup survives.
var renderer = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// sanitizer removes anything unsafe that message content smuggled through
// the Markdown pass.
var sanitizer = bluemonday.UGCPolicy()

// Options controls which history entries the transcript includes. The zero
// value renders the live conversation: no system prompt, no removed
// messages, no compaction-archived messages.
type Options struct {
	// IncludeSystem keeps the system prompt at the top of the document.
	IncludeSystem bool

	// IncludeExcluded keeps messages that were removed from the context,
	// annotated with their exclusion reason.
	IncludeExcluded bool

	// IncludeArchived keeps messages that compaction replaced with a summary.
	IncludeArchived bool
}

// HistorySource is the slice of the engine the exporter reads from.
// *agentmem.Engine satisfies it.
type HistorySource interface {
	GetSession(sessionID string) (*types.SessionData, error)
	GetFullHistory(sessionID string, filter *agentmem.HistoryFilter, opts *agentmem.HistoryOptions) ([]types.HistoryMessage, error)
}

// Markdown renders a history as a Markdown transcript. Entries are expected
// in sequence order, as GetFullHistory returns them. A nil session omits the
// document header.
func Markdown(session *types.SessionData, history []types.HistoryMessage, opts *Options) string {
	if opts == nil {
		opts = &Options{}
	}

	var b strings.Builder
	writeHeader(&b, session)

	for _, entry := range history {
		if !included(entry, opts) {
			continue
		}
		writeEntry(&b, entry)
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// HTML renders the Markdown transcript to sanitized HTML.
func HTML(session *types.SessionData, history []types.HistoryMessage, opts *Options) (string, error) {
	return renderHTML(Markdown(session, history, opts))
}

// Export reads a session and renders its transcript as Markdown.
func Export(src HistorySource, sessionID string, opts *Options) (string, error) {
	session, err := src.GetSession(sessionID)
	if err != nil {
		return "", err
	}

	history, err := src.GetFullHistory(sessionID, nil, nil)
	if err != nil {
		return "", err
	}

	return Markdown(session, history, opts), nil
}

// ExportHTML reads a session and renders its transcript as sanitized HTML.
func ExportHTML(src HistorySource, sessionID string, opts *Options) (string, error) {
	doc, err := Export(src, sessionID, opts)
	if err != nil {
		return "", err
	}
	return renderHTML(doc)
}

func renderHTML(doc string) (string, error) {
	var buf bytes.Buffer
	if err := renderer.Convert([]byte(doc), &buf); err != nil {
		return "", fmt.Errorf("failed to render transcript: %w", err)
	}
	return sanitizer.Sanitize(buf.String()), nil
}

func included(entry types.HistoryMessage, opts *Options) bool {
	if entry.Role == types.RoleSystem && !opts.IncludeSystem {
		return false
	}
	if entry.ExcludedFromContext && !opts.IncludeExcluded {
		return false
	}
	if entry.ArchivedBy != "" && !opts.IncludeArchived {
		return false
	}
	return true
}

func writeHeader(b *strings.Builder, session *types.SessionData) {
	if session == nil {
		return
	}

	fmt.Fprintf(b, "# Session %s\n\n", session.SessionID)
	fmt.Fprintf(b, "- Status: %s\n", session.Status)
	fmt.Fprintf(b, "- Messages: %d\n", session.TotalMessages)
	if session.CompactionCount > 0 {
		fmt.Fprintf(b, "- Compactions: %d\n", session.CompactionCount)
	}
	if !session.CreatedAt.IsZero() {
		fmt.Fprintf(b, "- Created: %s\n", session.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	b.WriteString("\n")
}

func writeEntry(b *strings.Builder, entry types.HistoryMessage) {
	fmt.Fprintf(b, "## %s%s\n\n", heading(entry), annotations(entry))

	text := entry.Content.AsText()
	switch {
	case entry.Role == types.RoleTool:
		writeToolResult(b, text)
	case text != "":
		b.WriteString(text)
		b.WriteString("\n\n")
	}

	for _, call := range entry.ToolCalls {
		fmt.Fprintf(b, "**%s** `%s`\n\n", call.Function.Name, call.ID)
		writeJSONBlock(b, call.Function.Arguments)
	}
}

func heading(entry types.HistoryMessage) string {
	switch {
	case entry.IsSummary:
		return "Summary"
	case entry.Role == types.RoleSystem:
		return "System"
	case entry.Role == types.RoleUser:
		return "User"
	case entry.Role == types.RoleTool:
		return "Tool result"
	default:
		return "Assistant"
	}
}

func annotations(entry types.HistoryMessage) string {
	var notes []string
	if entry.ExcludedFromContext {
		reason := entry.ExcludedReason
		if reason == "" {
			reason = "unspecified"
		}
		notes = append(notes, "removed from context: "+reason)
	}
	if entry.ArchivedBy != "" {
		notes = append(notes, "archived")
	}
	if len(notes) == 0 {
		return ""
	}
	return " _(" + strings.Join(notes, "; ") + ")_"
}

// writeToolResult re-indents JSON tool output into a fenced block and falls
// back to plain text for anything else.
func writeToolResult(b *strings.Builder, text string) {
	if text == "" {
		return
	}

	var parsed any
	if json.Unmarshal([]byte(text), &parsed) == nil {
		if indented, err := json.MarshalIndent(parsed, "", "  "); err == nil {
			b.WriteString("```json\n")
			b.Write(indented)
			b.WriteString("\n```\n\n")
			return
		}
	}

	b.WriteString(text)
	b.WriteString("\n\n")
}

// writeJSONBlock writes tool-call arguments as a fenced JSON block,
// re-indented when they parse.
func writeJSONBlock(b *strings.Builder, raw string) {
	if raw == "" {
		raw = "{}"
	}

	var parsed any
	if json.Unmarshal([]byte(raw), &parsed) == nil {
		if indented, err := json.MarshalIndent(parsed, "", "  "); err == nil {
			raw = string(indented)
		}
	}

	b.WriteString("```json\n")
	b.WriteString(raw)
	b.WriteString("\n```\n\n")
}
