package agentmem

import (
	"context"
	"errors"
	"testing"

	"github.com/youssefsiam38/agentmem/types"
)

func mustCreateSession(t *testing.T, engine *Engine, sessionID, prompt string) string {
	t.Helper()
	id, err := engine.CreateSession(context.Background(), sessionID, prompt)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	return id
}

func mustAddMessage(t *testing.T, engine *Engine, sessionID string, msg types.Message) {
	t.Helper()
	if err := engine.AddMessageToContext(context.Background(), sessionID, msg, nil); err != nil {
		t.Fatalf("AddMessageToContext() error = %v", err)
	}
}

func TestAddMessageStreamingUpsert(t *testing.T) {
	engine := newTestEngine(t)
	sessionID := mustCreateSession(t, engine, "s1", "p")

	// A streamed assistant message arrives twice under one id: first the
	// partial tokens, then the final body carrying usage.
	partial := types.Message{
		MessageID: "a1",
		Role:      types.RoleAssistant,
		Content:   types.TextContent("partial"),
		Type:      types.MessageTypeText,
	}
	final := types.Message{
		MessageID:    "a1",
		Role:         types.RoleAssistant,
		Content:      types.TextContent("final"),
		Type:         types.MessageTypeText,
		FinishReason: "stop",
		Usage:        &types.Usage{PromptTokens: 14, CompletionTokens: 14, TotalTokens: 28},
	}

	mustAddMessage(t, engine, sessionID, partial)
	mustAddMessage(t, engine, sessionID, final)

	history, err := engine.GetFullHistory(sessionID, &HistoryFilter{MessageIDs: []string{"a1"}}, nil)
	if err != nil {
		t.Fatalf("GetFullHistory() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history entries for a1 = %d, want 1", len(history))
	}
	if got := history[0].Content.AsText(); got != "final" {
		t.Errorf("history content = %q, want %q", got, "final")
	}
	if history[0].Usage == nil || history[0].Usage.TotalTokens != 28 {
		t.Errorf("history usage = %+v, want total 28", history[0].Usage)
	}

	current, err := engine.GetCurrentContext(sessionID)
	if err != nil {
		t.Fatalf("GetCurrentContext() error = %v", err)
	}
	count := 0
	for _, msg := range current.Messages {
		if msg.MessageID == "a1" {
			count++
			if got := msg.Content.AsText(); got != "final" {
				t.Errorf("context content = %q, want %q", got, "final")
			}
			if msg.Usage == nil || msg.Usage.TotalTokens != 28 {
				t.Errorf("context usage = %+v, want total 28", msg.Usage)
			}
		}
	}
	if count != 1 {
		t.Errorf("context entries for a1 = %d, want 1", count)
	}
}

func TestAddMessageVersioning(t *testing.T) {
	engine := newTestEngine(t)
	sessionID := mustCreateSession(t, engine, "", "p")

	base, err := engine.GetCurrentContext(sessionID)
	if err != nil {
		t.Fatalf("GetCurrentContext() error = %v", err)
	}

	msg := types.Message{MessageID: "m1", Role: types.RoleUser, Content: types.TextContent("one")}
	mustAddMessage(t, engine, sessionID, msg)

	afterAppend, _ := engine.GetCurrentContext(sessionID)
	if afterAppend.Version != base.Version+1 {
		t.Errorf("append: Version = %d, want %d", afterAppend.Version, base.Version+1)
	}

	// Replacing the tail under the same id must not bump the version.
	msg.Content = types.TextContent("one more")
	mustAddMessage(t, engine, sessionID, msg)

	afterReplace, _ := engine.GetCurrentContext(sessionID)
	if afterReplace.Version != afterAppend.Version {
		t.Errorf("replace: Version = %d, want %d", afterReplace.Version, afterAppend.Version)
	}
}

func TestAddMessageSkipHistory(t *testing.T) {
	engine := newTestEngine(t)
	sessionID := mustCreateSession(t, engine, "", "p")

	stub := types.NewToolResultMessage("call-1", "stub")
	err := engine.AddMessageToContext(context.Background(), sessionID, stub, &AddMessageOptions{SkipHistory: true})
	if err != nil {
		t.Fatalf("AddMessageToContext() error = %v", err)
	}

	current, _ := engine.GetCurrentContext(sessionID)
	if len(current.Messages) != 2 {
		t.Fatalf("context has %d messages, want 2", len(current.Messages))
	}

	history, err := engine.GetFullHistory(sessionID, &HistoryFilter{MessageIDs: []string{stub.MessageID}}, nil)
	if err != nil {
		t.Fatalf("GetFullHistory() error = %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history entries for stub = %d, want 0", len(history))
	}
}

func TestAddMessageSessionNotFound(t *testing.T) {
	engine := newTestEngine(t)

	err := engine.AddMessageToContext(context.Background(), "missing", types.NewUserMessage("x"), nil)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("AddMessageToContext() error = %v, want ErrSessionNotFound", err)
	}
}

func TestContextHistoryDuality(t *testing.T) {
	engine := newTestEngine(t)
	sessionID := mustCreateSession(t, engine, "", "p")

	mustAddMessage(t, engine, sessionID, types.NewUserMessage("question"))
	mustAddMessage(t, engine, sessionID, types.NewAssistantMessage("answer"))
	mustAddMessage(t, engine, sessionID, types.NewUserMessage("follow-up"))

	current, err := engine.GetCurrentContext(sessionID)
	if err != nil {
		t.Fatalf("GetCurrentContext() error = %v", err)
	}
	history, err := engine.GetFullHistory(sessionID, nil, nil)
	if err != nil {
		t.Fatalf("GetFullHistory() error = %v", err)
	}

	byID := make(map[string][]types.HistoryMessage)
	for _, entry := range history {
		byID[entry.MessageID] = append(byID[entry.MessageID], entry)
	}

	for _, msg := range current.Messages {
		if msg.Role == types.RoleSystem {
			continue
		}
		entries := byID[msg.MessageID]
		if len(entries) != 1 {
			t.Fatalf("message %s has %d history entries, want 1", msg.MessageID, len(entries))
		}
		if entries[0].ExcludedFromContext {
			t.Errorf("message %s history entry is excluded", msg.MessageID)
		}
		if entries[0].Content.AsText() != msg.Content.AsText() {
			t.Errorf("message %s history content %q != context content %q",
				msg.MessageID, entries[0].Content.AsText(), msg.Content.AsText())
		}
	}
}

func TestHistorySequenceMonotonicity(t *testing.T) {
	engine := newTestEngine(t)
	sessionID := mustCreateSession(t, engine, "", "p")

	first := types.NewUserMessage("first")
	mustAddMessage(t, engine, sessionID, first)
	mustAddMessage(t, engine, sessionID, types.NewAssistantMessage("second"))

	// Re-adding an old id from the middle of the list updates history in
	// place without renumbering.
	first.Content = types.TextContent("first edited")
	if err := engine.UpdateMessageInContext(context.Background(), sessionID, first.MessageID, first); err != nil {
		t.Fatalf("UpdateMessageInContext() error = %v", err)
	}

	history, err := engine.GetFullHistory(sessionID, nil, nil)
	if err != nil {
		t.Fatalf("GetFullHistory() error = %v", err)
	}

	seen := make(map[int]bool)
	for _, entry := range history {
		if entry.Sequence < 1 || entry.Sequence > len(history) {
			t.Errorf("sequence %d out of range 1..%d", entry.Sequence, len(history))
		}
		if seen[entry.Sequence] {
			t.Errorf("duplicate sequence %d", entry.Sequence)
		}
		seen[entry.Sequence] = true

		if entry.MessageID == first.MessageID {
			if entry.Sequence != 2 {
				t.Errorf("updated entry sequence = %d, want 2", entry.Sequence)
			}
			if got := entry.Content.AsText(); got != "first edited" {
				t.Errorf("updated entry content = %q, want %q", got, "first edited")
			}
		}
	}
}

func TestUpdateMessageInContext(t *testing.T) {
	engine := newTestEngine(t)
	sessionID := mustCreateSession(t, engine, "", "p")

	msg := types.NewAssistantMessage("draft")
	mustAddMessage(t, engine, sessionID, msg)

	t.Run("updates context and history", func(t *testing.T) {
		updated := msg.Clone()
		updated.Content = types.TextContent("revised")
		if err := engine.UpdateMessageInContext(context.Background(), sessionID, msg.MessageID, updated); err != nil {
			t.Fatalf("UpdateMessageInContext() error = %v", err)
		}

		current, _ := engine.GetCurrentContext(sessionID)
		if got := current.Messages[1].Content.AsText(); got != "revised" {
			t.Errorf("context content = %q, want %q", got, "revised")
		}

		history, _ := engine.GetFullHistory(sessionID, &HistoryFilter{MessageIDs: []string{msg.MessageID}}, nil)
		if len(history) != 1 || history[0].Content.AsText() != "revised" {
			t.Errorf("history not updated: %+v", history)
		}
	})

	t.Run("message id never changes", func(t *testing.T) {
		hijack := msg.Clone()
		hijack.MessageID = "other-id"
		hijack.Content = types.TextContent("second revision")
		if err := engine.UpdateMessageInContext(context.Background(), sessionID, msg.MessageID, hijack); err != nil {
			t.Fatalf("UpdateMessageInContext() error = %v", err)
		}

		current, _ := engine.GetCurrentContext(sessionID)
		if current.Messages[1].MessageID != msg.MessageID {
			t.Errorf("message id changed to %q", current.Messages[1].MessageID)
		}
		if got := current.Messages[1].Content.AsText(); got != "second revision" {
			t.Errorf("content = %q, want %q", got, "second revision")
		}
	})

	t.Run("missing message fails", func(t *testing.T) {
		err := engine.UpdateMessageInContext(context.Background(), sessionID, "nope", types.NewUserMessage("x"))
		if !errors.Is(err, ErrMessageNotFound) {
			t.Errorf("UpdateMessageInContext() error = %v, want ErrMessageNotFound", err)
		}
	})
}

func TestRemoveMessageFromContext(t *testing.T) {
	engine := newTestEngine(t)
	sessionID := mustCreateSession(t, engine, "", "p")

	user := types.Message{MessageID: "u1", Role: types.RoleUser, Content: types.TextContent("hello")}
	empty := types.Message{MessageID: "a2", Role: types.RoleAssistant, Content: types.TextContent(""), Type: types.MessageTypeText}
	mustAddMessage(t, engine, sessionID, user)
	mustAddMessage(t, engine, sessionID, empty)

	t.Run("removes and marks history", func(t *testing.T) {
		removed, err := engine.RemoveMessageFromContext(context.Background(), sessionID, "a2", "")
		if err != nil {
			t.Fatalf("RemoveMessageFromContext() error = %v", err)
		}
		if !removed {
			t.Fatal("RemoveMessageFromContext() = false, want true")
		}

		current, _ := engine.GetCurrentContext(sessionID)
		for _, msg := range current.Messages {
			if msg.MessageID == "a2" {
				t.Error("a2 still present in context")
			}
		}

		history, _ := engine.GetFullHistory(sessionID, &HistoryFilter{MessageIDs: []string{"a2"}}, nil)
		if len(history) != 1 {
			t.Fatalf("history entries for a2 = %d, want 1", len(history))
		}
		if !history[0].ExcludedFromContext {
			t.Error("history entry not marked excluded")
		}
		if history[0].ExcludedReason != "manual" {
			t.Errorf("ExcludedReason = %q, want %q", history[0].ExcludedReason, "manual")
		}
	})

	t.Run("system message is never removed", func(t *testing.T) {
		current, _ := engine.GetCurrentContext(sessionID)
		removed, err := engine.RemoveMessageFromContext(context.Background(), sessionID, current.Messages[0].MessageID, "manual")
		if err != nil {
			t.Fatalf("RemoveMessageFromContext() error = %v", err)
		}
		if removed {
			t.Error("system message was removed")
		}
	})

	t.Run("missing message is a no-op", func(t *testing.T) {
		removed, err := engine.RemoveMessageFromContext(context.Background(), sessionID, "ghost", "manual")
		if err != nil {
			t.Fatalf("RemoveMessageFromContext() error = %v", err)
		}
		if removed {
			t.Error("RemoveMessageFromContext() = true for missing message")
		}
	})

	t.Run("custom reason", func(t *testing.T) {
		extra := types.NewUserMessage("extra")
		mustAddMessage(t, engine, sessionID, extra)
		if _, err := engine.RemoveMessageFromContext(context.Background(), sessionID, extra.MessageID, "invalid_response"); err != nil {
			t.Fatalf("RemoveMessageFromContext() error = %v", err)
		}

		history, _ := engine.GetFullHistory(sessionID, &HistoryFilter{MessageIDs: []string{extra.MessageID}}, nil)
		if len(history) != 1 || history[0].ExcludedReason != "invalid_response" {
			t.Errorf("history = %+v, want excludedReason invalid_response", history)
		}
	})
}

func TestClearContext(t *testing.T) {
	engine := newTestEngine(t)
	sessionID := mustCreateSession(t, engine, "", "keep me")

	mustAddMessage(t, engine, sessionID, types.NewUserMessage("one"))
	mustAddMessage(t, engine, sessionID, types.NewAssistantMessage("two"))

	before, _ := engine.GetCurrentContext(sessionID)
	if err := engine.ClearContext(context.Background(), sessionID); err != nil {
		t.Fatalf("ClearContext() error = %v", err)
	}

	current, _ := engine.GetCurrentContext(sessionID)
	if len(current.Messages) != 1 {
		t.Fatalf("context has %d messages after clear, want 1", len(current.Messages))
	}
	if current.Messages[0].Role != types.RoleSystem {
		t.Errorf("remaining message role = %q, want system", current.Messages[0].Role)
	}
	if got := current.Messages[0].Content.AsText(); got != "keep me" {
		t.Errorf("system content = %q, want %q", got, "keep me")
	}
	if current.Version <= before.Version {
		t.Errorf("Version = %d, want > %d", current.Version, before.Version)
	}

	// History is untouched by a clear.
	history, _ := engine.GetFullHistory(sessionID, nil, nil)
	if len(history) != 3 {
		t.Errorf("history has %d entries after clear, want 3", len(history))
	}
	for _, entry := range history {
		if entry.ExcludedFromContext {
			t.Errorf("entry %s marked excluded by clear", entry.MessageID)
		}
	}
}

func TestSaveCurrentContext(t *testing.T) {
	engine := newTestEngine(t)
	sessionID := mustCreateSession(t, engine, "", "p")

	mustAddMessage(t, engine, sessionID, types.NewUserMessage("one"))
	before, _ := engine.GetCurrentContext(sessionID)

	reordered := types.CloneMessages(before.Messages)
	reordered = append(reordered, types.NewUserMessage("two"))
	if err := engine.SaveCurrentContext(context.Background(), sessionID, reordered); err != nil {
		t.Fatalf("SaveCurrentContext() error = %v", err)
	}

	current, _ := engine.GetCurrentContext(sessionID)
	if len(current.Messages) != 3 {
		t.Errorf("context has %d messages, want 3", len(current.Messages))
	}
	if current.Version != before.Version+1 {
		t.Errorf("Version = %d, want %d", current.Version, before.Version+1)
	}
	if current.ContextID != before.ContextID {
		t.Errorf("ContextID changed from %q to %q", before.ContextID, current.ContextID)
	}
	if current.Stats.MessageCount != 3 {
		t.Errorf("Stats.MessageCount = %d, want 3", current.Stats.MessageCount)
	}
}

func TestGetCurrentContextReturnsClone(t *testing.T) {
	engine := newTestEngine(t)
	sessionID := mustCreateSession(t, engine, "", "p")

	first, err := engine.GetCurrentContext(sessionID)
	if err != nil {
		t.Fatalf("GetCurrentContext() error = %v", err)
	}
	first.Messages[0].Content = types.TextContent("mutated")

	second, _ := engine.GetCurrentContext(sessionID)
	if got := second.Messages[0].Content.AsText(); got != "p" {
		t.Errorf("cache was mutated through a returned clone: content = %q", got)
	}
}
