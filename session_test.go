package agentmem

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/youssefsiam38/agentmem/repair"
	"github.com/youssefsiam38/agentmem/types"
)

func newTestSession(t *testing.T, engine *Engine, sessionID, prompt string) *Session {
	t.Helper()
	session := NewSession(engine, sessionID, prompt)
	if err := session.Initialize(context.Background()); err != nil {
		t.Fatalf("session Initialize() error = %v", err)
	}
	return session
}

func interruptedToolCallTurn(id string) types.Message {
	return types.Message{
		MessageID:    id,
		Role:         types.RoleAssistant,
		Type:         types.MessageTypeToolCall,
		Content:      types.TextContent(""),
		FinishReason: "tool_calls",
		ToolCalls: []types.ToolCall{
			{ID: "c1", Type: types.ToolCallTypeFunction, Function: types.FunctionCall{Name: "tool_a", Arguments: "{}"}},
			{ID: "c2", Type: types.ToolCallTypeFunction, Function: types.FunctionCall{Name: "tool_b", Arguments: "{}"}},
		},
	}
}

func TestSessionGeneratesID(t *testing.T) {
	engine := newTestEngine(t)
	session := newTestSession(t, engine, "", "p")

	if session.ID() == "" {
		t.Error("ID() is empty after Initialize")
	}
	if _, err := engine.GetSession(session.ID()); err != nil {
		t.Errorf("GetSession(%s) error = %v", session.ID(), err)
	}
	if session.MessageCount() != 1 {
		t.Errorf("MessageCount() = %d, want 1", session.MessageCount())
	}
}

func TestSessionInitializeConcurrent(t *testing.T) {
	engine := newTestEngine(t)
	session := NewSession(engine, "", "p")

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = session.Initialize(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Initialize()[%d] error = %v", i, err)
		}
	}

	sessions, err := engine.QuerySessions(nil, nil)
	if err != nil {
		t.Fatalf("QuerySessions() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("engine holds %d sessions, want 1", len(sessions))
	}
}

func TestSessionAddMessageStreaming(t *testing.T) {
	engine := newTestEngine(t)
	session := newTestSession(t, engine, "", "p")

	msg := types.Message{MessageID: "x", Role: types.RoleAssistant, Content: types.TextContent("a"), Type: types.MessageTypeText}
	session.AddMessage(msg)
	msg.Content = types.TextContent("ab")
	session.AddMessage(msg)
	msg.Content = types.TextContent("abc")
	session.AddMessage(msg)

	if got := session.MessageCount(); got != 2 {
		t.Errorf("MessageCount() = %d, want 2", got)
	}
	local := session.Messages()
	if got := local[1].Content.AsText(); got != "abc" {
		t.Errorf("local content = %q, want abc", got)
	}

	if err := session.Sync(context.Background()); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	current, err := engine.GetCurrentContext(session.ID())
	if err != nil {
		t.Fatalf("GetCurrentContext() error = %v", err)
	}
	if len(current.Messages) != 2 {
		t.Fatalf("context has %d messages, want 2", len(current.Messages))
	}
	if got := current.Messages[1].Content.AsText(); got != "abc" {
		t.Errorf("context content = %q, want abc", got)
	}

	history, err := engine.GetFullHistory(session.ID(), &HistoryFilter{MessageIDs: []string{"x"}}, nil)
	if err != nil {
		t.Fatalf("GetFullHistory() error = %v", err)
	}
	if len(history) != 1 || history[0].Content.AsText() != "abc" {
		t.Errorf("history = %v, want one entry with abc", historyIDs(history))
	}
}

func TestSessionQueueOrdering(t *testing.T) {
	engine := newTestEngine(t)
	session := newTestSession(t, engine, "", "p")

	const n = 25
	for i := 0; i < n; i++ {
		session.AddMessage(types.Message{
			MessageID: fmt.Sprintf("m%02d", i),
			Role:      types.RoleUser,
			Content:   types.TextContent(fmt.Sprintf("msg %d", i)),
		})
	}
	if err := session.Sync(context.Background()); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	history, err := engine.GetFullHistory(session.ID(), nil, nil)
	if err != nil {
		t.Fatalf("GetFullHistory() error = %v", err)
	}
	// system + n user messages, in submission order.
	if len(history) != n+1 {
		t.Fatalf("history has %d entries, want %d", len(history), n+1)
	}
	for i := 0; i < n; i++ {
		want := fmt.Sprintf("m%02d", i)
		if got := history[i+1].MessageID; got != want {
			t.Errorf("history[%d] = %s, want %s", i+1, got, want)
		}
	}
}

func TestSessionResume(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	engine := newTestEngineAt(t, dir)
	session := newTestSession(t, engine, "resume-me", "p")
	session.AddMessage(types.NewUserMessage("before the restart"))
	if err := session.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if err := engine.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened := newTestEngineAt(t, dir)
	resumed := newTestSession(t, reopened, "resume-me", "p")

	if resumed.MessageCount() != 2 {
		t.Fatalf("MessageCount() = %d, want 2", resumed.MessageCount())
	}
	if got := resumed.Messages()[1].Content.AsText(); got != "before the restart" {
		t.Errorf("resumed content = %q", got)
	}
}

func TestSessionInterruptedToolCallResume(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	engine := newTestEngineAt(t, dir)
	session := newTestSession(t, engine, "sc", "p")
	session.AddMessage(interruptedToolCallTurn("at"))
	if err := session.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if err := engine.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened := newTestEngineAt(t, dir)
	resumed := newTestSession(t, reopened, "sc", "p")
	if _, err := resumed.CompactBeforeLLMCall(ctx); err != nil {
		t.Fatalf("CompactBeforeLLMCall() error = %v", err)
	}

	countStubs := func() int {
		current, err := reopened.GetCurrentContext("sc")
		if err != nil {
			t.Fatalf("GetCurrentContext() error = %v", err)
		}
		count := 0
		found := map[string]bool{}
		for _, msg := range current.Messages {
			if msg.Role != types.RoleTool {
				continue
			}
			if !strings.Contains(msg.Content.AsText(), `"error":"TOOL_CALL_INTERRUPTED"`) {
				t.Errorf("tool message %s lacks interrupted marker: %q", msg.ToolCallID, msg.Content.AsText())
			}
			count++
			found[msg.ToolCallID] = true
		}
		if !found["c1"] || !found["c2"] {
			t.Errorf("stubs found for %v, want c1 and c2", found)
		}
		return count
	}

	if got := countStubs(); got != 2 {
		t.Fatalf("context has %d interrupted stubs, want 2", got)
	}

	// A second pass must not duplicate the stubs.
	if _, err := resumed.CompactBeforeLLMCall(ctx); err != nil {
		t.Fatalf("second CompactBeforeLLMCall() error = %v", err)
	}
	if got := countStubs(); got != 2 {
		t.Errorf("context has %d interrupted stubs after second pass, want 2", got)
	}

	// The stubs live in the context only.
	history, err := reopened.GetFullHistory("sc", nil, nil)
	if err != nil {
		t.Fatalf("GetFullHistory() error = %v", err)
	}
	for _, entry := range history {
		if entry.Role == types.RoleTool && strings.Contains(entry.Content.AsText(), repair.InterruptedError) {
			t.Errorf("interrupted stub leaked into history: %s", entry.MessageID)
		}
	}
}

func TestSessionRepairInterruptedToolCalls(t *testing.T) {
	engine := newTestEngine(t)
	session := newTestSession(t, engine, "", "p")

	session.AddMessage(interruptedToolCallTurn("at"))

	count := session.RepairInterruptedToolCalls()
	if count != 2 {
		t.Fatalf("RepairInterruptedToolCalls() = %d, want 2", count)
	}

	local := session.Messages()
	stubs := 0
	for _, msg := range local {
		if msg.Role == types.RoleTool && strings.Contains(msg.Content.AsText(), repair.InterruptedError) {
			stubs++
		}
	}
	if stubs != 2 {
		t.Errorf("local array has %d stubs, want 2", stubs)
	}

	// Repairing an already-repaired array synthesizes nothing.
	if again := session.RepairInterruptedToolCalls(); again != 0 {
		t.Errorf("second RepairInterruptedToolCalls() = %d, want 0", again)
	}

	if err := session.Sync(context.Background()); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	current, _ := engine.GetCurrentContext(session.ID())
	if len(current.Messages) != 4 {
		t.Errorf("context has %d messages, want 4", len(current.Messages))
	}
}

func TestSessionCompactBeforeLLMCall(t *testing.T) {
	summarizer := &fixedSummarizer{text: "the story so far"}
	engine := newTestEngine(t,
		WithSummarizer(summarizer),
		WithKeepLastMessages(2),
		WithMaxContextTokens(1000),
		WithMaxOutputTokens(200),
	)
	session := newTestSession(t, engine, "", "p")

	withUsage := func(msg types.Message, total int) types.Message {
		msg.Usage = &types.Usage{TotalTokens: total}
		return msg
	}
	session.AddMessage(withUsage(types.NewUserMessage("q1"), 300))
	session.AddMessage(withUsage(types.NewAssistantMessage("a1"), 300))
	session.AddMessage(withUsage(types.NewUserMessage("q2"), 300))

	result, err := session.CompactBeforeLLMCall(context.Background())
	if err != nil {
		t.Fatalf("CompactBeforeLLMCall() error = %v", err)
	}
	if result == nil {
		t.Fatal("CompactBeforeLLMCall() = nil, want a compaction")
	}

	// The local array reflects the rebuilt context.
	local := session.Messages()
	if len(local) < 2 || local[1].Type != types.MessageTypeSummary {
		t.Errorf("local[1] = %+v, want the summary", local[1])
	}
	if got := local[1].Content.AsText(); got != "the story so far" {
		t.Errorf("summary content = %q", got)
	}

	// Under the threshold again, the call is quiet.
	result, err = session.CompactBeforeLLMCall(context.Background())
	if err != nil {
		t.Fatalf("second CompactBeforeLLMCall() error = %v", err)
	}
	if result != nil {
		t.Errorf("second CompactBeforeLLMCall() = %+v, want nil", result)
	}
}

func TestSessionCompactBeforeLLMCallDisabled(t *testing.T) {
	summarizer := &fixedSummarizer{text: "s"}
	engine := newTestEngine(t, WithSummarizer(summarizer), WithAutoCompaction(false))
	session := newTestSession(t, engine, "", "p")

	session.AddMessage(types.NewUserMessage("q"))
	result, err := session.CompactBeforeLLMCall(context.Background())
	if err != nil {
		t.Fatalf("CompactBeforeLLMCall() error = %v", err)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil with auto-compaction off", result)
	}
	if len(summarizer.requests) != 0 {
		t.Errorf("summarizer was called %d times, want 0", len(summarizer.requests))
	}
}
