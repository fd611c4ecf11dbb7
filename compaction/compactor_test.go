package compaction

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/youssefsiam38/agentmem/types"
)

type summarizerFunc func(SummaryRequest) (string, error)

func (f summarizerFunc) Summarize(_ context.Context, req SummaryRequest) (string, error) {
	return f(req)
}

type recorderFunc func(sessionID string, transition Transition) (*types.CompactionRecord, error)

func (f recorderFunc) RecordCompaction(_ context.Context, sessionID string, transition Transition) (*types.CompactionRecord, error) {
	return f(sessionID, transition)
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testConfig() Config {
	return Config{
		MaxContextTokens: 1000,
		MaxOutputTokens:  200,
		TriggerRatio:     0.5,
		KeepLastN:        1,
	}
}

func TestCompactReassemblesContext(t *testing.T) {
	messages := []types.Message{
		textMsg("sys", types.RoleSystem, "prompt"),
		textMsg("x", types.RoleUser, "x"),
		toolCallMsg("call", "c-k"),
		toolResultMsg("result", "c-k", "ok"),
		textMsg("final", types.RoleUser, "final"),
	}

	var recorded *Transition
	recorder := recorderFunc(func(sessionID string, transition Transition) (*types.CompactionRecord, error) {
		if sessionID != "s1" {
			t.Errorf("RecordCompaction sessionID = %q, want s1", sessionID)
		}
		recorded = &transition
		return &types.CompactionRecord{
			RecordID:  "rec1",
			SessionID: sessionID,
			Reason:    transition.Reason,
			CompactedAt: time.Now().UTC(),
		}, nil
	})

	compactor, err := New(testConfig(), summarizerFunc(func(req SummaryRequest) (string, error) {
		if !strings.Contains(req.Conversation, `"x"`) {
			t.Errorf("summarizer conversation %q does not contain the archived message", req.Conversation)
		}
		return "the summary", nil
	}), recorder, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := compactor.Compact(context.Background(), "s1", messages, types.CompactionReasonManual)
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}

	want := []string{"sys", result.Summary.MessageID, "call", "result", "final"}
	if !equalIDs(result.Messages, want) {
		t.Errorf("Compact() messages = %v, want %v", idsOf(result.Messages), want)
	}
	if result.Summary.Type != types.MessageTypeSummary {
		t.Errorf("summary type = %q, want %q", result.Summary.Type, types.MessageTypeSummary)
	}
	if result.Summary.Content.AsText() != "the summary" {
		t.Errorf("summary content = %q, want %q", result.Summary.Content.AsText(), "the summary")
	}
	if result.ArchivedCount != 1 {
		t.Errorf("ArchivedCount = %d, want 1", result.ArchivedCount)
	}
	if result.Record == nil || result.Record.RecordID != "rec1" {
		t.Errorf("Record = %+v, want the recorder's record", result.Record)
	}

	if recorded == nil {
		t.Fatal("recorder never invoked")
	}
	if !equalIDs(recorded.Kept, []string{"call", "result", "final"}) {
		t.Errorf("transition kept = %v, want [call result final]", idsOf(recorded.Kept))
	}
	if recorded.Reason != types.CompactionReasonManual {
		t.Errorf("transition reason = %q, want manual", recorded.Reason)
	}
	if recorded.TokensBefore == nil || recorded.TokensAfter == nil {
		t.Error("transition token counts missing")
	}
}

func TestCompactCarriesPreviousSummary(t *testing.T) {
	messages := []types.Message{
		textMsg("sys", types.RoleSystem, "prompt"),
		types.NewSummaryMessage("earlier summary"),
		textMsg("u1", types.RoleUser, "one"),
		textMsg("a1", types.RoleAssistant, "two"),
		textMsg("u2", types.RoleUser, "three"),
	}

	var gotPrevious string
	compactor, err := New(testConfig(), summarizerFunc(func(req SummaryRequest) (string, error) {
		gotPrevious = req.PreviousSummary
		return "merged summary", nil
	}), nil, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := compactor.Compact(context.Background(), "s1", messages, types.CompactionReasonTokenLimit)
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}

	if gotPrevious != "earlier summary" {
		t.Errorf("previous summary = %q, want %q", gotPrevious, "earlier summary")
	}
	if result.Record != nil {
		t.Errorf("Record = %+v, want nil without a recorder", result.Record)
	}
}

func TestCompactWithNothingPendingFails(t *testing.T) {
	compactor, err := New(testConfig(), summarizerFunc(func(SummaryRequest) (string, error) {
		return "unused", nil
	}), nil, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	messages := []types.Message{
		textMsg("sys", types.RoleSystem, "prompt"),
		textMsg("u1", types.RoleUser, "hi"),
	}
	if _, err := compactor.Compact(context.Background(), "s1", messages, types.CompactionReasonManual); !errors.Is(err, ErrNoMessagesToCompact) {
		t.Errorf("Compact() error = %v, want ErrNoMessagesToCompact", err)
	}
}

func TestCompactIfNeededSkipsQuietSessions(t *testing.T) {
	compactor, err := New(testConfig(), summarizerFunc(func(SummaryRequest) (string, error) {
		t.Error("summarizer invoked for a quiet session")
		return "", nil
	}), nil, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	messages := []types.Message{
		usageMsg(types.RoleUser, "a", 10),
		usageMsg(types.RoleAssistant, "b", 10),
	}
	result, err := compactor.CompactIfNeeded(context.Background(), "s1", messages)
	if err != nil {
		t.Fatalf("CompactIfNeeded() error = %v", err)
	}
	if result != nil {
		t.Errorf("CompactIfNeeded() = %+v, want nil", result)
	}
}

func TestSummarizerErrorPropagates(t *testing.T) {
	compactor, err := New(testConfig(), summarizerFunc(func(SummaryRequest) (string, error) {
		return "", ErrSummarizationFailed
	}), nil, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	messages := []types.Message{
		textMsg("u1", types.RoleUser, "one"),
		textMsg("a1", types.RoleAssistant, "two"),
		textMsg("u2", types.RoleUser, "three"),
	}
	_, err = compactor.Compact(context.Background(), "s1", messages, types.CompactionReasonManual)
	if !errors.Is(err, ErrSummarizationFailed) {
		t.Errorf("Compact() error = %v, want ErrSummarizationFailed", err)
	}

	var cerr *CompactionError
	if !errors.As(err, &cerr) {
		t.Fatalf("Compact() error type = %T, want *CompactionError", err)
	}
	if cerr.SessionID != "s1" {
		t.Errorf("error session = %q, want s1", cerr.SessionID)
	}
}

func TestNewRequiresSummarizer(t *testing.T) {
	if _, err := New(testConfig(), nil, nil, testLogger()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New(nil summarizer) error = %v, want ErrInvalidConfig", err)
	}
}
