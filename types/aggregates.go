package types

import (
	"time"
)

// SessionStatus represents the lifecycle state of a session
type SessionStatus string

const (
	// SessionActive is a live session accepting writes
	SessionActive SessionStatus = "active"

	// SessionArchived is a retained but inactive session
	SessionArchived SessionStatus = "archived"

	// SessionDeleted is a session marked for removal
	SessionDeleted SessionStatus = "deleted"
)

// SessionData is the mutable lifecycle record for one conversation session.
// SystemPrompt is immutable after creation. TotalMessages tracks the length
// of the session's History, not its Context.
type SessionData struct {
	SessionID        string        `json:"sessionId"`
	SystemPrompt     string        `json:"systemPrompt"`
	CurrentContextID string        `json:"currentContextId"`
	TotalMessages    int           `json:"totalMessages"`
	CompactionCount  int           `json:"compactionCount"`
	Status           SessionStatus `json:"status"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// Clone returns a deep copy of the session record
func (s SessionData) Clone() SessionData {
	return s
}

// ContextStats carries derived numbers recomputed on every context save
type ContextStats struct {
	MessageCount    int `json:"messageCount"`
	EstimatedTokens int `json:"estimatedTokens"`
}

// CurrentContext is the message list handed to the model: mutable, bounded
// by compaction, keyed by session. The first message is always the system
// message whose content equals the session's system prompt.
type CurrentContext struct {
	SessionID        string       `json:"sessionId"`
	ContextID        string       `json:"contextId"`
	Messages         []Message    `json:"messages"`
	Version          int          `json:"version"`
	LastCompactionID string       `json:"lastCompactionId,omitempty"`
	Stats            ContextStats `json:"stats"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// Clone returns a deep copy of the context
func (c CurrentContext) Clone() CurrentContext {
	out := c
	out.Messages = CloneMessages(c.Messages)
	return out
}

// SystemMessage returns the context's system message, or false when the
// context is malformed and has none.
func (c CurrentContext) SystemMessage() (Message, bool) {
	if len(c.Messages) == 0 || c.Messages[0].Role != RoleSystem {
		return Message{}, false
	}
	return c.Messages[0], true
}

// HistoryMessage is one entry of the append-only per-session history log.
// Sequence is dense, 1-based, assigned at first insert and never rewritten.
// A message removed from Context stays here with ExcludedFromContext set.
type HistoryMessage struct {
	Message

	Sequence            int    `json:"sequence"`
	Turn                *int   `json:"turn,omitempty"`
	IsSummary           bool   `json:"isSummary,omitempty"`
	ArchivedBy          string `json:"archivedBy,omitempty"`
	ExcludedFromContext bool   `json:"excludedFromContext,omitempty"`
	ExcludedReason      string `json:"excludedReason,omitempty"`
}

// Clone returns a deep copy of the history entry
func (h HistoryMessage) Clone() HistoryMessage {
	out := h
	out.Message = h.Message.Clone()
	if h.Turn != nil {
		t := *h.Turn
		out.Turn = &t
	}
	return out
}

// CloneHistory returns a deep copy of a history slice
func CloneHistory(entries []HistoryMessage) []HistoryMessage {
	if entries == nil {
		return nil
	}
	out := make([]HistoryMessage, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}

// CompactionReason records why a compaction ran
type CompactionReason string

const (
	// CompactionReasonTokenLimit marks a compaction triggered by token pressure
	CompactionReasonTokenLimit CompactionReason = "token_limit"

	// CompactionReasonManual marks an explicitly requested compaction
	CompactionReasonManual CompactionReason = "manual"

	// CompactionReasonAuto marks a compaction the engine decided to run
	CompactionReasonAuto CompactionReason = "auto"
)

// CompactionRecord captures one compaction event on a session's context
type CompactionRecord struct {
	RecordID           string           `json:"recordId"`
	SessionID          string           `json:"sessionId"`
	CompactedAt        time.Time        `json:"compactedAt"`
	MessageCountBefore int              `json:"messageCountBefore"`
	MessageCountAfter  int              `json:"messageCountAfter"`
	ArchivedMessageIDs []string         `json:"archivedMessageIds"`
	SummaryMessageID   string           `json:"summaryMessageId"`
	Reason             CompactionReason `json:"reason"`
	TokensBefore       *int             `json:"tokensBefore,omitempty"`
	TokensAfter        *int             `json:"tokensAfter,omitempty"`
}

// Clone returns a deep copy of the record
func (r CompactionRecord) Clone() CompactionRecord {
	out := r
	if r.ArchivedMessageIDs != nil {
		out.ArchivedMessageIDs = make([]string, len(r.ArchivedMessageIDs))
		copy(out.ArchivedMessageIDs, r.ArchivedMessageIDs)
	}
	if r.TokensBefore != nil {
		v := *r.TokensBefore
		out.TokensBefore = &v
	}
	if r.TokensAfter != nil {
		v := *r.TokensAfter
		out.TokensAfter = &v
	}
	return out
}

// CloneCompactions returns a deep copy of a compaction record slice
func CloneCompactions(records []CompactionRecord) []CompactionRecord {
	if records == nil {
		return nil
	}
	out := make([]CompactionRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	// TaskPending is a task not yet started
	TaskPending TaskStatus = "pending"

	// TaskInProgress is a task being worked on
	TaskInProgress TaskStatus = "in_progress"

	// TaskCompleted is a finished task
	TaskCompleted TaskStatus = "completed"

	// TaskCancelled is an abandoned task
	TaskCancelled TaskStatus = "cancelled"
)

// TaskData is a user-visible task record. A taskId binds to exactly one
// sessionId for the record's entire lifetime.
type TaskData struct {
	TaskID       string     `json:"taskId"`
	SessionID    string     `json:"sessionId"`
	ParentTaskID *string    `json:"parentTaskId,omitempty"`
	Title        string     `json:"title"`
	Status       TaskStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy of the task record
func (t TaskData) Clone() TaskData {
	out := t
	if t.ParentTaskID != nil {
		p := *t.ParentTaskID
		out.ParentTaskID = &p
	}
	return out
}

// CloneTasks returns a deep copy of a task slice
func CloneTasks(tasks []TaskData) []TaskData {
	if tasks == nil {
		return nil
	}
	out := make([]TaskData, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

// RunMode distinguishes blocking from detached sub-agent runs
type RunMode string

const (
	// RunModeForeground blocks the parent until the run finishes
	RunModeForeground RunMode = "foreground"

	// RunModeBackground detaches the run from the parent turn
	RunModeBackground RunMode = "background"
)

// RunStatus represents the lifecycle state of a sub-task run
type RunStatus string

const (
	// RunQueued is a run waiting to start
	RunQueued RunStatus = "queued"

	// RunRunning is a run in progress
	RunRunning RunStatus = "running"

	// RunCancelling is a run that received a cancel request
	RunCancelling RunStatus = "cancelling"

	// RunCancelled is a run stopped before completion
	RunCancelled RunStatus = "cancelled"

	// RunCompleted is a run that finished successfully
	RunCompleted RunStatus = "completed"

	// RunFailed is a run that finished with an error
	RunFailed RunStatus = "failed"
)

// SubTaskRunData is the bookkeeping record for a sub-agent run launched by a
// tool. Persisted records never embed the child session's messages: Messages
// is an in-flight carrier only, replaced by MessageCount on save.
type SubTaskRunData struct {
	RunID           string     `json:"runId"`
	ParentSessionID string     `json:"parentSessionId"`
	ChildSessionID  string     `json:"childSessionId"`
	Mode            RunMode    `json:"mode"`
	Status          RunStatus  `json:"status"`
	Description     string     `json:"description,omitempty"`
	Model           string     `json:"model,omitempty"`
	MessageCount    *int       `json:"messageCount,omitempty"`
	Messages        []Message  `json:"messages,omitempty"`
	Error           string     `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// Clone returns a deep copy of the run record
func (r SubTaskRunData) Clone() SubTaskRunData {
	out := r
	if r.MessageCount != nil {
		n := *r.MessageCount
		out.MessageCount = &n
	}
	out.Messages = CloneMessages(r.Messages)
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// ChildSessionID builds the conventional child session id for a sub-task run
func ChildSessionID(parentSessionID, runID string) string {
	return parentSessionID + "::subtask::" + runID
}
