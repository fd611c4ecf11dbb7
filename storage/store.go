// Package storage defines the store ports the memory engine persists
// through: one interface per aggregate, grouped into a Bundle that an
// adapter constructs as a unit. Adapters live in the subpackages file,
// document, tiered, and unsupported.
package storage

import (
	"context"

	"github.com/youssefsiam38/agentmem/types"
)

// SessionStore persists SessionData keyed by session id.
type SessionStore interface {
	// Prepare performs idempotent resource setup (directories, tables).
	Prepare(ctx context.Context) error

	// LoadAll returns every persisted record as a snapshot the caller may
	// freely mutate.
	LoadAll(ctx context.Context) (map[string]*types.SessionData, error)

	// Save upserts one record.
	Save(ctx context.Context, sessionID string, session *types.SessionData) error
}

// ContextStore persists CurrentContext keyed by session id.
type ContextStore interface {
	Prepare(ctx context.Context) error
	LoadAll(ctx context.Context) (map[string]*types.CurrentContext, error)
	Save(ctx context.Context, sessionID string, current *types.CurrentContext) error
}

// HistoryStore persists the per-session history log keyed by session id.
type HistoryStore interface {
	Prepare(ctx context.Context) error
	LoadAll(ctx context.Context) (map[string][]types.HistoryMessage, error)
	Save(ctx context.Context, sessionID string, history []types.HistoryMessage) error
}

// CompactionStore persists the per-session compaction record list.
type CompactionStore interface {
	Prepare(ctx context.Context) error
	LoadAll(ctx context.Context) (map[string][]types.CompactionRecord, error)
	Save(ctx context.Context, sessionID string, records []types.CompactionRecord) error
}

// TaskStore persists task records grouped by the owning session: a save
// rewrites the session's whole task list.
type TaskStore interface {
	Prepare(ctx context.Context) error

	// LoadAll returns all tasks keyed by task id.
	LoadAll(ctx context.Context) (map[string]*types.TaskData, error)

	// SaveBySession replaces the task list of one session. An empty list
	// removes the stored document.
	SaveBySession(ctx context.Context, sessionID string, tasks []types.TaskData) error
}

// SubTaskRunStore persists sub-task run records keyed by run id.
type SubTaskRunStore interface {
	Prepare(ctx context.Context) error
	LoadAll(ctx context.Context) (map[string]*types.SubTaskRunData, error)
	Save(ctx context.Context, runID string, run *types.SubTaskRunData) error

	// Delete removes one record. Deleting a missing record is success.
	Delete(ctx context.Context, runID string) error
}

// Bundle groups the six aggregate stores an adapter provides. CloseFunc
// releases the adapter's resources; composing adapters must close each
// underlying bundle exactly once.
type Bundle struct {
	Sessions    SessionStore
	Contexts    ContextStore
	Histories   HistoryStore
	Compactions CompactionStore
	Tasks       TaskStore
	SubTaskRuns SubTaskRunStore

	// CloseFunc releases adapter resources. Nil means nothing to release.
	CloseFunc func(ctx context.Context) error
}

// Prepare runs Prepare on every store in order.
func (b *Bundle) Prepare(ctx context.Context) error {
	for _, p := range []interface {
		Prepare(ctx context.Context) error
	}{b.Sessions, b.Contexts, b.Histories, b.Compactions, b.Tasks, b.SubTaskRuns} {
		if err := p.Prepare(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the bundle's resources.
func (b *Bundle) Close(ctx context.Context) error {
	if b.CloseFunc == nil {
		return nil
	}
	return b.CloseFunc(ctx)
}
