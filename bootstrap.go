package agentmem

import (
	"context"

	"github.com/google/uuid"

	"github.com/youssefsiam38/agentmem/types"
)

// bootstrap is the one-shot initialization pass: prepare every store, load
// every aggregate into the cache, then repair cross-aggregate invariants
// without discarding data. Runs at most once per initialized lifetime.
func (e *Engine) bootstrap(ctx context.Context) error {
	e.mu.Lock()
	bundle := e.bundle
	e.mu.Unlock()

	if bundle == nil {
		fresh, err := e.newBundle()
		if err != nil {
			return NewEngineError("Initialize", err)
		}
		e.mu.Lock()
		e.bundle = fresh
		e.mu.Unlock()
		bundle = fresh
	}

	if err := bundle.Prepare(ctx); err != nil {
		return NewEngineError("Initialize", err)
	}

	sessions, err := bundle.Sessions.LoadAll(ctx)
	if err != nil {
		return NewEngineError("Initialize", err)
	}
	contexts, err := bundle.Contexts.LoadAll(ctx)
	if err != nil {
		return NewEngineError("Initialize", err)
	}
	histories, err := bundle.Histories.LoadAll(ctx)
	if err != nil {
		return NewEngineError("Initialize", err)
	}
	compactions, err := bundle.Compactions.LoadAll(ctx)
	if err != nil {
		return NewEngineError("Initialize", err)
	}
	tasks, err := bundle.Tasks.LoadAll(ctx)
	if err != nil {
		return NewEngineError("Initialize", err)
	}
	runs, err := bundle.SubTaskRuns.LoadAll(ctx)
	if err != nil {
		return NewEngineError("Initialize", err)
	}

	e.state.mu.Lock()
	e.state.sessions = sessions
	e.state.contexts = contexts
	e.state.histories = histories
	e.state.compactions = compactions
	e.state.tasks = tasks
	e.state.runs = runs
	repairs := e.repairLocked(ctx)
	e.state.mu.Unlock()

	if len(repairs) > 0 {
		if err := fanOut(repairs...); err != nil {
			return NewEngineError("Initialize", err)
		}
	}

	e.log.Info().
		Int("sessions", len(sessions)).
		Int("contexts", len(contexts)).
		Int("tasks", len(tasks)).
		Int("subTaskRuns", len(runs)).
		Int("repairs", len(repairs)).
		Msg("memory engine initialized")

	return nil
}

// repairLocked enforces cross-aggregate invariants on the freshly loaded
// cache: every session gets a context, a history, and a compaction list,
// rebuilt from whichever sibling survived. The cache is fixed in place;
// the returned closures persist the repairs and are fanned out by the
// caller. Requires state.mu held.
func (e *Engine) repairLocked(ctx context.Context) []func() error {
	bundle := e.bundle
	var writes []func() error

	for sessionID, session := range e.state.sessions {
		if _, ok := e.state.contexts[sessionID]; !ok {
			current, updated := rebuildContext(session, e.state.histories[sessionID])
			e.state.contexts[sessionID] = current

			e.log.Warn().
				Str("sessionId", sessionID).
				Int("recovered", len(current.Messages)).
				Msg("rebuilt missing context from history")

			writes = append(writes, func() error {
				return bundle.Contexts.Save(ctx, sessionID, current)
			})
			if updated {
				writes = append(writes, func() error {
					return bundle.Sessions.Save(ctx, sessionID, session)
				})
			}
		}

		if _, ok := e.state.histories[sessionID]; !ok {
			history := projectHistory(e.state.contexts[sessionID])
			e.state.histories[sessionID] = history
			session.TotalMessages = len(history)

			e.log.Warn().
				Str("sessionId", sessionID).
				Int("entries", len(history)).
				Msg("rebuilt missing history from context")

			writes = append(writes, func() error {
				return bundle.Histories.Save(ctx, sessionID, history)
			})
			writes = append(writes, func() error {
				return bundle.Sessions.Save(ctx, sessionID, session)
			})
		}

		if _, ok := e.state.compactions[sessionID]; !ok {
			e.state.compactions[sessionID] = []types.CompactionRecord{}

			writes = append(writes, func() error {
				return bundle.Compactions.Save(ctx, sessionID, []types.CompactionRecord{})
			})
		}
	}

	return writes
}

// rebuildContext recovers a session's context from its history: entries
// that were never archived or excluded, stripped of history-only fields,
// with the leading system message restored from the session's prompt.
// Reports whether the session record itself was updated (fresh contextId).
func rebuildContext(session *types.SessionData, history []types.HistoryMessage) (*types.CurrentContext, bool) {
	messages := make([]types.Message, 0, len(history))
	for _, entry := range history {
		if entry.ArchivedBy != "" || entry.ExcludedFromContext {
			continue
		}
		messages = append(messages, entry.Message.Clone())
	}

	if len(messages) == 0 || messages[0].Role != types.RoleSystem {
		messages = append([]types.Message{types.NewSystemMessage(session.SystemPrompt)}, messages...)
	} else {
		messages[0].Content = types.TextContent(session.SystemPrompt)
	}

	updated := false
	if session.CurrentContextID == "" {
		session.CurrentContextID = uuid.New().String()
		updated = true
	}

	return &types.CurrentContext{
		SessionID: session.SessionID,
		ContextID: session.CurrentContextID,
		Messages:  messages,
		Version:   1,
		Stats:     contextStats(messages),
		UpdatedAt: session.UpdatedAt,
	}, updated
}

// projectHistory synthesizes a session's history log from its context:
// dense 1-based sequence values, turn 0 on the leading system message.
func projectHistory(current *types.CurrentContext) []types.HistoryMessage {
	if current == nil {
		return []types.HistoryMessage{}
	}

	history := make([]types.HistoryMessage, 0, len(current.Messages))
	for i, msg := range current.Messages {
		entry := types.HistoryMessage{
			Message:  msg.Clone(),
			Sequence: i + 1,
		}
		if i == 0 && msg.Role == types.RoleSystem {
			turn := 0
			entry.Turn = &turn
		}
		if msg.Type == types.MessageTypeSummary {
			entry.IsSummary = true
		}
		history = append(history, entry)
	}
	return history
}
