package agentmem

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/youssefsiam38/agentmem/types"
)

// CreateSession creates a new conversation session with its context,
// history, and compaction list, all persisted in parallel. A fresh session
// id is allocated when sessionID is empty; an id that is already taken
// fails with ErrSessionExists.
func (e *Engine) CreateSession(ctx context.Context, sessionID string, systemPrompt string) (string, error) {
	const op = "CreateSession"
	if err := e.ensureInitialized(op); err != nil {
		return "", err
	}

	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	now := time.Now().UTC()
	systemMsg := types.NewSystemMessage(systemPrompt)

	session := &types.SessionData{
		SessionID:        sessionID,
		SystemPrompt:     systemPrompt,
		CurrentContextID: uuid.New().String(),
		TotalMessages:    1,
		Status:           types.SessionActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	messages := []types.Message{systemMsg}
	current := &types.CurrentContext{
		SessionID: sessionID,
		ContextID: session.CurrentContextID,
		Messages:  messages,
		Version:   1,
		Stats:     contextStats(messages),
		UpdatedAt: now,
	}

	turn := 0
	history := []types.HistoryMessage{{
		Message:  systemMsg.Clone(),
		Sequence: 1,
		Turn:     &turn,
	}}
	records := []types.CompactionRecord{}

	e.state.mu.Lock()
	if _, exists := e.state.sessions[sessionID]; exists {
		e.state.mu.Unlock()
		return "", NewEngineErrorWithSession(op, sessionID, ErrSessionExists)
	}
	e.state.sessions[sessionID] = session
	e.state.contexts[sessionID] = current
	e.state.histories[sessionID] = history
	e.state.compactions[sessionID] = records

	sessionSnap := session.Clone()
	contextSnap := current.Clone()
	historySnap := types.CloneHistory(history)
	e.state.mu.Unlock()

	bundle := e.store()
	err := fanOut(
		func() error { return bundle.Sessions.Save(ctx, sessionID, &sessionSnap) },
		func() error { return bundle.Contexts.Save(ctx, sessionID, &contextSnap) },
		func() error { return bundle.Histories.Save(ctx, sessionID, historySnap) },
		func() error { return bundle.Compactions.Save(ctx, sessionID, records) },
	)
	if err != nil {
		return "", NewEngineErrorWithSession(op, sessionID, err)
	}

	if err := e.hooks.TriggerSessionCreated(ctx, sessionID); err != nil {
		return "", NewEngineErrorWithSession(op, sessionID, err)
	}

	e.log.Debug().Str("sessionId", sessionID).Msg("session created")
	return sessionID, nil
}

// GetSession returns a deep clone of one session record.
func (e *Engine) GetSession(sessionID string) (*types.SessionData, error) {
	const op = "GetSession"
	if err := e.ensureInitialized(op); err != nil {
		return nil, err
	}

	e.state.mu.RLock()
	defer e.state.mu.RUnlock()

	session, ok := e.state.sessions[sessionID]
	if !ok {
		return nil, NewEngineErrorWithSession(op, sessionID, ErrSessionNotFound)
	}
	clone := session.Clone()
	return &clone, nil
}

// SessionFilter narrows QuerySessions results. Zero values match everything.
type SessionFilter struct {
	// Status keeps only sessions in this lifecycle state.
	Status types.SessionStatus
}

// SessionQueryOptions paginates QuerySessions results.
type SessionQueryOptions struct {
	Offset int
	Limit  int
}

// QuerySessions returns deep clones of sessions matching the filter,
// ordered by creation time.
func (e *Engine) QuerySessions(filter *SessionFilter, opts *SessionQueryOptions) ([]types.SessionData, error) {
	const op = "QuerySessions"
	if err := e.ensureInitialized(op); err != nil {
		return nil, err
	}

	e.state.mu.RLock()
	matched := make([]types.SessionData, 0, len(e.state.sessions))
	for _, session := range e.state.sessions {
		if filter != nil && filter.Status != "" && session.Status != filter.Status {
			continue
		}
		matched = append(matched, session.Clone())
	}
	e.state.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	if opts != nil {
		matched = paginate(matched, opts.Offset, opts.Limit)
	}
	return matched, nil
}

// paginate applies an offset and a limit (0 means unlimited) to a query
// result.
func paginate[T any](items []T, offset, limit int) []T {
	if offset > len(items) {
		offset = len(items)
	}
	if offset > 0 {
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// ArchiveSession moves an active session to archived status. Archived
// sessions keep all their aggregates and can still be read.
func (e *Engine) ArchiveSession(ctx context.Context, sessionID string) error {
	const op = "ArchiveSession"
	if err := e.ensureInitialized(op); err != nil {
		return err
	}

	e.state.mu.Lock()
	session, ok := e.state.sessions[sessionID]
	if !ok {
		e.state.mu.Unlock()
		return NewEngineErrorWithSession(op, sessionID, ErrSessionNotFound)
	}
	session.Status = types.SessionArchived
	session.UpdatedAt = time.Now().UTC()
	snap := session.Clone()
	e.state.mu.Unlock()

	if err := e.store().Sessions.Save(ctx, sessionID, &snap); err != nil {
		return NewEngineErrorWithSession(op, sessionID, err)
	}

	e.log.Info().Str("sessionId", sessionID).Msg("session archived")
	return nil
}
