package agentmem

import (
	"context"
	"time"

	"github.com/youssefsiam38/agentmem/types"
)

// RemovalReasonManual is the default reason recorded when a caller removes
// a message without giving one.
const RemovalReasonManual = "manual"

// AddMessageOptions controls AddMessageToContext.
type AddMessageOptions struct {
	// SkipHistory adds the message to the context only, leaving the
	// history log untouched. Synthesized protocol stubs use this so the
	// history never records them.
	SkipHistory bool
}

// GetCurrentContext returns a deep clone of a session's context.
func (e *Engine) GetCurrentContext(sessionID string) (*types.CurrentContext, error) {
	const op = "GetCurrentContext"
	if err := e.ensureInitialized(op); err != nil {
		return nil, err
	}

	e.state.mu.RLock()
	defer e.state.mu.RUnlock()

	if _, ok := e.state.sessions[sessionID]; !ok {
		return nil, NewEngineErrorWithSession(op, sessionID, ErrSessionNotFound)
	}
	current, ok := e.state.contexts[sessionID]
	if !ok {
		return nil, NewEngineErrorWithSession(op, sessionID, ErrContextNotFound)
	}
	clone := current.Clone()
	return &clone, nil
}

// SaveCurrentContext overwrites a session's context message list with the
// given ordering, bumps the version, and persists. The history log is not
// touched: content-level changes must go through UpdateMessageInContext.
func (e *Engine) SaveCurrentContext(ctx context.Context, sessionID string, messages []types.Message) error {
	const op = "SaveCurrentContext"
	if err := e.ensureInitialized(op); err != nil {
		return err
	}

	e.state.mu.Lock()
	session, ok := e.state.sessions[sessionID]
	if !ok {
		e.state.mu.Unlock()
		return NewEngineErrorWithSession(op, sessionID, ErrSessionNotFound)
	}
	current, ok := e.state.contexts[sessionID]
	if !ok {
		e.state.mu.Unlock()
		return NewEngineErrorWithSession(op, sessionID, ErrContextNotFound)
	}

	now := time.Now().UTC()
	current.Messages = types.CloneMessages(messages)
	current.Version++
	current.Stats = contextStats(current.Messages)
	current.UpdatedAt = now
	session.UpdatedAt = now

	contextSnap := current.Clone()
	sessionSnap := session.Clone()
	e.state.mu.Unlock()

	bundle := e.store()
	err := fanOut(
		func() error { return bundle.Contexts.Save(ctx, sessionID, &contextSnap) },
		func() error { return bundle.Sessions.Save(ctx, sessionID, &sessionSnap) },
	)
	if err != nil {
		return NewEngineErrorWithSession(op, sessionID, err)
	}
	return nil
}

// AddMessageToContext upserts a message into a session's context and, by
// default, its history. When the message id equals the last context
// message's id the entry is replaced in place, which keeps repeated
// streaming snapshots from producing duplicates. History upserts preserve
// an existing entry's sequence; new entries get the next dense sequence
// value.
func (e *Engine) AddMessageToContext(ctx context.Context, sessionID string, message types.Message, opts *AddMessageOptions) error {
	const op = "AddMessageToContext"
	if err := e.ensureInitialized(op); err != nil {
		return err
	}

	skipHistory := opts != nil && opts.SkipHistory

	e.state.mu.Lock()
	session, ok := e.state.sessions[sessionID]
	if !ok {
		e.state.mu.Unlock()
		return NewEngineErrorWithSession(op, sessionID, ErrSessionNotFound)
	}
	current, ok := e.state.contexts[sessionID]
	if !ok {
		e.state.mu.Unlock()
		return NewEngineErrorWithSession(op, sessionID, ErrContextNotFound)
	}

	stored := message.Clone()
	msgs := current.Messages
	if n := len(msgs); n > 0 && msgs[n-1].MessageID == stored.MessageID {
		msgs[n-1] = stored
	} else {
		msgs = append(msgs, stored)
		current.Version++
	}
	current.Messages = msgs

	now := time.Now().UTC()
	current.Stats = contextStats(current.Messages)
	current.UpdatedAt = now
	session.UpdatedAt = now

	historyTouched := false
	if !skipHistory {
		history := e.state.histories[sessionID]
		if i := lastHistoryIndex(history, stored.MessageID); i >= 0 {
			history[i].Message = message.Clone()
		} else {
			history = append(history, types.HistoryMessage{
				Message:  message.Clone(),
				Sequence: len(history) + 1,
			})
			session.TotalMessages = len(history)
		}
		e.state.histories[sessionID] = history
		historyTouched = true
	}

	contextSnap := current.Clone()
	sessionSnap := session.Clone()
	var historySnap []types.HistoryMessage
	if historyTouched {
		historySnap = types.CloneHistory(e.state.histories[sessionID])
	}
	e.state.mu.Unlock()

	bundle := e.store()
	ops := []func() error{
		func() error { return bundle.Contexts.Save(ctx, sessionID, &contextSnap) },
		func() error { return bundle.Sessions.Save(ctx, sessionID, &sessionSnap) },
	}
	if historyTouched {
		ops = append(ops, func() error { return bundle.Histories.Save(ctx, sessionID, historySnap) })
	}
	if err := fanOut(ops...); err != nil {
		return NewEngineErrorWithSession(op, sessionID, err)
	}

	if err := e.hooks.TriggerMessageAdded(ctx, sessionID, message); err != nil {
		return NewEngineErrorWithSession(op, sessionID, err)
	}
	return nil
}

// UpdateMessageInContext replaces the body of the last occurrence of a
// message in a session's context. The message id never changes: whatever id
// the updated body carries is discarded. When the history log holds the
// same message id, the same body lands there with the entry's sequence and
// annotations preserved.
func (e *Engine) UpdateMessageInContext(ctx context.Context, sessionID string, messageID string, updated types.Message) error {
	const op = "UpdateMessageInContext"
	if err := e.ensureInitialized(op); err != nil {
		return err
	}

	updated.MessageID = messageID

	e.state.mu.Lock()
	session, ok := e.state.sessions[sessionID]
	if !ok {
		e.state.mu.Unlock()
		return NewEngineErrorWithSession(op, sessionID, ErrSessionNotFound)
	}
	current, ok := e.state.contexts[sessionID]
	if !ok {
		e.state.mu.Unlock()
		return NewEngineErrorWithSession(op, sessionID, ErrContextNotFound)
	}

	idx := -1
	for i := len(current.Messages) - 1; i >= 0; i-- {
		if current.Messages[i].MessageID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.state.mu.Unlock()
		return NewEngineErrorWithSession(op, sessionID, ErrMessageNotFound).
			WithContext("messageId", messageID)
	}

	current.Messages[idx] = updated.Clone()

	now := time.Now().UTC()
	current.Stats = contextStats(current.Messages)
	current.UpdatedAt = now
	session.UpdatedAt = now

	historyTouched := false
	history := e.state.histories[sessionID]
	if i := lastHistoryIndex(history, messageID); i >= 0 {
		history[i].Message = updated.Clone()
		historyTouched = true
	}

	contextSnap := current.Clone()
	sessionSnap := session.Clone()
	var historySnap []types.HistoryMessage
	if historyTouched {
		historySnap = types.CloneHistory(history)
	}
	e.state.mu.Unlock()

	bundle := e.store()
	ops := []func() error{
		func() error { return bundle.Contexts.Save(ctx, sessionID, &contextSnap) },
		func() error { return bundle.Sessions.Save(ctx, sessionID, &sessionSnap) },
	}
	if historyTouched {
		ops = append(ops, func() error { return bundle.Histories.Save(ctx, sessionID, historySnap) })
	}
	if err := fanOut(ops...); err != nil {
		return NewEngineErrorWithSession(op, sessionID, err)
	}
	return nil
}

// RemoveMessageFromContext splices a message out of a session's context and
// marks its history entry excluded with the given reason (default
// "manual"). The history entry is never deleted. System messages are never
// removed. Returns whether a removal occurred.
func (e *Engine) RemoveMessageFromContext(ctx context.Context, sessionID string, messageID string, reason string) (bool, error) {
	const op = "RemoveMessageFromContext"
	if err := e.ensureInitialized(op); err != nil {
		return false, err
	}

	if reason == "" {
		reason = RemovalReasonManual
	}

	e.state.mu.Lock()
	session, ok := e.state.sessions[sessionID]
	if !ok {
		e.state.mu.Unlock()
		return false, NewEngineErrorWithSession(op, sessionID, ErrSessionNotFound)
	}
	current, ok := e.state.contexts[sessionID]
	if !ok {
		e.state.mu.Unlock()
		return false, NewEngineErrorWithSession(op, sessionID, ErrContextNotFound)
	}

	idx := -1
	for i := len(current.Messages) - 1; i >= 0; i-- {
		if current.Messages[i].MessageID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 || current.Messages[idx].Role == types.RoleSystem {
		e.state.mu.Unlock()
		return false, nil
	}

	current.Messages = append(current.Messages[:idx], current.Messages[idx+1:]...)
	current.Version++

	now := time.Now().UTC()
	current.Stats = contextStats(current.Messages)
	current.UpdatedAt = now
	session.UpdatedAt = now

	historyTouched := false
	history := e.state.histories[sessionID]
	if i := lastHistoryIndex(history, messageID); i >= 0 {
		history[i].ExcludedFromContext = true
		history[i].ExcludedReason = reason
		historyTouched = true
	}

	contextSnap := current.Clone()
	sessionSnap := session.Clone()
	var historySnap []types.HistoryMessage
	if historyTouched {
		historySnap = types.CloneHistory(history)
	}
	e.state.mu.Unlock()

	bundle := e.store()
	ops := []func() error{
		func() error { return bundle.Contexts.Save(ctx, sessionID, &contextSnap) },
		func() error { return bundle.Sessions.Save(ctx, sessionID, &sessionSnap) },
	}
	if historyTouched {
		ops = append(ops, func() error { return bundle.Histories.Save(ctx, sessionID, historySnap) })
	}
	if err := fanOut(ops...); err != nil {
		return false, NewEngineErrorWithSession(op, sessionID, err)
	}

	if err := e.hooks.TriggerMessageRemoved(ctx, sessionID, messageID, reason); err != nil {
		return true, NewEngineErrorWithSession(op, sessionID, err)
	}
	return true, nil
}

// ClearContext resets a session's context to only its system message and
// bumps the version. The history log is unchanged.
func (e *Engine) ClearContext(ctx context.Context, sessionID string) error {
	const op = "ClearContext"
	if err := e.ensureInitialized(op); err != nil {
		return err
	}

	e.state.mu.Lock()
	session, ok := e.state.sessions[sessionID]
	if !ok {
		e.state.mu.Unlock()
		return NewEngineErrorWithSession(op, sessionID, ErrSessionNotFound)
	}
	current, ok := e.state.contexts[sessionID]
	if !ok {
		e.state.mu.Unlock()
		return NewEngineErrorWithSession(op, sessionID, ErrContextNotFound)
	}

	if system, ok := current.SystemMessage(); ok {
		current.Messages = []types.Message{system}
	} else {
		current.Messages = []types.Message{types.NewSystemMessage(session.SystemPrompt)}
	}
	current.Version++

	now := time.Now().UTC()
	current.Stats = contextStats(current.Messages)
	current.UpdatedAt = now
	session.UpdatedAt = now

	contextSnap := current.Clone()
	sessionSnap := session.Clone()
	e.state.mu.Unlock()

	bundle := e.store()
	err := fanOut(
		func() error { return bundle.Contexts.Save(ctx, sessionID, &contextSnap) },
		func() error { return bundle.Sessions.Save(ctx, sessionID, &sessionSnap) },
	)
	if err != nil {
		return NewEngineErrorWithSession(op, sessionID, err)
	}

	e.log.Debug().Str("sessionId", sessionID).Msg("context cleared")
	return nil
}

// lastHistoryIndex returns the index of the last history entry carrying the
// message id, or -1.
func lastHistoryIndex(history []types.HistoryMessage, messageID string) int {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].MessageID == messageID {
			return i
		}
	}
	return -1
}
