package agentmem

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/youssefsiam38/agentmem/compaction"
	"github.com/youssefsiam38/agentmem/types"
)

// CompactOptions controls a manual CompactContext call.
type CompactOptions struct {
	// Reason recorded on the resulting compaction record. Defaults to
	// types.CompactionReasonManual.
	Reason types.CompactionReason
}

// CompactContext compacts a session's context unconditionally: the prefix
// beyond KeepLastN is summarized and archived regardless of token usage.
// Requires a summarizer to be configured.
func (e *Engine) CompactContext(ctx context.Context, sessionID string, opts *CompactOptions) (*types.CompactionRecord, error) {
	const op = "CompactContext"
	if err := e.ensureInitialized(op); err != nil {
		return nil, err
	}
	if e.compactor == nil {
		return nil, NewEngineErrorWithSession(op, sessionID,
			fmt.Errorf("%w: no summarizer configured", ErrInvalidConfig))
	}

	messages, err := e.contextMessages(op, sessionID)
	if err != nil {
		return nil, err
	}

	reason := types.CompactionReasonManual
	if opts != nil && opts.Reason != "" {
		reason = opts.Reason
	}

	result, err := e.compactor.Compact(ctx, sessionID, messages, reason)
	if err != nil {
		return nil, NewEngineErrorWithSession(op, sessionID, err)
	}
	return result.Record, nil
}

// CompactContextIfNeeded compacts a session's context only when it crosses
// the configured token trigger. Returns (nil, nil) when the context is
// under the threshold or no summarizer is configured.
func (e *Engine) CompactContextIfNeeded(ctx context.Context, sessionID string) (*compaction.Result, error) {
	const op = "CompactContextIfNeeded"
	if err := e.ensureInitialized(op); err != nil {
		return nil, err
	}
	if e.compactor == nil {
		return nil, nil
	}

	messages, err := e.contextMessages(op, sessionID)
	if err != nil {
		return nil, err
	}

	result, err := e.compactor.CompactIfNeeded(ctx, sessionID, messages)
	if err != nil {
		return nil, NewEngineErrorWithSession(op, sessionID, err)
	}
	return result, nil
}

// GetCompactionRecords returns a session's compaction records, oldest first.
func (e *Engine) GetCompactionRecords(sessionID string) ([]types.CompactionRecord, error) {
	const op = "GetCompactionRecords"
	if err := e.ensureInitialized(op); err != nil {
		return nil, err
	}

	e.state.mu.RLock()
	defer e.state.mu.RUnlock()

	if _, ok := e.state.sessions[sessionID]; !ok {
		return nil, NewEngineErrorWithSession(op, sessionID, ErrSessionNotFound)
	}
	return types.CloneCompactions(e.state.compactions[sessionID]), nil
}

// RecordCompaction persists a compaction transition: archived history
// entries get stamped with the fresh record id, the summary is upserted
// into history, the context is rebuilt as [system, summary, kept...], and
// the record is appended. Satisfies compaction.Recorder.
func (e *Engine) RecordCompaction(ctx context.Context, sessionID string, transition compaction.Transition) (*types.CompactionRecord, error) {
	const op = "RecordCompaction"
	if err := e.ensureInitialized(op); err != nil {
		return nil, err
	}

	if err := e.hooks.TriggerBeforeCompaction(ctx, sessionID); err != nil {
		return nil, NewEngineErrorWithSession(op, sessionID, err)
	}

	e.state.mu.Lock()
	session, ok := e.state.sessions[sessionID]
	if !ok {
		e.state.mu.Unlock()
		return nil, NewEngineErrorWithSession(op, sessionID, ErrSessionNotFound)
	}
	current, ok := e.state.contexts[sessionID]
	if !ok {
		e.state.mu.Unlock()
		return nil, NewEngineErrorWithSession(op, sessionID, ErrContextNotFound)
	}

	now := time.Now().UTC()
	recordID := uuid.New().String()
	countBefore := len(current.Messages)

	kept := make(map[string]struct{}, len(transition.Kept)+1)
	for i := range transition.Kept {
		kept[transition.Kept[i].MessageID] = struct{}{}
	}
	kept[transition.Summary.MessageID] = struct{}{}

	// Everything in the old context that is neither system nor kept is
	// archived, in context order.
	history := e.state.histories[sessionID]
	var archivedIDs []string
	for i := range current.Messages {
		msg := &current.Messages[i]
		if msg.Role == types.RoleSystem {
			continue
		}
		if _, keep := kept[msg.MessageID]; keep {
			continue
		}
		archivedIDs = append(archivedIDs, msg.MessageID)
		if j := lastHistoryIndex(history, msg.MessageID); j >= 0 {
			history[j].ArchivedBy = recordID
		}
	}

	if j := lastHistoryIndex(history, transition.Summary.MessageID); j >= 0 {
		history[j].Message = transition.Summary.Clone()
		history[j].IsSummary = true
	} else {
		history = append(history, types.HistoryMessage{
			Message:   transition.Summary.Clone(),
			Sequence:  len(history) + 1,
			IsSummary: true,
		})
	}
	e.state.histories[sessionID] = history

	system, ok := current.SystemMessage()
	if !ok {
		system = types.NewSystemMessage(session.SystemPrompt)
	}
	rebuilt := make([]types.Message, 0, len(transition.Kept)+2)
	rebuilt = append(rebuilt, system, transition.Summary.Clone())
	rebuilt = append(rebuilt, types.CloneMessages(transition.Kept)...)

	current.Messages = rebuilt
	current.Version++
	current.LastCompactionID = recordID
	current.Stats = contextStats(current.Messages)
	current.UpdatedAt = now

	session.CompactionCount++
	session.TotalMessages = len(history)
	session.UpdatedAt = now

	record := types.CompactionRecord{
		RecordID:           recordID,
		SessionID:          sessionID,
		CompactedAt:        now,
		MessageCountBefore: countBefore,
		MessageCountAfter:  len(current.Messages),
		ArchivedMessageIDs: archivedIDs,
		SummaryMessageID:   transition.Summary.MessageID,
		Reason:             transition.Reason,
		TokensBefore:       transition.TokensBefore,
		TokensAfter:        transition.TokensAfter,
	}
	e.state.compactions[sessionID] = append(e.state.compactions[sessionID], record)

	contextSnap := current.Clone()
	sessionSnap := session.Clone()
	historySnap := types.CloneHistory(history)
	recordsSnap := types.CloneCompactions(e.state.compactions[sessionID])
	e.state.mu.Unlock()

	bundle := e.store()
	err := fanOut(
		func() error { return bundle.Contexts.Save(ctx, sessionID, &contextSnap) },
		func() error { return bundle.Sessions.Save(ctx, sessionID, &sessionSnap) },
		func() error { return bundle.Histories.Save(ctx, sessionID, historySnap) },
		func() error { return bundle.Compactions.Save(ctx, sessionID, recordsSnap) },
	)
	if err != nil {
		return nil, NewEngineErrorWithSession(op, sessionID, err)
	}

	out := record.Clone()
	if err := e.hooks.TriggerAfterCompaction(ctx, &out); err != nil {
		return nil, NewEngineErrorWithSession(op, sessionID, err)
	}

	e.log.Info().
		Str("sessionId", sessionID).
		Str("recordId", recordID).
		Int("archived", len(archivedIDs)).
		Str("reason", string(record.Reason)).
		Msg("compaction recorded")

	return &out, nil
}

// contextMessages returns a cloned snapshot of a session's context messages.
func (e *Engine) contextMessages(op, sessionID string) ([]types.Message, error) {
	e.state.mu.RLock()
	defer e.state.mu.RUnlock()

	if _, ok := e.state.sessions[sessionID]; !ok {
		return nil, NewEngineErrorWithSession(op, sessionID, ErrSessionNotFound)
	}
	current, ok := e.state.contexts[sessionID]
	if !ok {
		return nil, NewEngineErrorWithSession(op, sessionID, ErrContextNotFound)
	}
	return types.CloneMessages(current.Messages), nil
}
