package agentmem

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/youssefsiam38/agentmem/runstate"
	"github.com/youssefsiam38/agentmem/types"
)

// RunFilter narrows a QuerySubTaskRuns read. Zero-value fields are ignored.
type RunFilter struct {
	ParentSessionID string
	ChildSessionID  string
	Status          types.RunStatus
	Mode            types.RunMode

	// ActiveOnly keeps only runs that have not reached a terminal status.
	ActiveOnly bool
}

// SaveSubTaskRun upserts a sub-task run record. The record is normalized
// before persisting: MessageCount is derived from len(Messages) when unset,
// and Messages is always stripped, so persisted run records never embed the
// child conversation. Irregular status transitions are logged, never
// rejected: the record is bookkeeping, not the source of truth for the
// child session. Returns the run id, generated when absent.
func (e *Engine) SaveSubTaskRun(ctx context.Context, run types.SubTaskRunData) (string, error) {
	const op = "SaveSubTaskRun"
	if err := e.ensureInitialized(op); err != nil {
		return "", err
	}

	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.ChildSessionID == "" && run.ParentSessionID != "" {
		run.ChildSessionID = types.ChildSessionID(run.ParentSessionID, run.RunID)
	}
	if run.Status == "" {
		run.Status = types.RunQueued
	}
	if run.MessageCount == nil && len(run.Messages) > 0 {
		count := len(run.Messages)
		run.MessageCount = &count
	}
	run.Messages = nil

	now := time.Now().UTC()

	e.state.mu.Lock()
	if existing, ok := e.state.runs[run.RunID]; ok {
		run.CreatedAt = existing.CreatedAt
		if existing.Status != run.Status && !runstate.CanTransition(existing.Status, run.Status) {
			e.log.Warn().
				Str("runId", run.RunID).
				Str("from", string(existing.Status)).
				Str("to", string(run.Status)).
				Msg("irregular run status transition")
		}
	} else if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	stored := run.Clone()
	e.state.runs[run.RunID] = &stored
	snap := run.Clone()
	e.state.mu.Unlock()

	bundle := e.store()
	if err := bundle.SubTaskRuns.Save(ctx, run.RunID, &snap); err != nil {
		return "", NewEngineErrorWithSession(op, run.ParentSessionID, err)
	}

	e.log.Debug().
		Str("runId", run.RunID).
		Str("parentSessionId", run.ParentSessionID).
		Str("status", string(run.Status)).
		Msg("sub-task run saved")

	return run.RunID, nil
}

// GetSubTaskRun returns a deep clone of a run record.
func (e *Engine) GetSubTaskRun(runID string) (*types.SubTaskRunData, error) {
	const op = "GetSubTaskRun"
	if err := e.ensureInitialized(op); err != nil {
		return nil, err
	}

	e.state.mu.RLock()
	defer e.state.mu.RUnlock()

	run, ok := e.state.runs[runID]
	if !ok {
		return nil, NewEngineError(op, ErrRunNotFound).WithContext("runId", runID)
	}
	clone := run.Clone()
	return &clone, nil
}

// QuerySubTaskRuns returns deep clones of the runs matching the filter,
// oldest first.
func (e *Engine) QuerySubTaskRuns(filter *RunFilter) ([]types.SubTaskRunData, error) {
	const op = "QuerySubTaskRuns"
	if err := e.ensureInitialized(op); err != nil {
		return nil, err
	}

	e.state.mu.RLock()
	out := make([]types.SubTaskRunData, 0, len(e.state.runs))
	for _, run := range e.state.runs {
		if !runMatches(run, filter) {
			continue
		}
		out = append(out, run.Clone())
	}
	e.state.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteSubTaskRun removes a run record. Deleting a missing run is a no-op.
func (e *Engine) DeleteSubTaskRun(ctx context.Context, runID string) error {
	const op = "DeleteSubTaskRun"
	if err := e.ensureInitialized(op); err != nil {
		return err
	}

	e.state.mu.Lock()
	delete(e.state.runs, runID)
	e.state.mu.Unlock()

	bundle := e.store()
	if err := bundle.SubTaskRuns.Delete(ctx, runID); err != nil {
		return NewEngineError(op, err).WithContext("runId", runID)
	}
	return nil
}

func runMatches(run *types.SubTaskRunData, filter *RunFilter) bool {
	if filter == nil {
		return true
	}
	if filter.ParentSessionID != "" && run.ParentSessionID != filter.ParentSessionID {
		return false
	}
	if filter.ChildSessionID != "" && run.ChildSessionID != filter.ChildSessionID {
		return false
	}
	if filter.Status != "" && run.Status != filter.Status {
		return false
	}
	if filter.Mode != "" && run.Mode != filter.Mode {
		return false
	}
	if filter.ActiveOnly && runstate.IsTerminal(run.Status) {
		return false
	}
	return true
}
