package agentmem

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/youssefsiam38/agentmem/types"
)

// TaskFilter narrows a QueryTasks read. Zero-value fields are ignored.
type TaskFilter struct {
	SessionID string
	TaskID    string

	// ParentTaskID keeps only children of the given task.
	ParentTaskID string

	// NoParent keeps only root tasks. Takes precedence over ParentTaskID.
	NoParent bool

	Status types.TaskStatus
}

// SaveTask upserts a task record and rewrites its session's persisted task
// list. A task id binds to one session forever: saving an existing id under
// a different session fails with ErrTaskIDCollision. CreatedAt is preserved
// on upsert. Returns the task id, generated when absent.
func (e *Engine) SaveTask(ctx context.Context, task types.TaskData) (string, error) {
	const op = "SaveTask"
	if err := e.ensureInitialized(op); err != nil {
		return "", err
	}

	if task.TaskID == "" {
		task.TaskID = uuid.New().String()
	}
	now := time.Now().UTC()

	e.state.mu.Lock()
	if existing, ok := e.state.tasks[task.TaskID]; ok {
		if existing.SessionID != task.SessionID {
			e.state.mu.Unlock()
			return "", NewEngineErrorWithSession(op, task.SessionID, ErrTaskIDCollision).
				WithContext("taskId", task.TaskID).
				WithContext("ownerSessionId", existing.SessionID)
		}
		task.CreatedAt = existing.CreatedAt
	} else if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	stored := task.Clone()
	e.state.tasks[task.TaskID] = &stored
	listSnap := e.sessionTasksLocked(task.SessionID)
	e.state.mu.Unlock()

	bundle := e.store()
	if err := bundle.Tasks.SaveBySession(ctx, task.SessionID, listSnap); err != nil {
		return "", NewEngineErrorWithSession(op, task.SessionID, err)
	}

	e.log.Debug().
		Str("sessionId", task.SessionID).
		Str("taskId", task.TaskID).
		Str("status", string(task.Status)).
		Msg("task saved")

	return task.TaskID, nil
}

// GetTask returns a deep clone of a task record.
func (e *Engine) GetTask(taskID string) (*types.TaskData, error) {
	const op = "GetTask"
	if err := e.ensureInitialized(op); err != nil {
		return nil, err
	}

	e.state.mu.RLock()
	defer e.state.mu.RUnlock()

	task, ok := e.state.tasks[taskID]
	if !ok {
		return nil, NewEngineError(op, ErrTaskNotFound).WithContext("taskId", taskID)
	}
	clone := task.Clone()
	return &clone, nil
}

// QueryTasks returns deep clones of the tasks matching the filter, oldest
// first.
func (e *Engine) QueryTasks(filter *TaskFilter) ([]types.TaskData, error) {
	const op = "QueryTasks"
	if err := e.ensureInitialized(op); err != nil {
		return nil, err
	}

	e.state.mu.RLock()
	out := make([]types.TaskData, 0, len(e.state.tasks))
	for _, task := range e.state.tasks {
		if !taskMatches(task, filter) {
			continue
		}
		out = append(out, task.Clone())
	}
	e.state.mu.RUnlock()

	sortTasks(out)
	return out, nil
}

// DeleteTask removes a task record and rewrites (or deletes) its session's
// persisted task list.
func (e *Engine) DeleteTask(ctx context.Context, taskID string) error {
	const op = "DeleteTask"
	if err := e.ensureInitialized(op); err != nil {
		return err
	}

	e.state.mu.Lock()
	task, ok := e.state.tasks[taskID]
	if !ok {
		e.state.mu.Unlock()
		return NewEngineError(op, ErrTaskNotFound).WithContext("taskId", taskID)
	}
	sessionID := task.SessionID
	delete(e.state.tasks, taskID)
	listSnap := e.sessionTasksLocked(sessionID)
	e.state.mu.Unlock()

	bundle := e.store()
	if err := bundle.Tasks.SaveBySession(ctx, sessionID, listSnap); err != nil {
		return NewEngineErrorWithSession(op, sessionID, err)
	}

	e.log.Debug().
		Str("sessionId", sessionID).
		Str("taskId", taskID).
		Msg("task deleted")

	return nil
}

// sessionTasksLocked snapshots a session's task list for persistence.
// Requires e.state.mu to be held.
func (e *Engine) sessionTasksLocked(sessionID string) []types.TaskData {
	var out []types.TaskData
	for _, task := range e.state.tasks {
		if task.SessionID == sessionID {
			out = append(out, task.Clone())
		}
	}
	sortTasks(out)
	return out
}

func sortTasks(tasks []types.TaskData) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].TaskID < tasks[j].TaskID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}

func taskMatches(task *types.TaskData, filter *TaskFilter) bool {
	if filter == nil {
		return true
	}
	if filter.SessionID != "" && task.SessionID != filter.SessionID {
		return false
	}
	if filter.TaskID != "" && task.TaskID != filter.TaskID {
		return false
	}
	if filter.NoParent {
		if task.ParentTaskID != nil {
			return false
		}
	} else if filter.ParentTaskID != "" {
		if task.ParentTaskID == nil || *task.ParentTaskID != filter.ParentTaskID {
			return false
		}
	}
	if filter.Status != "" && task.Status != filter.Status {
		return false
	}
	return true
}
