package agentmem

import (
	"errors"
	"fmt"

	"github.com/youssefsiam38/agentmem/storage"
)

// Common errors
var (
	// ErrInvalidConfig is returned when the engine configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotInitialized is returned when calling methods before Initialize()
	ErrNotInitialized = errors.New("engine not initialized")

	// ErrSessionNotFound is returned when a session does not exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when creating a session whose ID is taken
	ErrSessionExists = errors.New("session already exists")

	// ErrContextNotFound is returned when a session has no current context
	ErrContextNotFound = errors.New("context not found")

	// ErrMessageNotFound is returned when a message is not in the current context
	ErrMessageNotFound = errors.New("message not found in context")

	// ErrCompactionFailed is returned when context compaction fails
	ErrCompactionFailed = errors.New("context compaction failed")

	// =========================================================================
	// Storage errors
	// =========================================================================

	// ErrBackendUnsupported is returned when a storage backend type has no adapter
	ErrBackendUnsupported = storage.ErrBackendUnsupported

	// ErrBackendUnavailable is returned when a storage driver is not linked in
	ErrBackendUnavailable = storage.ErrBackendUnavailable

	// =========================================================================
	// Task errors
	// =========================================================================

	// ErrTaskIDCollision is returned when saving a task whose ID is already
	// owned by another session. The message text is part of the API contract.
	ErrTaskIDCollision = errors.New("Task ID collision detected")

	// ErrTaskNotFound is returned when a task does not exist
	ErrTaskNotFound = errors.New("task not found")

	// =========================================================================
	// Sub-task run errors
	// =========================================================================

	// ErrRunNotFound is returned when a sub-task run does not exist
	ErrRunNotFound = errors.New("sub-task run not found")

	// ErrInvalidStateTransition is returned when a run state transition is invalid
	ErrInvalidStateTransition = errors.New("invalid state transition")
)

// EngineError represents an error with additional context
type EngineError struct {
	Op        string         // Operation that failed
	Err       error          // Underlying error
	SessionID string         // Session ID if applicable
	Context   map[string]any // Additional context
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s (session=%s): %v", e.Op, e.SessionID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.Err
}

// WithContext adds additional context to the error
func (e *EngineError) WithContext(key string, value any) *EngineError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewEngineError creates a new EngineError
func NewEngineError(op string, err error) *EngineError {
	return &EngineError{
		Op:  op,
		Err: err,
	}
}

// NewEngineErrorWithSession creates a new EngineError with session ID
func NewEngineErrorWithSession(op string, sessionID string, err error) *EngineError {
	return &EngineError{
		Op:        op,
		Err:       err,
		SessionID: sessionID,
	}
}
