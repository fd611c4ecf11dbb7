package hooks

import (
	"context"
	"sync"

	"github.com/youssefsiam38/agentmem/types"
)

// SessionCreatedHook is called after a session is created
type SessionCreatedHook func(ctx context.Context, sessionID string) error

// MessageAddedHook is called after a message is added to a session's context
type MessageAddedHook func(ctx context.Context, sessionID string, message types.Message) error

// MessageRemovedHook is called after a message is removed from a context
// Parameters: ctx, sessionID, messageID, reason
type MessageRemovedHook func(ctx context.Context, sessionID string, messageID string, reason string) error

// BeforeCompactionHook is called before context compaction
type BeforeCompactionHook func(ctx context.Context, sessionID string) error

// AfterCompactionHook is called after context compaction
type AfterCompactionHook func(ctx context.Context, record *types.CompactionRecord) error

// ToolCallRepairedHook is called when a dangling tool call receives a
// synthesized result
type ToolCallRepairedHook func(ctx context.Context, sessionID string, toolCallID string) error

// Registry holds all registered hooks
type Registry struct {
	mu               sync.RWMutex
	sessionCreated   []SessionCreatedHook
	messageAdded     []MessageAddedHook
	messageRemoved   []MessageRemovedHook
	beforeCompaction []BeforeCompactionHook
	afterCompaction  []AfterCompactionHook
	toolCallRepaired []ToolCallRepairedHook
}

// NewRegistry creates a new hook registry
func NewRegistry() *Registry {
	return &Registry{
		sessionCreated:   []SessionCreatedHook{},
		messageAdded:     []MessageAddedHook{},
		messageRemoved:   []MessageRemovedHook{},
		beforeCompaction: []BeforeCompactionHook{},
		afterCompaction:  []AfterCompactionHook{},
		toolCallRepaired: []ToolCallRepairedHook{},
	}
}

// OnSessionCreated registers a hook to be called after session creation
func (r *Registry) OnSessionCreated(hook SessionCreatedHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionCreated = append(r.sessionCreated, hook)
}

// OnMessageAdded registers a hook to be called after a message is added
func (r *Registry) OnMessageAdded(hook MessageAddedHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messageAdded = append(r.messageAdded, hook)
}

// OnMessageRemoved registers a hook to be called after a message is removed
func (r *Registry) OnMessageRemoved(hook MessageRemovedHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messageRemoved = append(r.messageRemoved, hook)
}

// OnBeforeCompaction registers a hook to be called before compaction
func (r *Registry) OnBeforeCompaction(hook BeforeCompactionHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeCompaction = append(r.beforeCompaction, hook)
}

// OnAfterCompaction registers a hook to be called after compaction
func (r *Registry) OnAfterCompaction(hook AfterCompactionHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterCompaction = append(r.afterCompaction, hook)
}

// OnToolCallRepaired registers a hook to be called when a tool call is repaired
func (r *Registry) OnToolCallRepaired(hook ToolCallRepairedHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolCallRepaired = append(r.toolCallRepaired, hook)
}

// TriggerSessionCreated calls all registered session-created hooks
func (r *Registry) TriggerSessionCreated(ctx context.Context, sessionID string) error {
	r.mu.RLock()
	hooks := make([]SessionCreatedHook, len(r.sessionCreated))
	copy(hooks, r.sessionCreated)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID); err != nil {
			return err
		}
	}
	return nil
}

// TriggerMessageAdded calls all registered message-added hooks
func (r *Registry) TriggerMessageAdded(ctx context.Context, sessionID string, message types.Message) error {
	r.mu.RLock()
	hooks := make([]MessageAddedHook, len(r.messageAdded))
	copy(hooks, r.messageAdded)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID, message); err != nil {
			return err
		}
	}
	return nil
}

// TriggerMessageRemoved calls all registered message-removed hooks
func (r *Registry) TriggerMessageRemoved(ctx context.Context, sessionID string, messageID string, reason string) error {
	r.mu.RLock()
	hooks := make([]MessageRemovedHook, len(r.messageRemoved))
	copy(hooks, r.messageRemoved)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID, messageID, reason); err != nil {
			return err
		}
	}
	return nil
}

// TriggerBeforeCompaction calls all registered before-compaction hooks
func (r *Registry) TriggerBeforeCompaction(ctx context.Context, sessionID string) error {
	r.mu.RLock()
	hooks := make([]BeforeCompactionHook, len(r.beforeCompaction))
	copy(hooks, r.beforeCompaction)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAfterCompaction calls all registered after-compaction hooks
func (r *Registry) TriggerAfterCompaction(ctx context.Context, record *types.CompactionRecord) error {
	r.mu.RLock()
	hooks := make([]AfterCompactionHook, len(r.afterCompaction))
	copy(hooks, r.afterCompaction)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// TriggerToolCallRepaired calls all registered tool-call-repaired hooks
func (r *Registry) TriggerToolCallRepaired(ctx context.Context, sessionID string, toolCallID string) error {
	r.mu.RLock()
	hooks := make([]ToolCallRepairedHook, len(r.toolCallRepaired))
	copy(hooks, r.toolCallRepaired)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID, toolCallID); err != nil {
			return err
		}
	}
	return nil
}
