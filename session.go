package agentmem

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/youssefsiam38/agentmem/compaction"
	"github.com/youssefsiam38/agentmem/repair"
	"github.com/youssefsiam38/agentmem/types"
)

// Session is an in-memory working view over one conversation. The agent
// loop reads and mutates the local message array synchronously while a
// tail-chained persist queue serializes the writes against the engine, so
// two rapid updates to the same message id can never interleave into
// duplicate history entries.
//
// A facade is constructed with a system prompt and either creates the
// session on first Initialize or, when the session already exists, resumes
// it by loading its persisted context. Persist-queue errors are logged and
// swallowed; Sync reports the authoritative write's outcome.
type Session struct {
	engine *Engine
	log    zerolog.Logger

	sessionID    string
	systemPrompt string

	mu          sync.Mutex
	initialized bool
	initWait    chan struct{}
	initErr     error

	msgMu    sync.RWMutex
	messages []types.Message

	queueMu   sync.Mutex
	queueTail chan struct{}
}

// NewSession creates a facade over one session. An empty sessionID creates
// a fresh session with a generated id on Initialize; a non-empty one
// resumes the existing session, or creates it when absent.
func NewSession(engine *Engine, sessionID, systemPrompt string) *Session {
	return &Session{
		engine:       engine,
		log:          engine.log.With().Str("component", "session").Logger(),
		sessionID:    sessionID,
		systemPrompt: systemPrompt,
	}
}

// ID returns the session id. Empty until Initialize resolves a generated id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Engine returns the engine this facade writes through.
func (s *Session) Engine() *Engine {
	return s.engine
}

// Initialize creates or resumes the session. Safe to call concurrently:
// the bootstrap runs once, everyone else awaits it. After a successful
// return the local message array mirrors the persisted context, with
// protocol normalization applied and persisted.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	if wait := s.initWait; wait != nil {
		s.mu.Unlock()
		return s.awaitInitialization(ctx, wait)
	}

	wait := make(chan struct{})
	s.initWait = wait
	s.mu.Unlock()

	err := s.bootstrap(ctx)

	s.mu.Lock()
	s.initialized = err == nil
	s.initErr = err
	s.initWait = nil
	s.mu.Unlock()
	close(wait)

	return err
}

// awaitInitialization blocks until an in-flight bootstrap settles and
// returns its outcome.
func (s *Session) awaitInitialization(ctx context.Context, wait chan struct{}) error {
	select {
	case <-wait:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	return s.initErr
}

// WaitForInitialization returns once the facade is initialized, starting
// initialization itself when nobody else has.
func (s *Session) WaitForInitialization(ctx context.Context) error {
	return s.Initialize(ctx)
}

// bootstrap creates or resumes the session and normalizes the loaded
// context.
func (s *Session) bootstrap(ctx context.Context) error {
	if err := s.engine.WaitForInitialization(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()

	resumed := false
	if sessionID != "" {
		if _, err := s.engine.GetSession(sessionID); err == nil {
			resumed = true
		}
	}

	if !resumed {
		created, err := s.engine.CreateSession(ctx, sessionID, s.systemPrompt)
		if err != nil {
			return err
		}
		sessionID = created
		s.mu.Lock()
		s.sessionID = sessionID
		s.mu.Unlock()
	}

	current, err := s.engine.GetCurrentContext(sessionID)
	if err != nil {
		return err
	}

	s.msgMu.Lock()
	s.messages = current.Messages
	s.msgMu.Unlock()

	if err := s.normalizeAndPersist(ctx); err != nil {
		return err
	}

	s.log.Debug().
		Str("sessionId", sessionID).
		Bool("resumed", resumed).
		Int("messages", len(current.Messages)).
		Msg("session initialized")

	return nil
}

// Messages returns a deep clone of the local message array.
func (s *Session) Messages() []types.Message {
	s.msgMu.RLock()
	defer s.msgMu.RUnlock()
	return types.CloneMessages(s.messages)
}

// MessageCount returns the local message count, system message included.
func (s *Session) MessageCount() int {
	s.msgMu.RLock()
	defer s.msgMu.RUnlock()
	return len(s.messages)
}

// AddMessage upserts a message into the local array and queues the engine
// write. When the id matches the last local message the entry is replaced
// in place, so streaming token updates collapse into one message. The
// persist happens asynchronously in submission order; failures are logged
// and swallowed to keep the chain alive. Call Sync to settle the queue.
func (s *Session) AddMessage(message types.Message) {
	queued := message.Clone()

	s.msgMu.Lock()
	if n := len(s.messages); n > 0 && s.messages[n-1].MessageID == queued.MessageID {
		s.messages[n-1] = queued.Clone()
	} else {
		s.messages = append(s.messages, queued.Clone())
	}
	s.msgMu.Unlock()

	sessionID := s.ID()
	s.enqueue(func(ctx context.Context) {
		if err := s.engine.AddMessageToContext(ctx, sessionID, queued, nil); err != nil {
			s.log.Warn().
				Err(err).
				Str("sessionId", sessionID).
				Str("messageId", queued.MessageID).
				Msg("queued message persist failed")
		}
	})
}

// RepairInterruptedToolCalls synthesizes interrupted tool results for every
// dangling tool call in the local array. Synthesized stubs are queued into
// the context only; the history log never records them. Returns the number
// of stubs synthesized.
func (s *Session) RepairInterruptedToolCalls() int {
	sessionID := s.ID()

	s.msgMu.Lock()
	repaired, count := repair.RepairStreamedToolCalls(s.messages, func(stub types.Message) {
		s.enqueue(func(ctx context.Context) {
			err := s.engine.AddMessageToContext(ctx, sessionID, stub, &AddMessageOptions{SkipHistory: true})
			if err != nil {
				s.log.Warn().
					Err(err).
					Str("sessionId", sessionID).
					Str("toolCallId", stub.ToolCallID).
					Msg("queued interrupted-result persist failed")
				return
			}
			if err := s.engine.Hooks().TriggerToolCallRepaired(ctx, sessionID, stub.ToolCallID); err != nil {
				s.log.Warn().Err(err).Str("sessionId", sessionID).Msg("tool call repaired hook failed")
			}
		})
	})
	s.messages = repaired
	s.msgMu.Unlock()

	return count
}

// Sync awaits the persist queue, then overwrites the engine's context
// snapshot with the local message array.
func (s *Session) Sync(ctx context.Context) error {
	if err := s.drain(ctx); err != nil {
		return err
	}
	return s.engine.SaveCurrentContext(ctx, s.ID(), s.Messages())
}

// CompactBeforeLLMCall settles the persist queue, re-normalizes the
// context, and compacts it when the token trigger fires. Returns nil when
// no summarizer is configured or the context is under the threshold. After
// a compaction the local array is refreshed from the rebuilt context.
func (s *Session) CompactBeforeLLMCall(ctx context.Context) (*compaction.Result, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	if err := s.drain(ctx); err != nil {
		return nil, err
	}
	if err := s.normalizeAndPersist(ctx); err != nil {
		return nil, err
	}

	if s.engine.compactor == nil || !s.engine.config.autoCompaction {
		return nil, nil
	}

	sessionID := s.ID()
	result, err := s.engine.CompactContextIfNeeded(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	current, err := s.engine.GetCurrentContext(sessionID)
	if err != nil {
		return nil, err
	}
	s.msgMu.Lock()
	s.messages = current.Messages
	s.msgMu.Unlock()

	return result, nil
}

// normalizeAndPersist runs context-level protocol normalization over the
// local array and persists the outcome: dropped messages are excluded from
// history with reason "invalid_response", updated messages propagate to
// history, synthesized stubs enter the context only, and the normalized
// ordering overwrites the context record. Per-message persistence errors
// are logged and skipped; the final context overwrite propagates.
func (s *Session) normalizeAndPersist(ctx context.Context) error {
	s.msgMu.Lock()
	result := repair.NormalizeContext(s.messages)
	if result.Changed {
		s.messages = result.Messages
	}
	s.msgMu.Unlock()

	if !result.Changed {
		return nil
	}

	sessionID := s.ID()
	for i := range result.Dropped {
		_, err := s.engine.RemoveMessageFromContext(ctx, sessionID, result.Dropped[i].MessageID, repair.InvalidResponseReason)
		if err != nil {
			s.log.Warn().
				Err(err).
				Str("sessionId", sessionID).
				Str("messageId", result.Dropped[i].MessageID).
				Msg("normalization removal failed")
		}
	}
	for i := range result.Updated {
		err := s.engine.UpdateMessageInContext(ctx, sessionID, result.Updated[i].MessageID, result.Updated[i])
		if err != nil {
			s.log.Warn().
				Err(err).
				Str("sessionId", sessionID).
				Str("messageId", result.Updated[i].MessageID).
				Msg("normalization update failed")
		}
	}
	for i := range result.Synthesized {
		stub := result.Synthesized[i]
		err := s.engine.AddMessageToContext(ctx, sessionID, stub, &AddMessageOptions{SkipHistory: true})
		if err != nil {
			s.log.Warn().
				Err(err).
				Str("sessionId", sessionID).
				Str("toolCallId", stub.ToolCallID).
				Msg("normalization stub persist failed")
			continue
		}
		if err := s.engine.Hooks().TriggerToolCallRepaired(ctx, sessionID, stub.ToolCallID); err != nil {
			s.log.Warn().Err(err).Str("sessionId", sessionID).Msg("tool call repaired hook failed")
		}
	}

	s.log.Info().
		Str("sessionId", sessionID).
		Int("dropped", len(result.Dropped)).
		Int("updated", len(result.Updated)).
		Int("synthesized", len(result.Synthesized)).
		Msg("context normalized")

	return s.engine.SaveCurrentContext(ctx, sessionID, result.Messages)
}

// enqueue appends a write to the tail-chained persist queue. Each write
// runs after the previous one finishes, on a background context so that an
// aborted agent loop never cancels an in-flight persist.
func (s *Session) enqueue(op func(ctx context.Context)) {
	s.queueMu.Lock()
	prev := s.queueTail
	done := make(chan struct{})
	s.queueTail = done
	s.queueMu.Unlock()

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		op(context.Background())
	}()
}

// drain waits for every queued write submitted so far to finish.
func (s *Session) drain(ctx context.Context) error {
	s.queueMu.Lock()
	tail := s.queueTail
	s.queueMu.Unlock()

	if tail == nil {
		return nil
	}
	select {
	case <-tail:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
