package hooks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/youssefsiam38/agentmem/types"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry returned nil")
	}
}

func TestOnSessionCreated(t *testing.T) {
	r := NewRegistry()
	var capturedSessionID string

	r.OnSessionCreated(func(ctx context.Context, sessionID string) error {
		capturedSessionID = sessionID
		return nil
	})

	err := r.TriggerSessionCreated(context.Background(), "session-123")
	if err != nil {
		t.Errorf("TriggerSessionCreated returned error: %v", err)
	}
	if capturedSessionID != "session-123" {
		t.Errorf("expected sessionID 'session-123', got '%s'", capturedSessionID)
	}
}

func TestOnMessageAdded(t *testing.T) {
	r := NewRegistry()
	var capturedID string
	var capturedRole types.Role

	r.OnMessageAdded(func(ctx context.Context, sessionID string, message types.Message) error {
		capturedID = message.MessageID
		capturedRole = message.Role
		return nil
	})

	msg := types.NewUserMessage("hello")
	err := r.TriggerMessageAdded(context.Background(), "s1", msg)
	if err != nil {
		t.Errorf("TriggerMessageAdded returned error: %v", err)
	}
	if capturedID != msg.MessageID {
		t.Errorf("expected messageID '%s', got '%s'", msg.MessageID, capturedID)
	}
	if capturedRole != types.RoleUser {
		t.Errorf("expected role 'user', got '%s'", capturedRole)
	}
}

func TestOnMessageRemoved(t *testing.T) {
	r := NewRegistry()
	var capturedReason string

	r.OnMessageRemoved(func(ctx context.Context, sessionID, messageID, reason string) error {
		capturedReason = reason
		return nil
	})

	err := r.TriggerMessageRemoved(context.Background(), "s1", "m1", "manual")
	if err != nil {
		t.Errorf("TriggerMessageRemoved returned error: %v", err)
	}
	if capturedReason != "manual" {
		t.Errorf("expected reason 'manual', got '%s'", capturedReason)
	}
}

func TestOnAfterCompaction(t *testing.T) {
	r := NewRegistry()
	var capturedRecord *types.CompactionRecord

	r.OnAfterCompaction(func(ctx context.Context, record *types.CompactionRecord) error {
		capturedRecord = record
		return nil
	})

	testRecord := &types.CompactionRecord{
		RecordID:    "cr1",
		SessionID:   "s1",
		CompactedAt: time.Now(),
		Reason:      types.CompactionReasonManual,
	}

	err := r.TriggerAfterCompaction(context.Background(), testRecord)
	if err != nil {
		t.Errorf("TriggerAfterCompaction returned error: %v", err)
	}
	if capturedRecord != testRecord {
		t.Error("record was not passed to hook")
	}
}

func TestOnToolCallRepaired(t *testing.T) {
	r := NewRegistry()
	var capturedCallID string

	r.OnToolCallRepaired(func(ctx context.Context, sessionID, toolCallID string) error {
		capturedCallID = toolCallID
		return nil
	})

	err := r.TriggerToolCallRepaired(context.Background(), "s1", "c1")
	if err != nil {
		t.Errorf("TriggerToolCallRepaired returned error: %v", err)
	}
	if capturedCallID != "c1" {
		t.Errorf("expected toolCallID 'c1', got '%s'", capturedCallID)
	}
}

func TestHookError(t *testing.T) {
	r := NewRegistry()
	expectedErr := errors.New("hook error")

	r.OnSessionCreated(func(ctx context.Context, sessionID string) error {
		return expectedErr
	})

	err := r.TriggerSessionCreated(context.Background(), "s1")
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
}

func TestMultipleHooks(t *testing.T) {
	r := NewRegistry()
	callOrder := []int{}

	r.OnSessionCreated(func(ctx context.Context, sessionID string) error {
		callOrder = append(callOrder, 1)
		return nil
	})

	r.OnSessionCreated(func(ctx context.Context, sessionID string) error {
		callOrder = append(callOrder, 2)
		return nil
	})

	r.OnSessionCreated(func(ctx context.Context, sessionID string) error {
		callOrder = append(callOrder, 3)
		return nil
	})

	err := r.TriggerSessionCreated(context.Background(), "s1")
	if err != nil {
		t.Errorf("TriggerSessionCreated returned error: %v", err)
	}

	if len(callOrder) != 3 {
		t.Errorf("expected 3 hooks to be called, got %d", len(callOrder))
	}

	// Verify hooks are called in order
	for i, v := range callOrder {
		if v != i+1 {
			t.Errorf("expected call order %d at index %d, got %d", i+1, i, v)
		}
	}
}

func TestHookStopsOnError(t *testing.T) {
	r := NewRegistry()
	called := []int{}
	expectedErr := errors.New("stop here")

	r.OnSessionCreated(func(ctx context.Context, sessionID string) error {
		called = append(called, 1)
		return nil
	})

	r.OnSessionCreated(func(ctx context.Context, sessionID string) error {
		called = append(called, 2)
		return expectedErr // This should stop execution
	})

	r.OnSessionCreated(func(ctx context.Context, sessionID string) error {
		called = append(called, 3) // This should NOT be called
		return nil
	})

	err := r.TriggerSessionCreated(context.Background(), "s1")
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}

	if len(called) != 2 {
		t.Errorf("expected 2 hooks to be called before error, got %d", len(called))
	}
}

func TestConcurrentHookRegistration(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	numGoroutines := 100

	// Concurrently register hooks
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			r.OnSessionCreated(func(ctx context.Context, sessionID string) error {
				return nil
			})
		}()
	}
	wg.Wait()

	// Trigger should work without panic
	err := r.TriggerSessionCreated(context.Background(), "s1")
	if err != nil {
		t.Errorf("TriggerSessionCreated returned error: %v", err)
	}
}

func TestConcurrentHookTrigger(t *testing.T) {
	r := NewRegistry()
	var callCount int
	var mu sync.Mutex

	r.OnSessionCreated(func(ctx context.Context, sessionID string) error {
		mu.Lock()
		callCount++
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	numGoroutines := 100

	// Concurrently trigger hooks
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			r.TriggerSessionCreated(context.Background(), "s1")
		}()
	}
	wg.Wait()

	if callCount != numGoroutines {
		t.Errorf("expected %d calls, got %d", numGoroutines, callCount)
	}
}

func TestConcurrentRegistrationAndTrigger(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	// Pre-register some hooks
	for i := 0; i < 10; i++ {
		r.OnSessionCreated(func(ctx context.Context, sessionID string) error {
			return nil
		})
	}

	// Concurrently register and trigger
	wg.Add(200)
	for i := 0; i < 100; i++ {
		go func() {
			defer wg.Done()
			r.OnSessionCreated(func(ctx context.Context, sessionID string) error {
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			r.TriggerSessionCreated(context.Background(), "s1")
		}()
	}
	wg.Wait()

	// No panic means success - the mutex is working
}
