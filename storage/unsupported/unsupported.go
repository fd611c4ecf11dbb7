// Package unsupported provides a store bundle whose every operation fails
// with storage.ErrBackendUnsupported. It stands in for backend types that
// are recognized by configuration but have no adapter yet, so the failure
// surfaces at first use with a clear message instead of a nil dereference.
package unsupported

import (
	"context"
	"fmt"

	"github.com/youssefsiam38/agentmem/storage"
	"github.com/youssefsiam38/agentmem/types"
)

// NewBundle returns a bundle that rejects every operation, naming
// backendType in each error.
func NewBundle(backendType string) *storage.Bundle {
	fail := failer{backendType: backendType}
	return &storage.Bundle{
		Sessions:    sessionStore{fail},
		Contexts:    contextStore{fail},
		Histories:   historyStore{fail},
		Compactions: compactionStore{fail},
		Tasks:       taskStore{fail},
		SubTaskRuns: runStore{fail},
		CloseFunc:   func(context.Context) error { return nil },
	}
}

type failer struct {
	backendType string
}

func (f failer) err() error {
	return fmt.Errorf("%w: storage type %q", storage.ErrBackendUnsupported, f.backendType)
}

type sessionStore struct{ failer }

func (s sessionStore) Prepare(context.Context) error { return s.err() }
func (s sessionStore) LoadAll(context.Context) (map[string]*types.SessionData, error) {
	return nil, s.err()
}
func (s sessionStore) Save(context.Context, string, *types.SessionData) error { return s.err() }

type contextStore struct{ failer }

func (s contextStore) Prepare(context.Context) error { return s.err() }
func (s contextStore) LoadAll(context.Context) (map[string]*types.CurrentContext, error) {
	return nil, s.err()
}
func (s contextStore) Save(context.Context, string, *types.CurrentContext) error { return s.err() }

type historyStore struct{ failer }

func (s historyStore) Prepare(context.Context) error { return s.err() }
func (s historyStore) LoadAll(context.Context) (map[string][]types.HistoryMessage, error) {
	return nil, s.err()
}
func (s historyStore) Save(context.Context, string, []types.HistoryMessage) error { return s.err() }

type compactionStore struct{ failer }

func (s compactionStore) Prepare(context.Context) error { return s.err() }
func (s compactionStore) LoadAll(context.Context) (map[string][]types.CompactionRecord, error) {
	return nil, s.err()
}
func (s compactionStore) Save(context.Context, string, []types.CompactionRecord) error {
	return s.err()
}

type taskStore struct{ failer }

func (s taskStore) Prepare(context.Context) error { return s.err() }
func (s taskStore) LoadAll(context.Context) (map[string]*types.TaskData, error) {
	return nil, s.err()
}
func (s taskStore) SaveBySession(context.Context, string, []types.TaskData) error { return s.err() }

type runStore struct{ failer }

func (s runStore) Prepare(context.Context) error { return s.err() }
func (s runStore) LoadAll(context.Context) (map[string]*types.SubTaskRunData, error) {
	return nil, s.err()
}
func (s runStore) Save(context.Context, string, *types.SubTaskRunData) error { return s.err() }
func (s runStore) Delete(context.Context, string) error                      { return s.err() }

var (
	_ storage.SessionStore    = sessionStore{}
	_ storage.ContextStore    = contextStore{}
	_ storage.HistoryStore    = historyStore{}
	_ storage.CompactionStore = compactionStore{}
	_ storage.TaskStore       = taskStore{}
	_ storage.SubTaskRunStore = runStore{}
)
