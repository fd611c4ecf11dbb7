package agentmem

import (
	"sync"

	"github.com/youssefsiam38/agentmem/compaction"
	"github.com/youssefsiam38/agentmem/types"
)

// engineState is the in-memory mirror of every loaded aggregate. The cache
// is the operational state; the store is the durability layer. All reads
// serve from here, all writes mutate here first and then fan out to the
// store. Mutations happen only inside the engine's services.
type engineState struct {
	mu sync.RWMutex

	sessions    map[string]*types.SessionData
	contexts    map[string]*types.CurrentContext
	histories   map[string][]types.HistoryMessage
	compactions map[string][]types.CompactionRecord
	tasks       map[string]*types.TaskData
	runs        map[string]*types.SubTaskRunData
}

func newEngineState() *engineState {
	s := &engineState{}
	s.initMaps()
	return s
}

func (s *engineState) initMaps() {
	s.sessions = make(map[string]*types.SessionData)
	s.contexts = make(map[string]*types.CurrentContext)
	s.histories = make(map[string][]types.HistoryMessage)
	s.compactions = make(map[string][]types.CompactionRecord)
	s.tasks = make(map[string]*types.TaskData)
	s.runs = make(map[string]*types.SubTaskRunData)
}

// reset drops all cached aggregates. Called on Close so a later Initialize
// reloads from the store.
func (s *engineState) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initMaps()
}

// contextStats recomputes the derived numbers stored on every context save.
func contextStats(messages []types.Message) types.ContextStats {
	return types.ContextStats{
		MessageCount:    len(messages),
		EstimatedTokens: compaction.CountTokens(messages).Estimated,
	}
}
