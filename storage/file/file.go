// Package file implements the storage ports on top of per-aggregate
// directories of JSON files. Filenames are the URL-encoded aggregate key, so
// arbitrary session and run identifiers can never escape the directory.
// Writes are atomic with backup rotation and corrupt-file quarantine.
package file

import (
	"context"
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/youssefsiam38/agentmem/internal/atomicfile"
	"github.com/youssefsiam38/agentmem/storage"
	"github.com/youssefsiam38/agentmem/types"
)

// Directory names, one per aggregate. The layout is part of the wire
// contract and must not change.
const (
	sessionsDir    = "sessions"
	contextsDir    = "contexts"
	historiesDir   = "histories"
	compactionsDir = "compactions"
	tasksDir       = "tasks"
	subTaskRunsDir = "subtask-runs"

	taskListPrefix   = "task-list-"
	subTaskRunPrefix = "subtask-run-"
)

// NewBundle creates a file-backed store bundle rooted at basePath. Nothing
// is created on disk until Prepare runs.
func NewBundle(basePath string, log zerolog.Logger) *storage.Bundle {
	dir := func(name string) *atomicfile.Dir {
		return atomicfile.NewDir(filepath.Join(basePath, name), log)
	}

	return &storage.Bundle{
		Sessions:    &sessionStore{store: newJSONStore[*types.SessionData](dir(sessionsDir), log)},
		Contexts:    &contextStore{store: newJSONStore[*types.CurrentContext](dir(contextsDir), log)},
		Histories:   &historyStore{store: newJSONStore[[]types.HistoryMessage](dir(historiesDir), log)},
		Compactions: &compactionStore{store: newJSONStore[[]types.CompactionRecord](dir(compactionsDir), log)},
		Tasks:       &taskStore{dir: dir(tasksDir), log: log},
		SubTaskRuns: &subTaskRunStore{dir: dir(subTaskRunsDir), log: log},
	}
}

// encodeKey turns an aggregate key into a safe filename stem.
func encodeKey(key string) string {
	return url.QueryEscape(key)
}

// decodeKey reverses encodeKey for a filename stem.
func decodeKey(stem string) (string, error) {
	return url.QueryUnescape(stem)
}

// jsonStore is the shared one-file-per-record implementation behind the
// session, context, history, and compaction stores.
type jsonStore[T any] struct {
	dir *atomicfile.Dir
	log zerolog.Logger
}

func newJSONStore[T any](dir *atomicfile.Dir, log zerolog.Logger) *jsonStore[T] {
	return &jsonStore[T]{dir: dir, log: log}
}

func (s *jsonStore[T]) prepare(context.Context) error {
	return s.dir.Ensure()
}

// loadAll reads every record in the directory. Malformed filenames and
// unreadable files are logged and skipped so one bad entry cannot abort the
// load.
func (s *jsonStore[T]) loadAll(context.Context) (map[string]T, error) {
	names, err := s.dir.List()
	if err != nil {
		return nil, err
	}

	out := make(map[string]T, len(names))
	for _, name := range names {
		key, err := decodeKey(strings.TrimSuffix(name, ".json"))
		if err != nil {
			s.log.Warn().Str("file", name).Err(err).Msg("skipping file with malformed name")
			continue
		}

		var value T
		found, err := s.dir.ReadJSON(name, &value)
		if err != nil {
			s.log.Warn().Str("file", name).Err(err).Msg("skipping unreadable file")
			continue
		}
		if !found {
			continue
		}
		out[key] = value
	}
	return out, nil
}

func (s *jsonStore[T]) save(_ context.Context, key string, value T) error {
	return s.dir.WriteJSON(encodeKey(key)+".json", value)
}

type sessionStore struct {
	store *jsonStore[*types.SessionData]
}

func (s *sessionStore) Prepare(ctx context.Context) error {
	return s.store.prepare(ctx)
}

func (s *sessionStore) LoadAll(ctx context.Context) (map[string]*types.SessionData, error) {
	return s.store.loadAll(ctx)
}

func (s *sessionStore) Save(ctx context.Context, sessionID string, session *types.SessionData) error {
	return s.store.save(ctx, sessionID, session)
}

type contextStore struct {
	store *jsonStore[*types.CurrentContext]
}

func (s *contextStore) Prepare(ctx context.Context) error {
	return s.store.prepare(ctx)
}

func (s *contextStore) LoadAll(ctx context.Context) (map[string]*types.CurrentContext, error) {
	return s.store.loadAll(ctx)
}

func (s *contextStore) Save(ctx context.Context, sessionID string, current *types.CurrentContext) error {
	return s.store.save(ctx, sessionID, current)
}

type historyStore struct {
	store *jsonStore[[]types.HistoryMessage]
}

func (s *historyStore) Prepare(ctx context.Context) error {
	return s.store.prepare(ctx)
}

func (s *historyStore) LoadAll(ctx context.Context) (map[string][]types.HistoryMessage, error) {
	return s.store.loadAll(ctx)
}

func (s *historyStore) Save(ctx context.Context, sessionID string, history []types.HistoryMessage) error {
	return s.store.save(ctx, sessionID, history)
}

type compactionStore struct {
	store *jsonStore[[]types.CompactionRecord]
}

func (s *compactionStore) Prepare(ctx context.Context) error {
	return s.store.prepare(ctx)
}

func (s *compactionStore) LoadAll(ctx context.Context) (map[string][]types.CompactionRecord, error) {
	return s.store.loadAll(ctx)
}

func (s *compactionStore) Save(ctx context.Context, sessionID string, records []types.CompactionRecord) error {
	return s.store.save(ctx, sessionID, records)
}

// taskStore keeps one task-list-<sessionId>.json file per session holding
// that session's tasks sorted by creation time.
type taskStore struct {
	dir *atomicfile.Dir
	log zerolog.Logger
}

func (s *taskStore) Prepare(context.Context) error {
	return s.dir.Ensure()
}

func (s *taskStore) LoadAll(context.Context) (map[string]*types.TaskData, error) {
	names, err := s.dir.List()
	if err != nil {
		return nil, err
	}

	out := make(map[string]*types.TaskData)
	for _, name := range names {
		stem := strings.TrimSuffix(name, ".json")
		if !strings.HasPrefix(stem, taskListPrefix) {
			// Legacy sub-task-run files occasionally ended up in tasks/.
			// They are ignored here, never migrated.
			s.log.Warn().Str("file", name).Msg("skipping non-task file in tasks directory")
			continue
		}
		if _, err := decodeKey(strings.TrimPrefix(stem, taskListPrefix)); err != nil {
			s.log.Warn().Str("file", name).Err(err).Msg("skipping task list with malformed name")
			continue
		}

		var tasks []types.TaskData
		found, err := s.dir.ReadJSON(name, &tasks)
		if err != nil {
			s.log.Warn().Str("file", name).Err(err).Msg("skipping unreadable task list")
			continue
		}
		if !found {
			continue
		}
		for i := range tasks {
			task := tasks[i]
			out[task.TaskID] = &task
		}
	}
	return out, nil
}

func (s *taskStore) SaveBySession(_ context.Context, sessionID string, tasks []types.TaskData) error {
	name := taskListPrefix + encodeKey(sessionID) + ".json"
	if len(tasks) == 0 {
		return s.dir.Delete(name)
	}

	sorted := make([]types.TaskData, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	return s.dir.WriteJSON(name, sorted)
}

// subTaskRunStore keeps one subtask-run-<runId>.json file per run.
type subTaskRunStore struct {
	dir *atomicfile.Dir
	log zerolog.Logger
}

func (s *subTaskRunStore) Prepare(context.Context) error {
	return s.dir.Ensure()
}

func (s *subTaskRunStore) LoadAll(context.Context) (map[string]*types.SubTaskRunData, error) {
	names, err := s.dir.List()
	if err != nil {
		return nil, err
	}

	out := make(map[string]*types.SubTaskRunData)
	for _, name := range names {
		stem := strings.TrimSuffix(name, ".json")
		if !strings.HasPrefix(stem, subTaskRunPrefix) {
			s.log.Warn().Str("file", name).Msg("skipping unexpected file in subtask-runs directory")
			continue
		}
		runID, err := decodeKey(strings.TrimPrefix(stem, subTaskRunPrefix))
		if err != nil {
			s.log.Warn().Str("file", name).Err(err).Msg("skipping run with malformed name")
			continue
		}

		var run *types.SubTaskRunData
		found, err := s.dir.ReadJSON(name, &run)
		if err != nil {
			s.log.Warn().Str("file", name).Err(err).Msg("skipping unreadable run")
			continue
		}
		if !found {
			continue
		}
		out[runID] = run
	}
	return out, nil
}

func (s *subTaskRunStore) Save(_ context.Context, runID string, run *types.SubTaskRunData) error {
	return s.dir.WriteJSON(subTaskRunPrefix+encodeKey(runID)+".json", run)
}

func (s *subTaskRunStore) Delete(_ context.Context, runID string) error {
	return s.dir.Delete(subTaskRunPrefix + encodeKey(runID) + ".json")
}
