// Package document implements the storage ports on a document-style SQL
// layout: one table per aggregate holding (id, payload) rows, upserted
// whole. Any database/sql driver can back it; drivers are resolved lazily
// by name through the opener registry, so importing this package pulls in no
// driver code. Blank-import one of the driver subpackages (sqlitedriver,
// postgresdriver, pgxdriver) or register a custom opener.
package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/youssefsiam38/agentmem/storage"
	"github.com/youssefsiam38/agentmem/types"
)

// Defaults applied when neither config nor environment provides a value.
const (
	DefaultDriverName       = "sqlite"
	DefaultDBName           = "agent_memory"
	DefaultCollectionPrefix = "memory_"

	DefaultConnectionEnvKey       = "AGENTMEM_CONNECTION_STRING"
	DefaultDBNameEnvKey           = "AGENTMEM_DB_NAME"
	DefaultCollectionPrefixEnvKey = "AGENTMEM_COLLECTION_PREFIX"
)

// Collection name suffixes, one per aggregate.
const (
	sessionsCollection    = "sessions"
	contextsCollection    = "contexts"
	historiesCollection   = "histories"
	compactionsCollection = "compactions"
	tasksCollection       = "tasks"
	subTaskRunsCollection = "subtask_runs"
)

// ClientOptions tunes the underlying connection pool.
type ClientOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Config configures the document backend. Every field is optional; values
// resolve as explicit field, then environment variable, then default.
type Config struct {
	// ConnectionString is the driver DSN. For sqlite this is a file path;
	// when empty a sqlite database named after DBName is used.
	ConnectionString string

	// DBName names the logical database. Server drivers select their
	// database through the DSN; sqlite derives a default filename from it.
	DBName string

	// CollectionPrefix prefixes every aggregate table (default "memory_").
	CollectionPrefix string

	// DriverName selects the registered driver (default "sqlite").
	DriverName string

	// Opener overrides driver resolution entirely. Useful for tests and for
	// wiring pre-built *sql.DB pools.
	Opener OpenFunc

	// ClientOptions tunes the connection pool after open.
	ClientOptions ClientOptions

	// Environment fallback keys. Empty fields use the package defaults.
	ConnectionEnvKey       string
	DBNameEnvKey           string
	CollectionPrefixEnvKey string
}

// resolved is the effective configuration after precedence rules.
type resolved struct {
	connectionString string
	dbName           string
	prefix           string
	driverName       string
	opener           OpenFunc
	clientOptions    ClientOptions
}

var prefixPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (c Config) resolve() (resolved, error) {
	pick := func(explicit, envKey, defaultEnvKey, fallback string) string {
		if explicit != "" {
			return explicit
		}
		key := envKey
		if key == "" {
			key = defaultEnvKey
		}
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}

	r := resolved{
		connectionString: pick(c.ConnectionString, c.ConnectionEnvKey, DefaultConnectionEnvKey, ""),
		dbName:           pick(c.DBName, c.DBNameEnvKey, DefaultDBNameEnvKey, DefaultDBName),
		prefix:           pick(c.CollectionPrefix, c.CollectionPrefixEnvKey, DefaultCollectionPrefixEnvKey, DefaultCollectionPrefix),
		driverName:       c.DriverName,
		opener:           c.Opener,
		clientOptions:    c.ClientOptions,
	}
	if r.driverName == "" {
		r.driverName = DefaultDriverName
	}
	if r.connectionString == "" {
		if r.driverName != DefaultDriverName {
			return resolved{}, fmt.Errorf("%w: no connection string configured for driver %q",
				storage.ErrBackendUnavailable, r.driverName)
		}
		r.connectionString = r.dbName + ".db"
	}
	if !prefixPattern.MatchString(r.prefix) {
		return resolved{}, fmt.Errorf("%w: collection prefix %q must match %s",
			storage.ErrBackendUnavailable, r.prefix, prefixPattern)
	}
	return r, nil
}

// adapter owns the shared database handle. All six stores go through it;
// Prepare opens the connection exactly once.
type adapter struct {
	cfg Config
	log zerolog.Logger

	mu       sync.Mutex
	db       *sql.DB
	prefix   string
	prepared bool
}

// NewBundle creates a document-backed store bundle. The database is not
// opened until Prepare runs.
func NewBundle(cfg Config, log zerolog.Logger) *storage.Bundle {
	a := &adapter{cfg: cfg, log: log}
	return &storage.Bundle{
		Sessions:    &docStore[*types.SessionData]{adapter: a, collection: sessionsCollection},
		Contexts:    &docStore[*types.CurrentContext]{adapter: a, collection: contextsCollection},
		Histories:   &docStore[[]types.HistoryMessage]{adapter: a, collection: historiesCollection},
		Compactions: &docStore[[]types.CompactionRecord]{adapter: a, collection: compactionsCollection},
		Tasks:       &taskStore{adapter: a},
		SubTaskRuns: &runStore{docStore[*types.SubTaskRunData]{adapter: a, collection: subTaskRunsCollection}},
		CloseFunc:   a.close,
	}
}

// prepare opens the database and creates the aggregate tables. Idempotent.
func (a *adapter) prepare(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.prepared {
		return nil
	}

	r, err := a.cfg.resolve()
	if err != nil {
		return err
	}

	open := r.opener
	if open == nil {
		if registered, ok := lookupOpener(r.driverName); ok {
			open = registered
		} else {
			// Fall back to drivers registered directly with database/sql.
			open = func(dsn string) (*sql.DB, error) {
				return sql.Open(r.driverName, dsn)
			}
		}
	}

	db, err := open(r.connectionString)
	if err != nil {
		return driverUnavailable(r.driverName, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return driverUnavailable(r.driverName, err)
	}

	if r.clientOptions.MaxOpenConns > 0 {
		db.SetMaxOpenConns(r.clientOptions.MaxOpenConns)
	}
	if r.clientOptions.MaxIdleConns > 0 {
		db.SetMaxIdleConns(r.clientOptions.MaxIdleConns)
	}
	if r.clientOptions.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(r.clientOptions.ConnMaxLifetime)
	}

	for _, collection := range []string{
		sessionsCollection, contextsCollection, historiesCollection,
		compactionsCollection, subTaskRunsCollection,
	} {
		ddl := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, payload TEXT NOT NULL)`,
			r.prefix+collection)
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			db.Close()
			return fmt.Errorf("failed to create collection %s: %w", r.prefix+collection, err)
		}
	}
	ddl := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, tasks TEXT NOT NULL)`,
		r.prefix+tasksCollection)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return fmt.Errorf("failed to create collection %s: %w", r.prefix+tasksCollection, err)
	}

	a.db = db
	a.prefix = r.prefix
	a.prepared = true
	return nil
}

func driverUnavailable(driverName string, err error) error {
	hint := driverImportHints[driverName]
	if hint == "" {
		hint = "a database/sql driver package that registers " + driverName
	}
	return fmt.Errorf("%w: driver %q could not be opened: %v (add a blank import of %s to your main package)",
		storage.ErrBackendUnavailable, driverName, err, hint)
}

// handle returns the prepared database handle.
func (a *adapter) handle() (*sql.DB, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.prepared {
		return nil, "", fmt.Errorf("%w: document backend is not prepared", storage.ErrBackendUnavailable)
	}
	return a.db, a.prefix, nil
}

func (a *adapter) close(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	a.prepared = false
	if err != nil {
		return fmt.Errorf("failed to close document backend: %w", err)
	}
	return nil
}

// docStore persists one aggregate as {id, payload} rows.
type docStore[T any] struct {
	adapter    *adapter
	collection string
}

func (s *docStore[T]) Prepare(ctx context.Context) error {
	return s.adapter.prepare(ctx)
}

func (s *docStore[T]) LoadAll(ctx context.Context) (map[string]T, error) {
	db, prefix, err := s.adapter.handle()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT id, payload FROM %s`, prefix+s.collection)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.collection, err)
	}
	defer rows.Close()

	out := make(map[string]T)
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", s.collection, err)
		}

		var value T
		if err := json.Unmarshal(payload, &value); err != nil {
			s.adapter.log.Warn().Str("collection", s.collection).Str("id", id).Err(err).
				Msg("skipping document with unreadable payload")
			continue
		}
		out[id] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", s.collection, err)
	}
	return out, nil
}

// save upserts one document, replacing the payload whole.
func (s *docStore[T]) save(ctx context.Context, id string, value T) error {
	db, prefix, err := s.adapter.handle()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s document: %w", s.collection, err)
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (id, payload) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET payload = excluded.payload`,
		prefix+s.collection)
	if _, err := db.ExecContext(ctx, query, id, payload); err != nil {
		return fmt.Errorf("failed to upsert %s document: %w", s.collection, err)
	}
	return nil
}

func (s *docStore[T]) Save(ctx context.Context, id string, value T) error {
	return s.save(ctx, id, value)
}

// runStore adds the delete operation the sub-task-run port requires.
type runStore struct {
	docStore[*types.SubTaskRunData]
}

func (s *runStore) Delete(ctx context.Context, runID string) error {
	db, prefix, err := s.adapter.handle()
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, prefix+s.collection)
	if _, err := db.ExecContext(ctx, query, runID); err != nil {
		return fmt.Errorf("failed to delete %s document: %w", s.collection, err)
	}
	return nil
}

// taskStore keeps one {id: sessionId, tasks: [...]} document per session so
// a save replaces the session's whole task list.
type taskStore struct {
	adapter *adapter
}

func (s *taskStore) Prepare(ctx context.Context) error {
	return s.adapter.prepare(ctx)
}

func (s *taskStore) LoadAll(ctx context.Context) (map[string]*types.TaskData, error) {
	db, prefix, err := s.adapter.handle()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT id, tasks FROM %s`, prefix+tasksCollection)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", tasksCollection, err)
	}
	defer rows.Close()

	out := make(map[string]*types.TaskData)
	for rows.Next() {
		var sessionID string
		var payload []byte
		if err := rows.Scan(&sessionID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", tasksCollection, err)
		}

		var tasks []types.TaskData
		if err := json.Unmarshal(payload, &tasks); err != nil {
			s.adapter.log.Warn().Str("collection", tasksCollection).Str("id", sessionID).Err(err).
				Msg("skipping task document with unreadable payload")
			continue
		}
		for i := range tasks {
			task := tasks[i]
			out[task.TaskID] = &task
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", tasksCollection, err)
	}
	return out, nil
}

func (s *taskStore) SaveBySession(ctx context.Context, sessionID string, tasks []types.TaskData) error {
	db, prefix, err := s.adapter.handle()
	if err != nil {
		return err
	}

	if len(tasks) == 0 {
		query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, prefix+tasksCollection)
		if _, err := db.ExecContext(ctx, query, sessionID); err != nil {
			return fmt.Errorf("failed to delete %s document: %w", tasksCollection, err)
		}
		return nil
	}

	payload, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("failed to marshal %s document: %w", tasksCollection, err)
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (id, tasks) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET tasks = excluded.tasks`,
		prefix+tasksCollection)
	if _, err := db.ExecContext(ctx, query, sessionID, payload); err != nil {
		return fmt.Errorf("failed to upsert %s document: %w", tasksCollection, err)
	}
	return nil
}
