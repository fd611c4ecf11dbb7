// Package maintenance provides background upkeep for an engine: sweeping
// stale backup and quarantine files out of a file-backed store and
// archiving sessions that have gone idle.
package maintenance

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/youssefsiam38/agentmem"
	"github.com/youssefsiam38/agentmem/internal/atomicfile"
	"github.com/youssefsiam38/agentmem/types"
)

// Errors returned by the maintenance package.
var (
	// ErrAlreadyStarted is returned when Start() is called on an already started service.
	ErrAlreadyStarted = errors.New("service already started")

	// ErrNotStarted is returned when Stop() is called on a service that hasn't started.
	ErrNotStarted = errors.New("service not started")
)

// Default cleanup configuration values
const (
	DefaultCleanupInterval   = 1 * time.Hour
	DefaultArtifactRetention = 7 * 24 * time.Hour
)

// SessionArchiver is the slice of the engine the cleanup service drives for
// idle-session archiving. *agentmem.Engine satisfies it.
type SessionArchiver interface {
	QuerySessions(filter *agentmem.SessionFilter, opts *agentmem.SessionQueryOptions) ([]types.SessionData, error)
	ArchiveSession(ctx context.Context, sessionID string) error
}

// CleanupConfig holds configuration for the cleanup service.
type CleanupConfig struct {
	// Interval is how often to run cleanup operations.
	// Default: 1 hour
	Interval time.Duration

	// ArtifactRetention is how old a backup or quarantine file must be
	// before the sweep removes it.
	// Default: 7 days
	ArtifactRetention time.Duration

	// IdleSessionTimeout is how long a session can go without updates
	// before it is archived. Zero disables idle archiving.
	IdleSessionTimeout time.Duration

	// OnArtifactSweep is called when recovery artifacts are removed.
	// The count is the number of files deleted.
	OnArtifactSweep func(count int)

	// OnSessionArchived is called when idle sessions are archived.
	// The count is the number of sessions moved to archived.
	OnSessionArchived func(count int)

	// OnError is called when a cleanup operation fails.
	OnError func(err error)
}

// DefaultCleanupConfig returns the default cleanup configuration.
// Idle-session archiving is disabled until a timeout is set.
func DefaultCleanupConfig() *CleanupConfig {
	return &CleanupConfig{
		Interval:          DefaultCleanupInterval,
		ArtifactRetention: DefaultArtifactRetention,
	}
}

// CleanupResult holds the results of a cleanup operation.
type CleanupResult struct {
	// ArtifactsRemoved is the number of backup and quarantine files removed.
	ArtifactsRemoved int

	// SessionsArchived is the number of idle sessions moved to archived.
	SessionsArchived int

	// Errors contains any errors that occurred during cleanup.
	Errors []error
}

// Cleanup performs periodic upkeep of a store. The artifact sweep only
// applies to the file backend; basePath is empty for other backends and
// the sweep is skipped.
type Cleanup struct {
	basePath string
	sessions SessionArchiver
	config   *CleanupConfig

	started atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewCleanup creates a new cleanup service. basePath is the file backend's
// storage directory, or empty when no file sweep is wanted. sessions may be
// nil when idle archiving is not wanted.
func NewCleanup(basePath string, sessions SessionArchiver, config *CleanupConfig) *Cleanup {
	if config == nil {
		config = DefaultCleanupConfig()
	}
	if config.ArtifactRetention <= 0 {
		config.ArtifactRetention = DefaultArtifactRetention
	}

	return &Cleanup{
		basePath: basePath,
		sessions: sessions,
		config:   config,
		done:     make(chan struct{}),
	}
}

// Start begins the cleanup loop.
// It returns immediately and runs cleanup operations in a goroutine.
func (c *Cleanup) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)

	return nil
}

// Stop stops the cleanup loop.
func (c *Cleanup) Stop(ctx context.Context) error {
	if !c.started.Load() {
		return ErrNotStarted
	}

	c.cancel()
	<-c.done

	c.started.Store(false)
	return nil
}

// run is the main cleanup loop.
func (c *Cleanup) run(ctx context.Context) {
	defer close(c.done)

	// Run cleanup immediately on start
	c.runCleanup(ctx)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runCleanup(ctx)
		}
	}
}

// runCleanup performs all cleanup operations.
func (c *Cleanup) runCleanup(ctx context.Context) {
	result := c.RunOnce(ctx)

	if c.config.OnArtifactSweep != nil && result.ArtifactsRemoved > 0 {
		c.config.OnArtifactSweep(result.ArtifactsRemoved)
	}

	if c.config.OnSessionArchived != nil && result.SessionsArchived > 0 {
		c.config.OnSessionArchived(result.SessionsArchived)
	}

	if c.config.OnError != nil {
		for _, err := range result.Errors {
			c.config.OnError(err)
		}
	}
}

// RunOnce performs cleanup operations once and returns the result.
// This can be called manually for testing or one-off cleanup.
func (c *Cleanup) RunOnce(ctx context.Context) *CleanupResult {
	result := &CleanupResult{}

	// Sweep recovery artifacts from the file store
	removed, err := c.sweepArtifacts()
	if err != nil {
		result.Errors = append(result.Errors, err)
	}
	result.ArtifactsRemoved = removed

	// Archive sessions that have gone idle
	archived, err := c.archiveIdleSessions(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err)
	}
	result.SessionsArchived = archived

	return result
}

// sweepArtifacts removes backup and quarantine files older than the
// retention window. Live *.json entries are never touched.
func (c *Cleanup) sweepArtifacts() (int, error) {
	if c.basePath == "" {
		return 0, nil
	}

	horizon := time.Now().Add(-c.config.ArtifactRetention)

	count := 0
	err := filepath.WalkDir(c.basePath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if entry.IsDir() || !atomicfile.IsRecoveryArtifact(entry.Name()) {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(horizon) {
			return nil
		}

		if err := os.Remove(path); err != nil {
			// Continue with other files even if one fails
			return nil
		}
		count++
		return nil
	})

	return count, err
}

// archiveIdleSessions moves active sessions whose last update is older than
// the idle window to archived.
func (c *Cleanup) archiveIdleSessions(ctx context.Context) (int, error) {
	if c.sessions == nil || c.config.IdleSessionTimeout <= 0 {
		return 0, nil
	}

	horizon := time.Now().Add(-c.config.IdleSessionTimeout)

	active, err := c.sessions.QuerySessions(&agentmem.SessionFilter{Status: types.SessionActive}, nil)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, session := range active {
		if session.UpdatedAt.After(horizon) {
			continue
		}
		if err := c.sessions.ArchiveSession(ctx, session.SessionID); err != nil {
			// Continue with other sessions even if one fails
			continue
		}
		count++
	}

	return count, nil
}

// IsRunning returns true if the cleanup service is running.
func (c *Cleanup) IsRunning() bool {
	return c.started.Load()
}
