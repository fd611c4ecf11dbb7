package agentmem

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/youssefsiam38/agentmem/compaction"
	"github.com/youssefsiam38/agentmem/hooks"
	"github.com/youssefsiam38/agentmem/storage"
	"github.com/youssefsiam38/agentmem/storage/document"
	"github.com/youssefsiam38/agentmem/storage/file"
	"github.com/youssefsiam38/agentmem/storage/tiered"
	"github.com/youssefsiam38/agentmem/storage/unsupported"
)

// Version is the current agentmem version
const Version = "1.0.0"

// Engine is the durable source of truth for conversation state: sessions,
// contexts, histories, compaction records, tasks, and sub-task runs. All
// reads serve from an in-memory cache; writes update the cache first and
// then fan out to the store bundle.
//
// An Engine must be initialized before use and may be shared by any number
// of concurrent sessions and sub-agents.
//
// Example:
//
//	engine, err := agentmem.New(agentmem.Config{
//	    Storage: agentmem.StorageConfig{Type: "file", BasePath: "./memory"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := engine.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close(ctx)
type Engine struct {
	config *internalConfig
	log    zerolog.Logger
	hooks  *hooks.Registry

	// compactor is nil unless a summarizer was configured; the facade
	// skips compaction entirely in that case.
	compactor *compaction.Compactor

	newBundle func() (*storage.Bundle, error)

	// mu guards the initialization state and the bundle pointer.
	mu          sync.Mutex
	initialized bool
	initWait    chan struct{}
	initErr     error
	bundle      *storage.Bundle

	state *engineState
}

// New creates an Engine from the configuration and options. The storage
// bundle is constructed eagerly so configuration problems surface here, but
// nothing is loaded until Initialize.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	internal := newInternalConfig(cfg)
	for _, opt := range opts {
		if err := opt(internal); err != nil {
			return nil, err
		}
	}

	e := &Engine{
		config: internal,
		log:    internal.logger,
		hooks:  internal.hooks,
		state:  newEngineState(),
	}
	e.newBundle = func() (*storage.Bundle, error) {
		return buildBundle(internal.storage, internal.logger)
	}

	bundle, err := e.newBundle()
	if err != nil {
		return nil, err
	}
	e.bundle = bundle

	if internal.summarizer != nil {
		compactor, err := compaction.New(internal.compactionConfig(), internal.summarizer, e, internal.logger)
		if err != nil {
			return nil, err
		}
		e.compactor = compactor
	}

	return e, nil
}

// buildBundle constructs the store bundle for a storage configuration.
// Unrecognized types get the unsupported bundle so the problem surfaces at
// first use with an actionable error.
func buildBundle(cfg StorageConfig, log zerolog.Logger) (*storage.Bundle, error) {
	switch cfg.Type {
	case "", "file":
		return file.NewBundle(cfg.resolveBasePath(), log), nil

	case "document":
		doc := cfg.Document
		if doc.ConnectionString == "" {
			doc.ConnectionString = cfg.ConnectionString
		}
		return document.NewBundle(doc, log), nil

	case "hybrid":
		hybrid := cfg.Hybrid
		if hybrid.BasePath == "" {
			hybrid.BasePath = cfg.resolveBasePath()
		}
		return tiered.NewBundle(hybrid, log)

	default:
		return unsupported.NewBundle(cfg.Type), nil
	}
}

// Initialize prepares the store, loads every aggregate into the cache, and
// repairs cross-aggregate invariants. It is idempotent and safe under
// concurrent callers: the bootstrap runs exactly once, and every caller
// observes its outcome. A failed initialization leaves the engine
// uninitialized so a later call can retry.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	if e.initialized {
		e.mu.Unlock()
		return nil
	}
	if wait := e.initWait; wait != nil {
		e.mu.Unlock()
		return e.awaitInitialization(ctx, wait)
	}

	wait := make(chan struct{})
	e.initWait = wait
	e.mu.Unlock()

	err := e.bootstrap(ctx)

	e.mu.Lock()
	e.initialized = err == nil
	e.initErr = err
	e.initWait = nil
	e.mu.Unlock()
	close(wait)

	if err != nil {
		return err
	}
	return nil
}

// awaitInitialization blocks until an in-flight bootstrap settles and
// returns its outcome.
func (e *Engine) awaitInitialization(ctx context.Context, wait chan struct{}) error {
	select {
	case <-wait:
	case <-ctx.Done():
		return ctx.Err()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return nil
	}
	return e.initErr
}

// WaitForInitialization returns once the engine is initialized: it returns
// immediately when initialization already completed, awaits an in-flight
// bootstrap, or starts initialization itself. Sub-agents sharing an engine
// call this to enter safely without coordinating with their parent.
func (e *Engine) WaitForInitialization(ctx context.Context) error {
	return e.Initialize(ctx)
}

// Close awaits any in-flight initialization (ignoring its outcome), closes
// the store bundle, and marks the engine uninitialized. The engine may be
// initialized again afterwards; a fresh bundle is built on the next
// bootstrap.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	wait := e.initWait
	e.mu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	e.mu.Lock()
	bundle := e.bundle
	e.bundle = nil
	e.initialized = false
	e.initErr = nil
	e.mu.Unlock()

	e.state.reset()

	if bundle == nil {
		return nil
	}
	if err := bundle.Close(ctx); err != nil {
		return NewEngineError("Close", err)
	}
	return nil
}

// ensureInitialized gates every public operation on a completed Initialize.
func (e *Engine) ensureInitialized(op string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return NewEngineError(op, ErrNotInitialized)
	}
	return nil
}

// store returns the live bundle. Valid only while initialized.
func (e *Engine) store() *storage.Bundle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bundle
}

// Hooks exposes the engine's hook registry for observer registration.
func (e *Engine) Hooks() *hooks.Registry {
	return e.hooks
}

// fanOut runs the given persistence operations concurrently and waits for
// all of them, returning the first error encountered.
func fanOut(ops ...func() error) error {
	var wg sync.WaitGroup
	errs := make([]error, len(ops))

	for i, op := range ops {
		wg.Add(1)
		go func(i int, op func() error) {
			defer wg.Done()
			errs[i] = op()
		}(i, op)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
