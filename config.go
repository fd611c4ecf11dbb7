package agentmem

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/youssefsiam38/agentmem/compaction"
	"github.com/youssefsiam38/agentmem/hooks"
	"github.com/youssefsiam38/agentmem/storage/document"
	"github.com/youssefsiam38/agentmem/storage/tiered"
)

// ModelInfo contains model-specific parameters
type ModelInfo struct {
	MaxContextTokens int
	DefaultMaxTokens int
}

// KnownModels maps model IDs to their capabilities
var KnownModels = map[string]ModelInfo{
	// Claude 4 models
	"claude-sonnet-4-5-20250929": {MaxContextTokens: 200000, DefaultMaxTokens: 16384},
	"claude-opus-4-5-20251101":   {MaxContextTokens: 200000, DefaultMaxTokens: 16384},
	// Claude 3.5 models
	"claude-3-5-sonnet-20241022": {MaxContextTokens: 200000, DefaultMaxTokens: 8192},
	"claude-3-5-haiku-20241022":  {MaxContextTokens: 200000, DefaultMaxTokens: 8192},
	// Claude 3 models
	"claude-3-opus-20240229":   {MaxContextTokens: 200000, DefaultMaxTokens: 4096},
	"claude-3-sonnet-20240229": {MaxContextTokens: 200000, DefaultMaxTokens: 4096},
	"claude-3-haiku-20240307":  {MaxContextTokens: 200000, DefaultMaxTokens: 4096},
}

// GetModelInfo returns model info, using sensible defaults for unknown models
func GetModelInfo(model string) ModelInfo {
	if info, ok := KnownModels[model]; ok {
		return info
	}
	// Sensible defaults for unknown models
	return ModelInfo{MaxContextTokens: 200000, DefaultMaxTokens: 8192}
}

// DefaultBasePath is where file-backed storage lives when no path is given.
const DefaultBasePath = "./agent-memory"

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Type selects the adapter: "file" (default), "document", or "hybrid".
	// Unrecognized types produce a bundle whose operations fail with
	// ErrBackendUnsupported so the problem surfaces at first use.
	Type string

	// ConnectionString is the base path for file-backed storage or the
	// database DSN for document storage.
	ConnectionString string

	// BasePath overrides ConnectionString for file-backed storage.
	BasePath string

	// Document configures the document-store adapter (Type "document").
	Document document.Config

	// Hybrid configures the tiered adapter (Type "hybrid"). An empty
	// Hybrid.BasePath inherits the resolved file base path.
	Hybrid tiered.Config
}

// resolveBasePath returns the directory file-backed storage should use.
func (s *StorageConfig) resolveBasePath() string {
	if s.BasePath != "" {
		return s.BasePath
	}
	if s.ConnectionString != "" {
		return s.ConnectionString
	}
	return DefaultBasePath
}

// Config holds the configuration for a memory engine. The zero value is
// usable: file storage under DefaultBasePath.
//
// Example:
//
//	engine, _ := agentmem.New(agentmem.Config{
//	    Storage: agentmem.StorageConfig{Type: "file", BasePath: "./memory"},
//	})
type Config struct {
	// Storage selects the persistence backend
	Storage StorageConfig
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage.Type == "hybrid" {
		for aggregate, tier := range c.Storage.Hybrid.Routing {
			switch tier {
			case tiered.TierShort, tiered.TierMid, tiered.TierLong:
			default:
				return fmt.Errorf("%w: unknown tier %q routed for aggregate %q", ErrInvalidConfig, tier, aggregate)
			}
		}
		for _, tc := range []*tiered.TierConfig{c.Storage.Hybrid.ShortTerm, c.Storage.Hybrid.MidTerm, c.Storage.Hybrid.LongTerm} {
			if tc == nil {
				continue
			}
			switch tc.Type {
			case "", "file", "document":
			default:
				return fmt.Errorf("%w: unknown tier backend %q", ErrInvalidConfig, tc.Type)
			}
		}
	}
	return nil
}

// internalConfig holds the full engine configuration including optional parameters
type internalConfig struct {
	// Required from Config
	storage StorageConfig

	// Optional parameters
	logger         zerolog.Logger
	hooks          *hooks.Registry
	autoCompaction bool

	// Compaction configuration
	model             string  // Model whose window bounds the context
	compactionTrigger float64 // Utilization ratio that triggers compaction (0.0-1.0)
	keepLastN         int     // Always keep the last N non-system messages
	maxContextTokens  int     // Max context window, 0 means derive from model
	maxOutputTokens   int     // Output reservation, 0 means derive from model
	summarizerModel   string  // Model for summarization
	summarizer        compaction.Summarizer
}

// newInternalConfig creates a new internal config from the public Config
func newInternalConfig(cfg Config) *internalConfig {
	return &internalConfig{
		storage: cfg.Storage,

		// Defaults
		logger:         zerolog.Nop(),
		hooks:          hooks.NewRegistry(),
		autoCompaction: true,

		// Compaction defaults; token budgets resolve lazily against the
		// model so option order does not matter
		compactionTrigger: 0.85,
		keepLastN:         10,
		summarizerModel:   "claude-3-5-haiku-20241022",
	}
}

// compactionConfig resolves the compaction knobs against the model's limits.
func (c *internalConfig) compactionConfig() compaction.Config {
	info := GetModelInfo(c.model)

	maxContext := c.maxContextTokens
	if maxContext == 0 {
		maxContext = info.MaxContextTokens
	}
	maxOutput := c.maxOutputTokens
	if maxOutput == 0 {
		maxOutput = info.DefaultMaxTokens
	}

	return compaction.Config{
		MaxContextTokens: maxContext,
		MaxOutputTokens:  maxOutput,
		TriggerRatio:     c.compactionTrigger,
		KeepLastN:        c.keepLastN,
		SummarizerModel:  c.summarizerModel,
	}
}
