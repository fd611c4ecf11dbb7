package agentmem

import (
	"github.com/rs/zerolog"

	"github.com/youssefsiam38/agentmem/compaction"
	"github.com/youssefsiam38/agentmem/hooks"
)

// Option is a functional option for configuring an Engine
type Option func(*internalConfig) error

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *internalConfig) error {
		c.logger = logger
		return nil
	}
}

// WithHooks registers lifecycle hooks with the engine
func WithHooks(registry *hooks.Registry) Option {
	return func(c *internalConfig) error {
		if registry == nil {
			return NewEngineError("WithHooks", ErrInvalidConfig).
				WithContext("reason", "registry must not be nil")
		}
		c.hooks = registry
		return nil
	}
}

// WithModel sets the model whose context window bounds compaction decisions
func WithModel(model string) Option {
	return func(c *internalConfig) error {
		c.model = model
		return nil
	}
}

// WithAutoCompaction enables or disables automatic context compaction
func WithAutoCompaction(enabled bool) Option {
	return func(c *internalConfig) error {
		c.autoCompaction = enabled
		return nil
	}
}

// WithCompactionTrigger sets when compaction triggers (0.0-1.0, default 0.85)
func WithCompactionTrigger(threshold float64) Option {
	return func(c *internalConfig) error {
		if threshold <= 0 || threshold > 1 {
			return NewEngineError("WithCompactionTrigger", ErrInvalidConfig).
				WithContext("threshold", threshold).
				WithContext("reason", "threshold must be between 0 and 1")
		}
		c.compactionTrigger = threshold
		return nil
	}
}

// WithKeepLastMessages sets how many recent non-system messages survive
// compaction untouched (default 10)
func WithKeepLastMessages(n int) Option {
	return func(c *internalConfig) error {
		if n <= 0 {
			return NewEngineError("WithKeepLastMessages", ErrInvalidConfig).
				WithContext("n", n).
				WithContext("reason", "must be positive")
		}
		c.keepLastN = n
		return nil
	}
}

// WithMaxContextTokens overrides the model's default context window size
func WithMaxContextTokens(tokens int) Option {
	return func(c *internalConfig) error {
		c.maxContextTokens = tokens
		return nil
	}
}

// WithMaxOutputTokens overrides the output-token reservation subtracted from
// the window before the trigger check
func WithMaxOutputTokens(tokens int) Option {
	return func(c *internalConfig) error {
		c.maxOutputTokens = tokens
		return nil
	}
}

// WithSummarizerModel sets the model used for summarization during compaction
func WithSummarizerModel(model string) Option {
	return func(c *internalConfig) error {
		c.summarizerModel = model
		return nil
	}
}

// WithSummarizer sets the LLM summarizer used by compaction. Without one,
// CompactBeforeLLMCall is a no-op and manual CompactContext fails with
// ErrInvalidConfig.
func WithSummarizer(s compaction.Summarizer) Option {
	return func(c *internalConfig) error {
		c.summarizer = s
		return nil
	}
}
