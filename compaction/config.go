package compaction

import (
	"fmt"
)

// Default configuration values.
const (
	DefaultTriggerRatio        = 0.85 // 85% of the input budget
	DefaultKeepLastN           = 10   // Always keep last 10 non-system messages
	DefaultSummarizerModel     = "claude-3-5-haiku-20241022"
	DefaultSummarizerMaxTokens = 4096   // Max tokens for the summarization response
	DefaultMaxContextTokens    = 200000 // Claude context window
	DefaultMaxOutputTokens     = 8192   // Output reservation subtracted from the window
	DefaultMaxCharsPerMessage  = 2000   // Per-message truncation when serializing for summary
)

// Config holds compaction configuration.
type Config struct {
	// MaxContextTokens is the context window of the target model.
	// Default: 200000
	MaxContextTokens int

	// MaxOutputTokens is reserved for the model's response and subtracted
	// from the window before the trigger check.
	// Default: 8192
	MaxOutputTokens int

	// TriggerRatio is the input-budget utilization (0.0-1.0) that triggers
	// compaction. E.g. 0.85 means compact at 85% of (window - output).
	// Default: 0.85
	TriggerRatio float64

	// KeepLastN is the number of recent non-system messages kept verbatim.
	// Compaction never triggers while the conversation has fewer non-system
	// messages than this.
	// Default: 10
	KeepLastN int

	// SummarizerModel is the model used for summarization.
	// Using a faster/cheaper model is recommended.
	// Default: "claude-3-5-haiku-20241022"
	SummarizerModel string

	// SummarizerMaxTokens is the maximum tokens for the summarization response.
	// Default: 4096
	SummarizerMaxTokens int

	// MaxCharsPerMessage truncates each serialized message before it enters
	// the summarization prompt.
	// Default: 2000
	MaxCharsPerMessage int
}

// DefaultConfig returns a Config with the package defaults.
func DefaultConfig() Config {
	return Config{
		MaxContextTokens:    DefaultMaxContextTokens,
		MaxOutputTokens:     DefaultMaxOutputTokens,
		TriggerRatio:        DefaultTriggerRatio,
		KeepLastN:           DefaultKeepLastN,
		SummarizerModel:     DefaultSummarizerModel,
		SummarizerMaxTokens: DefaultSummarizerMaxTokens,
		MaxCharsPerMessage:  DefaultMaxCharsPerMessage,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxContextTokens == 0 {
		c.MaxContextTokens = DefaultMaxContextTokens
	}
	if c.MaxOutputTokens == 0 {
		c.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if c.TriggerRatio == 0 {
		c.TriggerRatio = DefaultTriggerRatio
	}
	if c.KeepLastN == 0 {
		c.KeepLastN = DefaultKeepLastN
	}
	if c.SummarizerModel == "" {
		c.SummarizerModel = DefaultSummarizerModel
	}
	if c.SummarizerMaxTokens == 0 {
		c.SummarizerMaxTokens = DefaultSummarizerMaxTokens
	}
	if c.MaxCharsPerMessage == 0 {
		c.MaxCharsPerMessage = DefaultMaxCharsPerMessage
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.TriggerRatio <= 0 || c.TriggerRatio > 1.0 {
		return fmt.Errorf("%w: trigger ratio must be between 0 and 1, got %f", ErrInvalidConfig, c.TriggerRatio)
	}

	if c.KeepLastN < 0 {
		return fmt.Errorf("%w: keep_last_n must be non-negative, got %d", ErrInvalidConfig, c.KeepLastN)
	}

	if c.MaxContextTokens <= 0 {
		return fmt.Errorf("%w: max_context_tokens must be positive, got %d", ErrInvalidConfig, c.MaxContextTokens)
	}

	if c.MaxOutputTokens < 0 || c.MaxOutputTokens >= c.MaxContextTokens {
		return fmt.Errorf("%w: max_output_tokens (%d) must fit inside max_context_tokens (%d)",
			ErrInvalidConfig, c.MaxOutputTokens, c.MaxContextTokens)
	}

	if c.SummarizerModel == "" {
		return fmt.Errorf("%w: summarizer_model is required", ErrInvalidConfig)
	}

	if c.SummarizerMaxTokens <= 0 {
		return fmt.Errorf("%w: summarizer_max_tokens must be positive, got %d", ErrInvalidConfig, c.SummarizerMaxTokens)
	}

	if c.MaxCharsPerMessage <= 0 {
		return fmt.Errorf("%w: max_chars_per_message must be positive, got %d", ErrInvalidConfig, c.MaxCharsPerMessage)
	}

	return nil
}

// InputBudget returns the token budget available for conversation input.
func (c *Config) InputBudget() int {
	return c.MaxContextTokens - c.MaxOutputTokens
}

// TriggerThreshold returns the absolute token count that triggers compaction.
func (c *Config) TriggerThreshold() int {
	return int(c.TriggerRatio * float64(c.InputBudget()))
}
