package compaction

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/youssefsiam38/agentmem/types"
)

// Transition describes a compacted context ready to persist: the summary
// message plus the active set that survives verbatim. Everything in the old
// context that is not kept gets archived.
type Transition struct {
	Summary      types.Message
	Kept         []types.Message
	Reason       types.CompactionReason
	TokensBefore *int
	TokensAfter  *int
}

// Recorder persists compaction transitions. The memory engine satisfies it.
type Recorder interface {
	RecordCompaction(ctx context.Context, sessionID string, transition Transition) (*types.CompactionRecord, error)
}

// Result reports one completed compaction.
type Result struct {
	// Messages is the reassembled context: [system..., summary, ...active].
	Messages []types.Message

	// Summary is the synthesized summary message.
	Summary types.Message

	// Record is the persisted compaction record, nil when no Recorder is wired.
	Record *types.CompactionRecord

	// ArchivedCount is how many messages were folded into the summary.
	ArchivedCount int

	TokensBefore int
	TokensAfter  int
	Duration     time.Duration
}

// Compactor decides when a conversation needs compaction and performs it.
// It is safe for concurrent use across sessions; concurrent compactions of
// the same session should be avoided.
type Compactor struct {
	config     Config
	summarizer Summarizer
	recorder   Recorder
	log        zerolog.Logger
}

// New creates a Compactor. The summarizer is required; the recorder is
// optional and, when present, receives every compaction transition.
func New(cfg Config, summarizer Summarizer, recorder Recorder, log zerolog.Logger) (*Compactor, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if summarizer == nil {
		return nil, fmt.Errorf("%w: summarizer is required", ErrInvalidConfig)
	}

	return &Compactor{
		config:     cfg,
		summarizer: summarizer,
		recorder:   recorder,
		log:        log,
	}, nil
}

// ShouldCompact reports whether a context snapshot crosses the trigger:
// used tokens at or past the threshold, and more non-system messages than
// KeepLastN.
func (c *Compactor) ShouldCompact(messages []types.Message) (bool, TokenCount) {
	tc := CountTokens(messages)

	nonSystem := 0
	for i := range messages {
		if messages[i].Role != types.RoleSystem {
			nonSystem++
		}
	}

	should := tc.Used >= c.config.TriggerThreshold() && nonSystem > c.config.KeepLastN
	return should, tc
}

// CompactIfNeeded runs the trigger check and compacts when it fires.
// Returns (nil, nil) when no compaction is needed.
func (c *Compactor) CompactIfNeeded(ctx context.Context, sessionID string, messages []types.Message) (*Result, error) {
	should, tc := c.ShouldCompact(messages)
	if !should {
		return nil, nil
	}

	c.log.Info().
		Str("sessionId", sessionID).
		Int("usedTokens", tc.Used).
		Int("threshold", c.config.TriggerThreshold()).
		Bool("usageReliable", tc.Reliable).
		Msg("context passed compaction trigger")

	return c.compact(ctx, sessionID, messages, types.CompactionReasonTokenLimit, tc)
}

// Compact compacts unconditionally. This is the manual path; the trigger
// check is skipped.
func (c *Compactor) Compact(ctx context.Context, sessionID string, messages []types.Message, reason types.CompactionReason) (*Result, error) {
	return c.compact(ctx, sessionID, messages, reason, CountTokens(messages))
}

func (c *Compactor) compact(ctx context.Context, sessionID string, messages []types.Message, reason types.CompactionReason, tc TokenCount) (*Result, error) {
	start := time.Now()

	partition := PartitionMessages(messages, c.config.KeepLastN)
	if !partition.CanCompact() {
		return nil, WrapErrorWithSession("Compact", sessionID, ErrNoMessagesToCompact)
	}

	previousSummary, toSummarize := partition.SplitLeadingSummary()
	if len(toSummarize) == 0 {
		return nil, WrapErrorWithSession("Compact", sessionID, ErrNoMessagesToCompact)
	}

	summaryText, err := c.summarizer.Summarize(ctx, SummaryRequest{
		Conversation:    SerializeConversation(toSummarize, c.config.MaxCharsPerMessage),
		PreviousSummary: previousSummary,
	})
	if err != nil {
		return nil, WrapErrorWithSession("Summarize", sessionID, err)
	}

	summary := types.NewSummaryMessage(summaryText)

	newMessages := make([]types.Message, 0, len(partition.System)+1+len(partition.Active))
	newMessages = append(newMessages, partition.System...)
	newMessages = append(newMessages, summary)
	newMessages = append(newMessages, partition.Active...)

	tokensBefore := tc.Used
	tokensAfter := CountTokens(newMessages).Used

	result := &Result{
		Messages:      newMessages,
		Summary:       summary,
		ArchivedCount: len(partition.Pending),
		TokensBefore:  tokensBefore,
		TokensAfter:   tokensAfter,
	}

	if c.recorder != nil {
		record, err := c.recorder.RecordCompaction(ctx, sessionID, Transition{
			Summary:      summary,
			Kept:         partition.Active,
			Reason:       reason,
			TokensBefore: &tokensBefore,
			TokensAfter:  &tokensAfter,
		})
		if err != nil {
			return nil, WrapErrorWithSession("RecordCompaction", sessionID, err)
		}
		result.Record = record
	}

	result.Duration = time.Since(start)

	c.log.Info().
		Str("sessionId", sessionID).
		Int("archived", result.ArchivedCount).
		Int("tokensBefore", tokensBefore).
		Int("tokensAfter", tokensAfter).
		Msg("context compacted")

	return result, nil
}
