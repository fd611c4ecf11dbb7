package hooks

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/youssefsiam38/agentmem/types"
)

// LoggingHooks provides built-in logging hooks for observability
type LoggingHooks struct {
	logger zerolog.Logger
}

// NewLoggingHooks creates logging hooks with the provided logger
func NewLoggingHooks(logger zerolog.Logger) *LoggingHooks {
	return &LoggingHooks{logger: logger}
}

// Register attaches every logging hook to a registry
func (h *LoggingHooks) Register(r *Registry) {
	r.OnSessionCreated(h.SessionCreated)
	r.OnMessageAdded(h.MessageAdded)
	r.OnMessageRemoved(h.MessageRemoved)
	r.OnBeforeCompaction(h.BeforeCompaction)
	r.OnAfterCompaction(h.AfterCompaction)
	r.OnToolCallRepaired(h.ToolCallRepaired)
}

// SessionCreated logs session creation
func (h *LoggingHooks) SessionCreated(ctx context.Context, sessionID string) error {
	h.logger.Info().Str("sessionId", sessionID).Msg("session created")
	return nil
}

// MessageAdded logs message additions
func (h *LoggingHooks) MessageAdded(ctx context.Context, sessionID string, message types.Message) error {
	h.logger.Debug().
		Str("sessionId", sessionID).
		Str("messageId", message.MessageID).
		Str("role", string(message.Role)).
		Msg("message added to context")
	return nil
}

// MessageRemoved logs message removals
func (h *LoggingHooks) MessageRemoved(ctx context.Context, sessionID string, messageID string, reason string) error {
	h.logger.Info().
		Str("sessionId", sessionID).
		Str("messageId", messageID).
		Str("reason", reason).
		Msg("message removed from context")
	return nil
}

// BeforeCompaction logs before context compaction
func (h *LoggingHooks) BeforeCompaction(ctx context.Context, sessionID string) error {
	h.logger.Info().Str("sessionId", sessionID).Msg("starting context compaction")
	return nil
}

// AfterCompaction logs after context compaction
func (h *LoggingHooks) AfterCompaction(ctx context.Context, record *types.CompactionRecord) error {
	event := h.logger.Info().
		Str("sessionId", record.SessionID).
		Str("recordId", record.RecordID).
		Str("reason", string(record.Reason)).
		Int("messagesBefore", record.MessageCountBefore).
		Int("messagesAfter", record.MessageCountAfter).
		Int("archived", len(record.ArchivedMessageIDs))

	if record.TokensBefore != nil && record.TokensAfter != nil && *record.TokensBefore > 0 {
		reduction := float64(*record.TokensBefore-*record.TokensAfter) / float64(*record.TokensBefore) * 100
		event = event.
			Int("tokensBefore", *record.TokensBefore).
			Int("tokensAfter", *record.TokensAfter).
			Float64("reductionPct", reduction)
	}

	event.Msg("compaction complete")
	return nil
}

// ToolCallRepaired logs synthesized tool results
func (h *LoggingHooks) ToolCallRepaired(ctx context.Context, sessionID string, toolCallID string) error {
	h.logger.Warn().
		Str("sessionId", sessionID).
		Str("toolCallId", toolCallID).
		Msg("synthesized result for interrupted tool call")
	return nil
}

// MetricsHooks collects metrics for monitoring
type MetricsHooks struct {
	OnMetric func(name string, value float64, tags map[string]string)
}

// NewMetricsHooks creates metrics collection hooks
func NewMetricsHooks(onMetric func(string, float64, map[string]string)) *MetricsHooks {
	return &MetricsHooks{OnMetric: onMetric}
}

// Register attaches every metrics hook to a registry
func (h *MetricsHooks) Register(r *Registry) {
	r.OnMessageAdded(h.MessageAdded)
	r.OnAfterCompaction(h.AfterCompaction)
	r.OnToolCallRepaired(h.ToolCallRepaired)
}

// MessageAdded records message throughput
func (h *MetricsHooks) MessageAdded(ctx context.Context, sessionID string, message types.Message) error {
	h.OnMetric("memory.messages.added", 1, map[string]string{"role": string(message.Role)})
	if message.Usage != nil {
		h.OnMetric("memory.tokens.total", float64(message.Usage.TotalTokens), nil)
	}
	return nil
}

// AfterCompaction records compaction metrics
func (h *MetricsHooks) AfterCompaction(ctx context.Context, record *types.CompactionRecord) error {
	tags := map[string]string{"reason": string(record.Reason)}

	h.OnMetric("memory.compaction.archived", float64(len(record.ArchivedMessageIDs)), tags)

	if record.TokensBefore != nil && record.TokensAfter != nil && *record.TokensBefore > 0 {
		h.OnMetric("memory.compaction.tokens_before", float64(*record.TokensBefore), tags)
		h.OnMetric("memory.compaction.tokens_after", float64(*record.TokensAfter), tags)
		h.OnMetric("memory.compaction.reduction_pct",
			float64(*record.TokensBefore-*record.TokensAfter)/float64(*record.TokensBefore)*100, tags)
	}

	return nil
}

// ToolCallRepaired records repair occurrences
func (h *MetricsHooks) ToolCallRepaired(ctx context.Context, sessionID string, toolCallID string) error {
	h.OnMetric("memory.repair.synthesized", 1, nil)
	return nil
}
