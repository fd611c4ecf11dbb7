// Package compaction provides context window management for agent conversations.
//
// When a conversation approaches the model's context window, the compactor
// folds the older part of the conversation into a structured summary while
// keeping the recent tail verbatim.
//
// # Token Accounting
//
// Two figures are computed per context snapshot: the accumulated
// usage.total_tokens across messages that carry usage, and a character-based
// estimate (~4 characters per token plus a small per-message overhead). The
// accumulated figure is trusted only while usage covers more than half the
// messages and no summary message exists; once a summary is present, earlier
// usage no longer describes the live context.
//
// # Partitioning
//
// Messages are partitioned into (system, pending, active). The nominal split
// keeps the last KeepLastN non-system messages active, then moves the
// boundary back to just after the last user message before it so the
// archived region ends on a user turn. Tool-call pairs are never split: a
// tool result kept active drags its issuing assistant message (and that
// assistant's other results) into the active region.
//
// # Summary Synthesis
//
// The pending region is serialized, truncated per message, and sent to the
// summarizer with a fixed eight-section compression prompt. A previous
// summary, when present, rides along in a marker block so continuity
// survives repeated compactions. Generation runs at low temperature.
//
// # Engine Integration
//
// When a Recorder is wired in, Compact persists the transition through it:
// the engine rebuilds the context as [system, summary, ...active], stamps
// the archived history entries, and appends a compaction record.
package compaction
