// Package agentmem provides a persistent conversation memory engine for Go.
//
// AgentMem keeps the full record of an agent conversation, the mutable
// context window sent to the model plus an append-only history that never
// loses a message, behind one engine with pluggable storage: JSON files
// with crash recovery, any database/sql backend, or a hybrid of both.
//
// # Key Features
//
//   - Dual-view memory: every context mutation is mirrored into an append-only history
//   - Automatic context compaction with summary folding and token-threshold triggers
//   - Tool-call repair on resume: interrupted tool calls get synthesized stub results
//   - Streaming-friendly upserts: re-adding a message with the same id replaces it in place
//   - Task and sub-task run tracking alongside the conversation
//   - Hooks for observability at every lifecycle point
//
// # Quick Start
//
// Create an engine and a session:
//
//	engine, err := agentmem.New(agentmem.Config{
//	    Storage: agentmem.StorageConfig{Type: "file", BasePath: "./agent-memory"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := engine.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close(ctx)
//
//	session := agentmem.NewSession(engine, "chat-1", "You are a helpful assistant")
//	if err := session.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	session.AddMessage(types.NewUserMessage("Hello!"))
//	session.AddMessage(types.NewAssistantMessage("Hi! How can I help?"))
//	if err := session.Sync(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Reopening the engine with the same storage restores every session as it
// was, including partial assistant turns from an interrupted stream.
//
// # Streaming
//
// Session.AddMessage upserts by message id, so successive snapshots of the
// same assistant turn converge on the final message:
//
//	recorder := streaming.NewRecorder(session.AddMessage)
//	for stream.Next() {
//	    recorder.OnEvent(stream.Current())
//	}
//	final := recorder.Final()
//
// # Context Compaction
//
// Wire a summarizer and the engine compacts automatically once the context
// crosses the trigger threshold:
//
//	client := anthropic.NewClient()
//	engine, _ := agentmem.New(cfg,
//	    agentmem.WithSummarizer(compaction.NewAnthropicSummarizer(&client, "claude-3-5-haiku-20241022", 2048)),
//	    agentmem.WithModel("claude-sonnet-4-5-20250929"),
//	    agentmem.WithKeepLastMessages(10),
//	)
//
//	// Before each LLM call: repair interrupted tool calls, then compact if
//	// the context is past the threshold.
//	result, _ := session.CompactBeforeLLMCall(ctx)
//
// Manual compaction works without a trigger:
//
//	record, _ := engine.CompactContext(ctx, sessionID, &agentmem.CompactOptions{
//	    Reason: types.CompactionReasonManual,
//	})
//
// # Storage Backends
//
// The document backend stores each aggregate as {id, payload} rows through
// database/sql. Blank-import a driver to register it:
//
//	import _ "github.com/youssefsiam38/agentmem/storage/document/sqlitedriver"
//
//	engine, _ := agentmem.New(agentmem.Config{
//	    Storage: agentmem.StorageConfig{
//	        Type:     "document",
//	        Document: document.Config{ConnectionString: "memory.db"},
//	    },
//	})
//
// PostgreSQL works the same way through the pgxdriver or postgresdriver
// packages. The hybrid backend routes each aggregate to a short-, mid-, or
// long-term tier, and each tier can be file- or document-backed.
//
// # History
//
// Every message ever added stays queryable, including messages removed from
// the context and messages archived by compaction:
//
//	history, _ := engine.GetFullHistory(sessionID, nil, nil)
//	records, _ := engine.GetCompactionRecords(sessionID)
package agentmem
