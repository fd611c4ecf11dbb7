package streaming

import (
	"github.com/anthropics/anthropic-sdk-go"

	"github.com/youssefsiam38/agentmem/types"
)

// Recorder wires an accumulator to a message sink, typically a session's
// AddMessage. Each event that changes the visible message emits a fresh
// snapshot under the same message id, so the sink sees one message
// converging on its final form rather than a sequence of partials.
type Recorder struct {
	acc  *Accumulator
	sink func(types.Message)
}

// NewRecorder creates a recorder emitting snapshots into sink.
func NewRecorder(sink func(types.Message)) *Recorder {
	return &Recorder{
		acc:  NewAccumulator(),
		sink: sink,
	}
}

// Accumulator returns the underlying accumulator.
func (r *Recorder) Accumulator() *Accumulator {
	return r.acc
}

// OnEvent folds one event and emits a snapshot when it changed anything.
func (r *Recorder) OnEvent(event anthropic.MessageStreamEventUnion) {
	r.acc.ProcessEvent(event)
	if changesSnapshot(event) {
		r.sink(r.acc.Snapshot())
	}
}

// Final returns the completed message snapshot.
func (r *Recorder) Final() types.Message {
	return r.acc.Snapshot()
}
