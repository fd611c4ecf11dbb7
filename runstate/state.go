// Package runstate defines the lifecycle state machine for sub-task runs.
//
// A sub-task run is a child conversation launched from a parent session.
// Its status progresses through the machine until reaching a terminal
// state:
//
//	queued -> running          (runner starts the child session)
//	queued -> cancelled        (cancelled before start)
//	queued -> failed           (failed to start)
//	running -> completed       (child conversation finished)
//	running -> cancelling      (cancel requested)
//	running -> cancelled       (cancel applied immediately)
//	running -> failed          (error during execution)
//	cancelling -> cancelled    (cancel acknowledged)
//	cancelling -> completed    (run finished before the cancel landed)
//	cancelling -> failed       (error while cancelling)
//
// Terminal states (completed, cancelled, failed) cannot transition further.
//
// The memory engine treats run records as bookkeeping: irregular
// transitions are logged, never rejected, since the child session remains
// the source of truth for the conversation itself.
package runstate

import (
	"fmt"

	"github.com/youssefsiam38/agentmem/types"
)

// AllStatuses returns every valid run status.
func AllStatuses() []types.RunStatus {
	return []types.RunStatus{
		types.RunQueued,
		types.RunRunning,
		types.RunCancelling,
		types.RunCancelled,
		types.RunCompleted,
		types.RunFailed,
	}
}

// TerminalStatuses returns the statuses a run can never leave.
func TerminalStatuses() []types.RunStatus {
	return []types.RunStatus{
		types.RunCompleted,
		types.RunCancelled,
		types.RunFailed,
	}
}

// ActiveStatuses returns the statuses of runs still in flight.
func ActiveStatuses() []types.RunStatus {
	return []types.RunStatus{
		types.RunQueued,
		types.RunRunning,
		types.RunCancelling,
	}
}

// IsValid reports whether s is a known run status.
func IsValid(s types.RunStatus) bool {
	switch s {
	case types.RunQueued, types.RunRunning, types.RunCancelling,
		types.RunCancelled, types.RunCompleted, types.RunFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is a final status.
func IsTerminal(s types.RunStatus) bool {
	switch s {
	case types.RunCompleted, types.RunCancelled, types.RunFailed:
		return true
	default:
		return false
	}
}

// IsActive reports whether a run with status s is still in flight.
func IsActive(s types.RunStatus) bool {
	switch s {
	case types.RunQueued, types.RunRunning, types.RunCancelling:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from one status to another follows
// the machine. Terminal states never transition; a state never transitions
// to itself.
func CanTransition(from, to types.RunStatus) bool {
	if IsTerminal(from) || from == to {
		return false
	}

	switch from {
	case types.RunQueued:
		return to == types.RunRunning || to == types.RunCancelled || to == types.RunFailed
	case types.RunRunning:
		return to == types.RunCompleted || to == types.RunCancelling ||
			to == types.RunCancelled || to == types.RunFailed
	case types.RunCancelling:
		return to == types.RunCancelled || to == types.RunCompleted || to == types.RunFailed
	}

	return false
}

// Transition is one edge of the state machine.
type Transition struct {
	From types.RunStatus
	To   types.RunStatus
}

// Validate returns an error if the transition is not an edge of the machine.
func (t Transition) Validate() error {
	if !IsValid(t.From) {
		return fmt.Errorf("runstate: invalid source status %q", t.From)
	}
	if !IsValid(t.To) {
		return fmt.Errorf("runstate: invalid target status %q", t.To)
	}
	if !CanTransition(t.From, t.To) {
		return fmt.Errorf("runstate: invalid transition from %q to %q", t.From, t.To)
	}
	return nil
}

// ValidTransitions returns every edge of the state machine.
func ValidTransitions() []Transition {
	return []Transition{
		// From queued
		{From: types.RunQueued, To: types.RunRunning},
		{From: types.RunQueued, To: types.RunCancelled},
		{From: types.RunQueued, To: types.RunFailed},
		// From running
		{From: types.RunRunning, To: types.RunCompleted},
		{From: types.RunRunning, To: types.RunCancelling},
		{From: types.RunRunning, To: types.RunCancelled},
		{From: types.RunRunning, To: types.RunFailed},
		// From cancelling
		{From: types.RunCancelling, To: types.RunCancelled},
		{From: types.RunCancelling, To: types.RunCompleted},
		{From: types.RunCancelling, To: types.RunFailed},
	}
}
