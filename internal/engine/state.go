// Package engine implements the debugger engine: the protocol state
// machine, the Stopped-event follow-up algorithm, breakpoint application,
// and the command interface external callers use to drive a session
// (spec §4.4-§4.7). It is grounded on the teacher's
// internal/core/debugger/dap.go Client, generalized from a single
// monolithic struct with public event callbacks into the dispatcher +
// engine + publisher split spec §2 lays out.
package engine

import (
	"github.com/google/go-dap"

	"github.com/dapclient/core/internal/breakpoints"
)

// State is one node of the state machine in spec §4.5.
type State int

const (
	Uninitialised State = iota
	Initialising
	Configuring
	Running
	Paused
	ScopeChange
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialised:
		return "uninitialised"
	case Initialising:
		return "initialising"
	case Configuring:
		return "configuring"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case ScopeChange:
		return "scope_change"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ProgramState is the published, discriminated-union snapshot spec §6's
// subscription interface describes. Fields outside of State's relevant
// phase are left at their zero value; Paused and ScopeChange are the only
// states that populate Stack/Scopes/Variables.
type ProgramState struct {
	State State

	// CurrentThread is the thread id the last Stopped or Continued event
	// reported.
	// Meaningful in Paused, ScopeChange, and Running (after a resume that
	// preserves the last-known thread for the next command).
	CurrentThread int

	// Stack is the full StackTrace result for CurrentThread (spec §4.5
	// step 2: "no artificial level cap, one request not two").
	Stack []dap.StackFrame

	// CurrentFrame is the frame id Scopes/Variables below were fetched
	// for: the top frame after a Stopped event, or whatever frame
	// change_scope last requested.
	CurrentFrame int

	// Scopes holds the scopes of CurrentFrame only (spec's "top frame
	// only" resolution of the Scopes/Variables fan-out question).
	Scopes []dap.Scope

	// Variables maps a scope's VariablesReference to its fetched
	// variable list. Populated only for the scopes in Scopes above.
	Variables map[int][]dap.Variable

	// Breakpoints is a snapshot of the registry at publish time, so a
	// consumer can correlate the paused location against breakpoint
	// state without a separate round trip.
	Breakpoints []*breakpoints.Breakpoint

	// TerminatedReason carries a short diagnostic when State ==
	// Terminated and the cause wasn't a clean adapter-initiated exit
	// (e.g. a transport failure). Empty on a normal Terminated/Exited
	// event.
	TerminatedReason string
}
