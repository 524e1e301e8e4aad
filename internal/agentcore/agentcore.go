// Package agentcore wires together build detection, the shared-memory
// ring, and the inline hooks into the single attach/detach lifecycle the
// injected DLL runs through. The orchestration itself needs Windows
// (agentcore_windows.go); this file holds the shared constants and the
// state machine's pure transition rules so they can be tested without it.
package agentcore

import "fmt"

// RingCapacity is the size of the ring's data area.
const RingCapacity = 4 * 1024 * 1024

// MappingPrefix names the shared-memory segment; the full name is
// Local\<MappingPrefix>_<pid> (internal/shm.Name).
const MappingPrefix = "WowCapture"

// State is the agent's lifecycle state.
type State int

const (
	StateUnattached State = iota
	StateDetecting
	StateHooked
	StateReady
	StateDetaching
	StateDetached
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnattached:
		return "unattached"
	case StateDetecting:
		return "detecting"
	case StateHooked:
		return "hooked"
	case StateReady:
		return "ready"
	case StateDetaching:
		return "detaching"
	case StateDetached:
		return "detached"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned by nextState when attempting a
// transition the lifecycle doesn't allow, which should only happen on a
// programming error (e.g. calling Attach on an agent that is already
// attached).
type ErrInvalidTransition struct {
	From, To State
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("agentcore: invalid transition %s -> %s", e.From, e.To)
}

// validTransitions enumerates the lifecycle edges; anything else is a bug.
var validTransitions = map[State]map[State]bool{
	StateUnattached: {StateDetecting: true},
	StateDetecting:  {StateHooked: true, StateFailed: true},
	StateHooked:     {StateReady: true, StateFailed: true},
	StateReady:      {StateDetaching: true},
	StateDetaching:  {StateDetached: true},
	StateFailed:     {StateDetaching: true},
	StateDetached:   {StateDetecting: true}, // re-attach after a clean detach
}

func nextState(from, to State) error {
	if validTransitions[from][to] {
		return nil
	}
	return &ErrInvalidTransition{From: from, To: to}
}
