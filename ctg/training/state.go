package training

import "fmt"

// State tracks where the agent is in its lifecycle. A fresh agent is
// uninitialized until Reset wires its collaborators; each epoch then
// moves through a training phase and a validation phase before returning
// to ready, and the agent parks in done after the final trial.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateTrainingEpoch
	StateValidatingEpoch
	StateDone
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateReady:
		return "READY"
	case StateTrainingEpoch:
		return "TRAINING_EPOCH"
	case StateValidatingEpoch:
		return "VALIDATING_EPOCH"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// canTransition reports whether moving from s to next is legal. Reset is
// re-entrant, so ready and done both accept a fresh reset. Validation may
// start from ready to allow standalone evaluation passes.
func (s State) canTransition(next State) bool {
	switch s {
	case StateUninitialized:
		return next == StateReady
	case StateReady:
		return next == StateReady ||
			next == StateTrainingEpoch ||
			next == StateValidatingEpoch ||
			next == StateDone
	case StateTrainingEpoch:
		return next == StateValidatingEpoch
	case StateValidatingEpoch:
		return next == StateReady
	case StateDone:
		return next == StateReady
	}
	return false
}
