package models

import "fmt"

// PositionState represents the lifecycle state of a monitored position.
type PositionState string

const (
	// StateActive means the trailing-stop monitor owns and polls the position.
	StateActive PositionState = "active"
	// StateClosed is terminal: the exit decision fired and polling stopped.
	StateClosed PositionState = "closed"
)

// Transition conditions.
const (
	ConditionStopTriggered = "stop_triggered"
)

// StateTransition defines a valid state transition.
type StateTransition struct {
	From      PositionState
	To        PositionState
	Condition string
}

// ValidTransitions is the full transition table. The machine is deliberately
// small: a position is created active and closes exactly once.
var ValidTransitions = []StateTransition{
	{StateActive, StateClosed, ConditionStopTriggered},
}

// CanTransition reports whether from -> to is allowed under condition.
func CanTransition(from, to PositionState, condition string) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to && t.Condition == condition {
			return true
		}
	}
	return false
}

// Transition validates and applies a state change, returning an error for
// anything outside the transition table.
func Transition(current PositionState, to PositionState, condition string) (PositionState, error) {
	if !CanTransition(current, to, condition) {
		return current, fmt.Errorf("invalid transition %s -> %s (condition %q)", current, to, condition)
	}
	return to, nil
}
