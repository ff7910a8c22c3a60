package entity

import "fmt"

// Stage is the lifecycle status of an order.
type Stage string

const (
	StagePending   Stage = "pending"
	StageShipping  Stage = "shipping"
	StageCompleted Stage = "completed"
	StageCancelled Stage = "cancelled"
)

// transitions lists every stage change an order may go through.
// completed and cancelled are terminal.
var transitions = map[Stage][]Stage{
	StagePending:  {StageShipping, StageCompleted, StageCancelled},
	StageShipping: {StageCompleted, StageCancelled},
}

// ParseStage converts a raw value into a Stage.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown stage %q", ErrInvalidArgument, s)
	}
	return st, nil
}

// Valid reports whether s is one of the four known stages.
func (s Stage) Valid() bool {
	switch s {
	case StagePending, StageShipping, StageCompleted, StageCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Stage) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransitionTo reports whether the table allows s -> next.
func (s Stage) CanTransitionTo(next Stage) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CheckTransition returns nil when s -> next is allowed, or the error kind
// describing why it is not.
func (s Stage) CheckTransition(next Stage) error {
	if s.CanTransitionTo(next) {
		return nil
	}
	if s == StageCancelled {
		return ErrAlreadyCancelled
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
}
