package upload

import "fmt"

// State is where a single pair is in its upload lifecycle.
type State string

const (
	StatePending    State = "PENDING"
	StateAttempting State = "ATTEMPTING"
	StateSucceeded  State = "SUCCEEDED"
	StateFailed     State = "FAILED"
)

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// tracker follows one pair through Pending -> Attempting(n) -> terminal.
// It is owned by a single upload task and is not safe for concurrent use.
type tracker struct {
	state    State
	attempt  int
	maxTries int
}

func newTracker(maxTries int) *tracker {
	return &tracker{state: StatePending, maxTries: maxTries}
}

// begin moves into Attempting(n+1).
func (t *tracker) begin() error {
	switch t.state {
	case StatePending:
	case StateAttempting:
		if t.attempt >= t.maxTries {
			return fmt.Errorf("attempt %d exceeds limit of %d", t.attempt+1, t.maxTries)
		}
	default:
		return fmt.Errorf("disallowed transition: %s -> %s", t.state, StateAttempting)
	}
	t.state = StateAttempting
	t.attempt++
	return nil
}

func (t *tracker) finish(ok bool) error {
	if t.state != StateAttempting && t.state != StatePending {
		return fmt.Errorf("disallowed transition: %s -> terminal", t.state)
	}
	if ok {
		t.state = StateSucceeded
	} else {
		t.state = StateFailed
	}
	return nil
}
