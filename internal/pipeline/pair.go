package pipeline

import "fmt"

// PairStatus is the lifecycle state of a (subset, pipeline) pair.
type PairStatus string

// Pair lifecycle states.
const (
	PairPending   PairStatus = "pending"
	PairRunning   PairStatus = "running"
	PairFailed    PairStatus = "failed"
	PairCompleted PairStatus = "completed"
)

// IsTerminal reports whether s is a final state.
func (s PairStatus) IsTerminal() bool {
	return s == PairFailed || s == PairCompleted
}

// pairState tracks one pair. While running, cursor is the index of the
// current stage in the pair's stage list.
type pairState struct {
	status PairStatus
	cursor int
}

func newPairState() *pairState {
	return &pairState{status: PairPending}
}

// transition moves the pair to next. A running -> running transition advances
// the cursor to the next stage.
func (p *pairState) transition(next PairStatus) error {
	if !allowedTransition(p.status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.status, next)
	}
	if p.status == PairRunning && next == PairRunning {
		p.cursor++
	}
	p.status = next
	return nil
}

func allowedTransition(from, to PairStatus) bool {
	switch from {
	case PairPending:
		return to == PairRunning
	case PairRunning:
		return to == PairRunning || to == PairFailed || to == PairCompleted
	default:
		return false
	}
}
