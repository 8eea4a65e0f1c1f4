package pipeline

// State of a run. Transitions only move forward; Failed is reachable from any
// state before Completed.
type State int

const (
	StateIdle State = iota
	StateProbing
	StateRunning
	StateFinalizing
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProbing:
		return "probing"
	case StateRunning:
		return "running"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether the run has ended
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}
