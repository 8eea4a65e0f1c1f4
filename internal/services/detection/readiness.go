package detection

import "fmt"

// State is the model readiness of the process
type State int

const (
	StateNotStarted State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a consistent view of readiness. Reason is set only when Failed.
type Snapshot struct {
	State  State  `json:"state"`
	Reason string `json:"error,omitempty"`
}

// UnavailableError is returned when a run asks for a detector that is not ready
type UnavailableError struct {
	State  State
	Reason string
}

func (e *UnavailableError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("detector %s: %s", e.State, e.Reason)
	}
	return fmt.Sprintf("detector %s", e.State)
}

// Retryable is true while the model may still become ready without operator action
func (e *UnavailableError) Retryable() bool {
	return e.State == StateLoading || e.State == StateNotStarted
}
