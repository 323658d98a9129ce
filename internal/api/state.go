package api

// State is the lifecycle state of a managed MCP server.
type State string

const (
	// StatePending means the cluster objects were requested but the workload
	// has not been observed running yet.
	StatePending State = "Pending"
	// StateWaiting means the pod is running but not yet passing readiness.
	StateWaiting State = "Waiting"
	// StateReady means the endpoint is resolvable and accepts connections.
	StateReady State = "Ready"
	// StateRunning means the endpoint has been handed to a caller.
	StateRunning State = "Running"
	// StateTerminating means a delete is in progress.
	StateTerminating State = "Terminating"
	// StateDeleted means both cluster objects are confirmed gone.
	StateDeleted State = "Deleted"
	// StateFailed means the workload failed or could not be created.
	StateFailed State = "Failed"
)

var transitions = map[State][]State{
	StatePending:     {StateWaiting, StateReady, StateTerminating, StateFailed},
	StateWaiting:     {StateReady, StateTerminating, StateFailed},
	StateReady:       {StateRunning, StateTerminating, StateFailed},
	StateRunning:     {StateTerminating, StateFailed},
	StateTerminating: {StateDeleted},
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateDeleted || s == StateFailed
}

// IsReady reports whether an endpoint can be resolved in this state.
func (s State) IsReady() bool {
	return s == StateReady || s == StateRunning
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// rank orders the forward progression used to reject regressions.
func (s State) rank() int {
	switch s {
	case StatePending:
		return 0
	case StateWaiting:
		return 1
	case StateReady:
		return 2
	case StateRunning:
		return 3
	case StateTerminating:
		return 4
	case StateDeleted, StateFailed:
		return 5
	default:
		return -1
	}
}

// Precedes reports whether s comes strictly before other in the lifecycle.
func (s State) Precedes(other State) bool {
	return s.rank() < other.rank()
}
