package retention

// State is a phase of the sweeper's lifecycle.
type State int32

const (
	// StateIdle means Run has not been called yet.
	StateIdle State = iota

	// StateSleeping means the sweeper is waiting for the next interval.
	StateSleeping

	// StateSweeping means a cleanup is in progress.
	StateSweeping

	// StateStopped means the sweeper was cancelled.
	StateStopped
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSleeping:
		return "sleeping"
	case StateSweeping:
		return "sweeping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
