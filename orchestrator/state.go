package orchestrator

// State is a phase of the cycle state machine.
type State int32

const (
	Idle State = iota
	LoadingSnapshot
	Searching
	Ranking
	Optimizing
	Publishing
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case LoadingSnapshot:
		return "loading_snapshot"
	case Searching:
		return "searching"
	case Ranking:
		return "ranking"
	case Optimizing:
		return "optimizing"
	case Publishing:
		return "publishing"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}
