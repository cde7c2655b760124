package camera

// State is the lifecycle position of the Controller.
type State int

const (
	StateIdle State = iota
	StateOpening
	StateConfiguring
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateConfiguring:
		return "configuring"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// StateListener observes controller transitions. err is set when the
// transition was caused by a failure.
type StateListener func(s State, err error)
