package core

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateError    State = "error"
)

// State is the lifecycle state of a Server.
//
//	stopped -> starting -> running -> stopping -> stopped
//
// error is entered from starting, running or stopping on a fatal fault
// and is left only through Stop (or Restart, which stops first).
type State string

// canStart reports whether Start is a valid transition from s.
func (s State) canStart() bool {
	return s == StateStopped
}

// canStop reports whether Stop is a valid transition from s.
func (s State) canStop() bool {
	return s == StateRunning || s == StateError
}

func (s State) String() string {
	return string(s)
}
