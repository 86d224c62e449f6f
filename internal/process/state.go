package process

import "fmt"

// State is the lifecycle state of a simulated process.
//
// State Machine:
// New -> Ready -> Running <-> Ready -> Terminated
//
// StateWaiting is part of the enumeration but nothing transitions into it:
// the kernel has no blocking I/O model.
type State int32

const (
	StateNew State = iota
	StateReady
	StateRunning
	StateWaiting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ParseState is the inverse of String.
func ParseState(s string) (State, error) {
	switch s {
	case "new":
		return StateNew, nil
	case "ready":
		return StateReady, nil
	case "running":
		return StateRunning, nil
	case "waiting":
		return StateWaiting, nil
	case "terminated":
		return StateTerminated, nil
	default:
		return 0, fmt.Errorf("unknown process state %q", s)
	}
}

// MarshalText lets states render by name in JSON and YAML output.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
// No edge leads into StateWaiting.
func CanTransition(from, to State) bool {
	switch from {
	case StateNew:
		return to == StateReady
	case StateReady:
		return to == StateRunning || to == StateTerminated
	case StateRunning:
		return to == StateReady || to == StateTerminated
	default:
		return false
	}
}
