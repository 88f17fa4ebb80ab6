package pipeline

type State int

const (
	StateReceived State = iota
	StateStoring
	StateExtracting
	StateMerging
	StateEnriching
	StatePersisting
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateReceived:   "received",
	StateStoring:    "storing",
	StateExtracting: "extracting",
	StateMerging:    "merging",
	StateEnriching:  "enriching",
	StatePersisting: "persisting",
	StateDone:       "done",
	StateFailed:     "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
