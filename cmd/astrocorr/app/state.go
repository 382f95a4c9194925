package app

// State is a pipeline stage
type State string

const (
	StateInit           State = "INIT"
	StateDecoding       State = "DECODING"
	StateContainerizing State = "CONTAINERIZING"
	StateSolving        State = "SOLVING"
	StateTransformed    State = "TRANSFORMED"
	StateOffsetComputed State = "OFFSET_COMPUTED"
	StateFailed         State = "FAILED"
)

// allowed successors of each state; FAILED is reachable from every non-terminal state
var transitions = map[State][]State{
	StateInit:           {StateDecoding, StateSolving},
	StateDecoding:       {StateContainerizing},
	StateContainerizing: {StateSolving},
	StateSolving:        {StateTransformed},
	StateTransformed:    {StateOffsetComputed},
}

func (s State) Terminal() bool {
	return s == StateOffsetComputed || s == StateFailed
}

func (s State) CanTransition(to State) bool {
	if s.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
