package models

// State is a transaction's position in the consensus state graph.
type State string

const (
	StateInitiated State = "INITIATED"
	StateCreated   State = "CREATED"
	StateSent      State = "SENT"
	StateReceived  State = "RECEIVED"
	StateValidated State = "VALIDATED"
	StateDisputed  State = "DISPUTED"
	StateEscalated State = "ESCALATED"
	StateCancelled State = "CANCELLED"
	StateResolved  State = "RESOLVED"
)

// edges lists the legal forward transitions. ESCALATED may additionally
// return to the state it was escalated from (see CanTransition).
var edges = map[State][]State{
	StateInitiated: {StateCreated, StateEscalated},
	StateCreated:   {StateSent, StateEscalated},
	StateSent:      {StateReceived, StateDisputed, StateEscalated},
	StateReceived:  {StateValidated, StateDisputed, StateEscalated},
	StateDisputed:  {StateResolved, StateCancelled, StateEscalated},
	StateEscalated: {StateResolved, StateCancelled},
}

// TerminalStates are absorbing.
var TerminalStates = []State{StateValidated, StateCancelled, StateResolved}

func (s State) String() string { return string(s) }

func (s State) IsTerminal() bool {
	switch s {
	case StateValidated, StateCancelled, StateResolved:
		return true
	}
	return false
}

func (s State) IsValid() bool {
	switch s {
	case StateInitiated, StateCreated, StateSent, StateReceived, StateValidated,
		StateDisputed, StateEscalated, StateCancelled, StateResolved:
		return true
	}
	return false
}

// ParseState validates a state name.
func ParseState(v string) (State, bool) {
	s := State(v)
	return s, s.IsValid()
}

// CanTransition reports whether from→to is an edge of the graph. escalatedFrom
// is the state recorded when the transaction entered ESCALATED; it makes the
// reinstate edge legal.
func CanTransition(from, to, escalatedFrom State) bool {
	if from == StateEscalated && escalatedFrom != "" && to == escalatedFrom {
		return true
	}
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}
