package archive

// State is one step in a request's lifecycle.
type State string

// Lifecycle states. Pending is initial; Posted and GivingUp are final.
const (
	StatePending        State = "pending"
	StateRunning        State = "running"
	StateSuccess        State = "success"
	StateError          State = "error"
	StateAlreadyBlocked State = "already_blocked"
	StateInvalidURL     State = "invalid_url"
	StatePosted         State = "posted"
	StateGivingUp       State = "giving_up"
)

// transitions is the full lifecycle table. Running back to Pending is the
// reclaim path for requests stranded in flight by a crash; Success back
// to Error covers verification fetch failures.
var transitions = map[State][]State{
	StatePending:        {StateInvalidURL, StateSuccess, StateRunning},
	StateRunning:        {StateSuccess, StateError, StatePending},
	StateSuccess:        {StateAlreadyBlocked, StateError, StatePosted, StateGivingUp},
	StateError:          {StateSuccess, StateError, StateAlreadyBlocked, StatePosted, StateGivingUp},
	StateAlreadyBlocked: {StatePosted, StateGivingUp},
	StateInvalidURL:     {StatePosted, StateGivingUp},
	StatePosted:         {},
	StateGivingUp:       {},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// States returns every known state.
func States() []State {
	all := make([]State, 0, len(transitions))
	for s := range transitions {
		all = append(all, s)
	}
	return all
}

// Replyable reports whether a request in state s still owes the requester
// a reply.
func (s State) Replyable() bool {
	switch s {
	case StateSuccess, StateError, StateAlreadyBlocked, StateInvalidURL:
		return true
	default:
		return false
	}
}

// Final reports whether no automatic transition leaves s.
func (s State) Final() bool {
	return len(transitions[s]) == 0
}

// SuccessFamilyStates lists the states purged on the success retention
// window. includeUnfinished adds Pending and Running to the sweep, which
// can delete a request still in flight, so it is off unless configured.
func SuccessFamilyStates(includeUnfinished bool) []State {
	states := []State{StatePosted, StateSuccess}
	if includeUnfinished {
		states = append(states, StatePending, StateRunning)
	}
	return states
}

// FailureFamilyStates lists the states purged on the failure retention
// window.
func FailureFamilyStates() []State {
	return []State{StateAlreadyBlocked, StateError, StateInvalidURL}
}
