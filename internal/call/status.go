package call

import "slices"

// Status is a call session lifecycle state.
type Status string

const (
	Initiated Status = "initiated"
	Ringing   Status = "ringing"
	Accepted  Status = "accepted"
	Rejected  Status = "rejected"
	Ended     Status = "ended"
	Missed    Status = "missed"
)

// validTransitions defines allowed lifecycle transitions. Rejected, Ended,
// and Missed are terminal.
var validTransitions = map[Status][]Status{
	Initiated: {Ringing, Accepted, Rejected, Missed, Ended},
	Ringing:   {Accepted, Rejected, Missed, Ended},
	Accepted:  {Ended},
}

// CanTransition reports whether from -> to is an allowed lifecycle move.
func CanTransition(from, to Status) bool {
	return slices.Contains(validTransitions[from], to)
}

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}
