package subscription

// transitions lists the allowed moves. Terminal states have no entry.
var transitions = map[RequestStatus][]RequestStatus{
	RequestPending: {RequestCompleted, RequestFailed, RequestCancelled},
}

// CanTransition reports whether a request may move from one status to another.
func CanTransition(from, to RequestStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outgoing transitions.
func IsTerminal(s RequestStatus) bool {
	return s.Valid() && len(transitions[s]) == 0
}

// checkTransition decides the outcome of a compare-and-set transition given
// the current status: apply it, report a repeat of the same transition, or
// refuse it.
func checkTransition(current, to RequestStatus) (apply bool, err error) {
	switch {
	case CanTransition(current, to):
		return true, nil
	case current == to:
		return false, nil
	default:
		return false, ErrInvalidTransition
	}
}
