package registry

// terminalStatuses is the absorbing set from spec.md §3: once reached, a
// task only leaves it via an explicit force update.
var terminalStatuses = map[Status]bool{
	StatusSucceeded: true,
	StatusFailed:    true,
	StatusCancelled: true,
	StatusExpired:   true,
}

// IsTerminalStatus reports whether status is absorbing.
func IsTerminalStatus(status Status) bool {
	return terminalStatuses[status]
}

// validTransitions is the state machine from spec.md §4.1. requested and
// pending share one row because the spec lists them together.
var validTransitions = map[Status][]Status{
	StatusRequested: {StatusApproved, StatusQueued, StatusRunning, StatusBlocked, StatusCancelled, StatusFailed},
	StatusPending:   {StatusApproved, StatusQueued, StatusRunning, StatusBlocked, StatusCancelled, StatusFailed},
	StatusApproved:  {StatusQueued, StatusRunning, StatusBlocked, StatusCancelled, StatusFailed},
	StatusQueued:    {StatusQueued, StatusRunning, StatusBlocked, StatusCancelled, StatusFailed, StatusExpired},
	StatusRunning:   {StatusRunning, StatusSucceeded, StatusFailed, StatusBlocked, StatusCancelled, StatusExpired},
	StatusBlocked:   {StatusApproved, StatusQueued, StatusRunning, StatusSucceeded, StatusFailed, StatusCancelled, StatusExpired},
	// Terminal states accept no further transition without force.
	StatusSucceeded: {},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusExpired:   {},
}

// ValidateTransition reports whether moving a task from `from` to `to` is
// permitted by the state machine, ignoring force overrides.
func ValidateTransition(from, to Status) error {
	allowed, ok := validTransitions[from]
	if !ok {
		return errorf(ErrInvalidArgument, "unknown source status %q", from)
	}
	if !to.IsValid() {
		return errorf(ErrInvalidArgument, "unknown target status %q", to)
	}
	for _, candidate := range allowed {
		if candidate == to {
			return nil
		}
	}
	return errorf(ErrInvalidTransition, "invalid transition from %s to %s", from, to)
}
