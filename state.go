package cartflow

// Status represents the status of a checkout attempt
type Status string

const (
	// StatusIdle indicates no checkout attempt is active
	StatusIdle Status = "idle"
	// StatusValidating indicates field validation is running
	StatusValidating Status = "validating"
	// StatusCreatingSession indicates the backend session call is in flight
	StatusCreatingSession Status = "creating_session"
	// StatusRedirecting indicates the buyer is being handed off to a hosted payment page
	StatusRedirecting Status = "redirecting"
	// StatusSuccess indicates the checkout attempt completed successfully
	StatusSuccess Status = "success"
	// StatusError indicates the checkout attempt failed
	StatusError Status = "error"
)

// validTransitions defines valid state transitions for checkout attempts.
// Success and error are terminal for the attempt; a new Submit or a Reset
// starts the next one.
var validTransitions = map[Status][]Status{
	StatusIdle: {
		StatusValidating,
		StatusError,
	},
	StatusValidating: {
		StatusCreatingSession,
		StatusError,
	},
	StatusCreatingSession: {
		StatusRedirecting,
		StatusSuccess,
		StatusError,
	},
	StatusRedirecting: {
		StatusSuccess,
		StatusError,
		StatusIdle,
	},
	StatusSuccess: {
		StatusIdle,
		StatusValidating,
	},
	StatusError: {
		StatusIdle,
		StatusValidating,
	},
}

// ValidateTransition checks if a checkout state transition is valid
func ValidateTransition(from, to Status) bool {
	validTargets, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the status ends the current attempt.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusError
}
