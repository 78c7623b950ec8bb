package reconcile

import (
	"errors"
	"time"
)

// State is the tri-state of a reconciliation.
type State int

const (
	Pending State = iota
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is Succeeded or Failed.
func (s State) Terminal() bool { return s == Succeeded || s == Failed }

// Reason classifies a Failed outcome.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonMissingParameter Reason = "missing_parameter"
	ReasonBackendRejected  Reason = "backend_rejected"
	ReasonNetworkError     Reason = "network_error"
)

// Outcome is the result of one reconciliation. Detail is set on
// Succeeded; Reason and Message on Failed.
type Outcome struct {
	State   State
	Detail  string
	Reason  Reason
	Message string
}

// Verdict is what a backend answers about an external action.
type Verdict struct {
	Success bool   `json:"success"`
	Payload string `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Navigation is a forward navigation the caller must perform. A zero
// Delay means navigate immediately.
type Navigation struct {
	Target string
	Delay  time.Duration
}

// Event drives the state machine.
type Event int

const (
	EventMissingParameter Event = iota
	EventVerified
	EventRejected
	EventErrored
)

var (
	// ErrTerminal is returned when an event is applied to a terminal state.
	ErrTerminal = errors.New("reconcile: outcome already terminal")
	// ErrDiscarded is returned when the caller went away before the
	// verdict arrived. Nothing was written and no navigation is due.
	ErrDiscarded = errors.New("reconcile: outcome discarded after cancellation")
	// ErrUnmounted is returned by a closed Mount.
	ErrUnmounted = errors.New("reconcile: mount closed")
)

// Next applies ev to the current state. Only Pending accepts events.
func Next(cur State, ev Event) (State, Reason, error) {
	if cur != Pending {
		return cur, ReasonNone, ErrTerminal
	}
	switch ev {
	case EventVerified:
		return Succeeded, ReasonNone, nil
	case EventMissingParameter:
		return Failed, ReasonMissingParameter, nil
	case EventRejected:
		return Failed, ReasonBackendRejected, nil
	default:
		return Failed, ReasonNetworkError, nil
	}
}
