package kyc

import (
	"fmt"
	"strings"
)

// EventKind names a state machine input.
type EventKind string

const (
	EventSubmit EventKind = "submit"
	EventDecide EventKind = "decide"
)

// Event is one input to the state machine.
type Event struct {
	Kind    EventKind
	Outcome Outcome
	Reason  string
}

// Submit is the event produced by a document submission.
func Submit() Event { return Event{Kind: EventSubmit} }

// Decide is the event produced by the review authority.
func Decide(outcome Outcome, reason string) Event {
	return Event{Kind: EventDecide, Outcome: outcome, Reason: reason}
}

// Apply runs one transition. On error the receiver is returned unchanged.
//
//	NONE     --submit-->             PENDING
//	REJECTED --submit-->             PENDING (reason cleared)
//	PENDING  --decide(VERIFIED)-->   VERIFIED
//	PENDING  --decide(REJECTED,r)--> REJECTED(r)
func (s State) Apply(ev Event) (State, error) {
	cur := s.Status
	if cur == "" {
		cur = StatusNone
	}
	switch ev.Kind {
	case EventSubmit:
		switch cur {
		case StatusNone, StatusRejected:
			return State{Status: StatusPending}, nil
		case StatusPending:
			return s, ErrAlreadyPending
		case StatusVerified:
			return s, ErrAlreadyVerified
		default:
			return s, fmt.Errorf("%w: %q", ErrInvalidStatus, cur)
		}
	case EventDecide:
		switch cur {
		case StatusPending:
		case StatusVerified:
			return s, ErrAlreadyVerified
		case StatusNone, StatusRejected:
			return s, ErrNotPending
		default:
			return s, fmt.Errorf("%w: %q", ErrInvalidStatus, cur)
		}
		switch ev.Outcome {
		case OutcomeVerified:
			return State{Status: StatusVerified}, nil
		case OutcomeRejected:
			reason := strings.TrimSpace(ev.Reason)
			if reason == "" {
				return s, ErrReasonRequired
			}
			return State{Status: StatusRejected, RejectionReason: reason}, nil
		default:
			return s, ErrInvalidOutcome
		}
	default:
		return s, fmt.Errorf("kyc: unknown event %q", ev.Kind)
	}
}

// CanSubmit reports whether a new submission is accepted from this state.
func (s State) CanSubmit() bool {
	switch s.Status {
	case "", StatusNone, StatusRejected:
		return true
	default:
		return false
	}
}

// Transition applies ev to a view's state. The view is returned unchanged on error.
func Transition(v CaseView, ev Event) (CaseView, error) {
	next, err := v.State.Apply(ev)
	if err != nil {
		return v, err
	}
	v.State = next
	return v, nil
}
