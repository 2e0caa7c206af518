package payment

import (
	"fmt"

	"github.com/mstgnz/academypay/provider"
)

// Status is a payment lifecycle status
type Status = provider.PaymentStatus

// Reason classifies a refused transition
type Reason string

const (
	ReasonInvalidEdge     Reason = "invalid_edge"
	ReasonAlreadyTerminal Reason = "already_terminal"
)

// Rejection describes why a transition was refused
type Rejection struct {
	Reason Reason `json:"reason"`
	From   Status `json:"from"`
	To     Status `json:"to"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s -> %s", r.Reason, r.From, r.To)
}

// Err maps the rejection to its sentinel error
func (r *Rejection) Err() error {
	if r == nil {
		return nil
	}
	switch r.Reason {
	case ReasonAlreadyTerminal:
		return fmt.Errorf("%w: %s -> %s", ErrAlreadyTerminal, r.From, r.To)
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidEdge, r.From, r.To)
	}
}

// Decision is the result of asking the state machine for a transition.
// Path holds every status passed through, ending with Status.
type Decision struct {
	Status    Status
	Path      []Status
	Rejection *Rejection
}

// Allowed reports whether the transition may be applied
func (d Decision) Allowed() bool {
	return d.Rejection == nil
}

// StateMachine validates payment status transitions. It holds no state
// beyond its edge table and is safe for concurrent use.
type StateMachine struct {
	edges map[Status][]Status
}

// NewStateMachine returns the payment lifecycle:
//
//	pending    -> processing | cancelled
//	processing -> succeeded | failed | cancelled
//	succeeded  -> refunded
func NewStateMachine() StateMachine {
	return StateMachine{edges: map[Status][]Status{
		provider.StatusPending:    {provider.StatusProcessing, provider.StatusCancelled},
		provider.StatusProcessing: {provider.StatusSucceeded, provider.StatusFailed, provider.StatusCancelled},
		provider.StatusSucceeded:  {provider.StatusRefunded},
	}}
}

// Transition decides whether current may move to requested. Gateways that
// never report processing may move pending straight to succeeded or
// failed; the path then records the implied processing step.
func (m StateMachine) Transition(current, requested Status) Decision {
	if m.hasEdge(current, requested) {
		return Decision{Status: requested, Path: []Status{requested}}
	}

	if current == provider.StatusPending && m.hasEdge(provider.StatusProcessing, requested) && requested != provider.StatusCancelled {
		return Decision{Status: requested, Path: []Status{provider.StatusProcessing, requested}}
	}

	reason := ReasonInvalidEdge
	if current.Terminal() {
		reason = ReasonAlreadyTerminal
	}
	return Decision{
		Status:    current,
		Rejection: &Rejection{Reason: reason, From: current, To: requested},
	}
}

// CanTransition reports whether Transition would allow the move
func (m StateMachine) CanTransition(current, requested Status) bool {
	return m.Transition(current, requested).Allowed()
}

func (m StateMachine) hasEdge(from, to Status) bool {
	for _, next := range m.edges[from] {
		if next == to {
			return true
		}
	}
	return false
}
