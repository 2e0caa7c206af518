package payment

import "errors"

var (
	// ErrInvalidEdge means the requested transition is not in the lifecycle graph
	ErrInvalidEdge = errors.New("invalid status transition")

	// ErrAlreadyTerminal means the payment is final and cannot move
	ErrAlreadyTerminal = errors.New("payment already in terminal status")

	// ErrSuperseded means another writer applied a change first
	ErrSuperseded = errors.New("payment update superseded")

	// ErrAmountMismatch means the gateway confirmed a different amount
	ErrAmountMismatch = errors.New("confirmed amount does not match payment amount")

	ErrPaymentNotFound = errors.New("payment not found")

	// ErrTenantMismatch means a callback names a tenant that does not own the payment
	ErrTenantMismatch = errors.New("callback tenant does not own payment")

	ErrInvalidRequest = errors.New("invalid payment request")
)
