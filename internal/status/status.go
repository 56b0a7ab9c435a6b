package status

import "errors"

var (
	ErrValidation      = errors.New("validation: invalid input")
	ErrEventNotFound   = errors.New("event: event not found")
	ErrTicketNotFound  = errors.New("ticket: ticket not found")
	ErrSessionExpired  = errors.New("session: session expired")
	ErrSoldOut         = errors.New("inventory: sold out")
	ErrPersistence     = errors.New("store: persistence failure")
	ErrReminderRunning = errors.New("notification: reminder run already in progress")

	ErrPaymentNotComplete = errors.New("payment: payment not complete")
	ErrInvalidMetadata    = errors.New("payment: invalid checkout metadata")
	ErrCheckoutNotFound   = errors.New("payment: checkout session not found")
	ErrExternalService    = errors.New("external: service call failed")
	ErrCircuitOpen        = errors.New("external: circuit breaker is open")

	// ErrCapacityConflict marks a payment captured by the gateway for which no
	// ticket could be issued. It always needs manual reconciliation.
	ErrCapacityConflict = errors.New("payment: paid but capacity exhausted")
)
