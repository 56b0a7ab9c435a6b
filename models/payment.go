package models

import (
	"github.com/shopspring/decimal"
)

// Metadata keys attached to a gateway checkout and echoed back at confirmation.
const (
	MetaEventID   = "event_id"
	MetaOwnerID   = "owner_id"
	MetaOwnerName = "owner_name"
	MetaContact   = "contact"
)

type CheckoutRequest struct {
	EventID   string `json:"event_id"`
	OwnerID   string `json:"user_id"`
	OwnerName string `json:"user_name"`
	Contact   string `json:"phone_number"`
}

// Metadata returns the correlation fields the gateway round-trips.
func (r CheckoutRequest) Metadata() map[string]string {
	return map[string]string{
		MetaEventID:   r.EventID,
		MetaOwnerID:   r.OwnerID,
		MetaOwnerName: r.OwnerName,
		MetaContact:   r.Contact,
	}
}

type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentNoneDue PaymentStatus = "no_payment_required"
	PaymentExpired PaymentStatus = "expired"
	PaymentUnknown PaymentStatus = "unknown"
)

type CheckoutSession struct {
	Ref      string            `json:"ref"`
	URL      string            `json:"url"`
	Status   PaymentStatus     `json:"status"`
	Amount   decimal.Decimal   `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

type ConfirmResult struct {
	Ticket    *Ticket `json:"ticket"`
	Event     *Event  `json:"event,omitempty"`
	Duplicate bool    `json:"duplicate"`
}
