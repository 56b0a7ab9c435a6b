package models

import (
	"time"
)

type Ticket struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	OwnerID     string    `json:"owner_id"`
	OwnerName   string    `json:"owner_name"`
	Contact     string    `json:"contact"`
	PaymentRef  string    `json:"payment_ref,omitempty"`
	PurchasedAt time.Time `json:"purchase_time"`
}

// TicketDraft carries the fields needed to issue a ticket.
type TicketDraft struct {
	EventID    string
	OwnerID    string
	OwnerName  string
	Contact    string
	PaymentRef string
}

// OwnedTicket is a ticket joined with the event it belongs to.
type OwnedTicket struct {
	ID            string `db:"id" json:"id"`
	EventID       string `db:"event_id" json:"event_id"`
	EventName     string `db:"event_name" json:"event_name"`
	EventDate     string `db:"event_date" json:"event_date"`
	EventLocation string `db:"event_location" json:"event_location"`
	OwnerName     string `db:"owner_name" json:"owner_name"`
	Contact       string `db:"contact" json:"contact"`
	PurchasedAt   string `db:"created" json:"purchase_time"`
}

// Reconciliation records a payment captured by the gateway that could not be
// turned into a ticket.
type Reconciliation struct {
	ID         string `json:"id"`
	PaymentRef string `json:"payment_ref"`
	EventID    string `json:"event_id"`
	OwnerID    string `json:"owner_id"`
	OwnerName  string `json:"owner_name"`
	Contact    string `json:"contact"`
	Amount     string `json:"amount"`
	Reason     string `json:"reason"`
	Status     string `json:"status"` // open, resolved
}
