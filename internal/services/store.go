package services

import (
	"context"

	"partyflow/models"
)

// EventStore is the persistence used by the ticketing services.
// *store.Store implements it.
type EventStore interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEvents(ctx context.Context) ([]models.Event, error)
	ListEventsOn(ctx context.Context, day string) ([]models.Event, error)
	CountTickets(ctx context.Context, eventID string) (int, error)
	IssueTicket(ctx context.Context, d models.TicketDraft) (*models.Ticket, bool, error)
	FindTicketByPaymentRef(ctx context.Context, ref string) (*models.Ticket, error)
	ListTicketOwners(ctx context.Context, eventID string) ([]string, error)
	RecordReconciliation(ctx context.Context, rec models.Reconciliation) (*models.Reconciliation, error)
}
