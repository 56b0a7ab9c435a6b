package services

import (
	"context"
	"errors"

	"partyflow/internal/status"
	"partyflow/models"
	"partyflow/monitoring"
	"partyflow/utils"
)

// InventoryGuard derives remaining capacity and decides whether a sale may
// happen. Only Issue creates state.
type InventoryGuard struct {
	store EventStore
	locks *utils.KeyedMutex
}

func NewInventoryGuard(store EventStore) *InventoryGuard {
	return &InventoryGuard{
		store: store,
		locks: utils.NewKeyedMutex(),
	}
}

func (g *InventoryGuard) Remaining(ctx context.Context, event *models.Event) (int, error) {
	sold, err := g.store.CountTickets(ctx, event.ID)
	if err != nil {
		return 0, err
	}
	return max(event.TotalCapacity-sold, 0), nil
}

// Authorize is the advisory check made before sending a buyer to the
// gateway. The answer can be stale by the time the payment is confirmed.
func (g *InventoryGuard) Authorize(ctx context.Context, eventID string) (*models.Event, error) {
	event, err := g.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	remaining, err := g.Remaining(ctx, event)
	if err != nil {
		return nil, err
	}
	if remaining == 0 {
		return event, status.ErrSoldOut
	}
	return event, nil
}

// Issue is the authoritative sale. Issues for one event are serialized in
// process and the store checks capacity and inserts in one transaction.
func (g *InventoryGuard) Issue(ctx context.Context, d models.TicketDraft) (*models.Ticket, bool, error) {
	unlock := g.locks.Lock(d.EventID)
	defer unlock()

	ticket, duplicate, err := g.store.IssueTicket(ctx, d)
	switch {
	case err == nil && !duplicate:
		monitoring.TrackTicketIssued(d.EventID)
	case errors.Is(err, status.ErrSoldOut):
		monitoring.TrackIssueDenied("sold_out")
	case errors.Is(err, status.ErrEventNotFound):
		monitoring.TrackIssueDenied("event_not_found")
	}
	return ticket, duplicate, err
}

// ListEventListings returns every event with its remaining capacity.
func (g *InventoryGuard) ListEventListings(ctx context.Context) ([]models.EventListing, error) {
	events, err := g.store.ListEvents(ctx)
	if err != nil {
		return nil, err
	}

	listings := make([]models.EventListing, 0, len(events))
	for i := range events {
		remaining, err := g.Remaining(ctx, &events[i])
		if err != nil {
			return nil, err
		}
		listings = append(listings, models.EventListing{Event: events[i], Remaining: remaining})
	}
	return listings, nil
}
