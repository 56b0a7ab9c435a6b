package handlers

import (
	"context"
	"net/http"
	"strings"

	"partyflow/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type EventLister interface {
	ListEventListings(ctx context.Context) ([]models.EventListing, error)
}

type TicketLister interface {
	ListTicketsForOwner(ctx context.Context, ownerID string) ([]models.OwnedTicket, error)
}

type EventHandler struct {
	events  EventLister
	tickets TicketLister
}

func NewEventHandler(events EventLister, tickets TicketLister) *EventHandler {
	return &EventHandler{events: events, tickets: tickets}
}

// ListEvents - every event with its remaining capacity
func (h *EventHandler) ListEvents(e *core.RequestEvent) error {
	listings, err := h.events.ListEventListings(e.Request.Context())
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"events": listings})
}

// OwnerTickets - tickets held by one chat user
func (h *EventHandler) OwnerTickets(e *core.RequestEvent) error {
	ownerID := strings.TrimSpace(e.Request.PathValue("ownerId"))
	if ownerID == "" {
		return apis.NewBadRequestError("Owner id is required", nil)
	}

	tickets, err := h.tickets.ListTicketsForOwner(e.Request.Context(), ownerID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"tickets": tickets})
}
