package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"partyflow/internal/services/payment"
	"partyflow/internal/status"
	"partyflow/models"
	"partyflow/monitoring"
)

// ConfirmationService turns a paid gateway checkout into a ticket.
type ConfirmationService struct {
	store     EventStore
	inventory *InventoryGuard
	gateway   payment.Gateway
	publisher TicketPublisher
}

func NewConfirmationService(store EventStore, inventory *InventoryGuard, gateway payment.Gateway, publisher TicketPublisher) *ConfirmationService {
	return &ConfirmationService{
		store:     store,
		inventory: inventory,
		gateway:   gateway,
		publisher: publisher,
	}
}

// Confirm is safe to call any number of times for one ref; only the first
// successful call creates a ticket and notifies the buyer.
func (s *ConfirmationService) Confirm(ctx context.Context, ref string) (*models.ConfirmResult, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: missing payment reference", status.ErrValidation)
	}

	existing, err := s.store.FindTicketByPaymentRef(ctx, ref)
	if err == nil {
		return s.result(ctx, existing, true), nil
	}
	if !errors.Is(err, status.ErrTicketNotFound) {
		return nil, err
	}

	session, err := s.gateway.GetCheckout(ctx, ref)
	if err != nil {
		return nil, err
	}
	if session.Status != models.PaymentPaid {
		return nil, fmt.Errorf("%w: checkout %s is %s", status.ErrPaymentNotComplete, ref, session.Status)
	}

	draft, err := draftFromMetadata(ref, session.Metadata)
	if err != nil {
		slog.Error("Paid checkout has unusable metadata", "ref", ref, "error", err)
		return nil, err
	}

	ticket, duplicate, err := s.inventory.Issue(ctx, draft)
	if err != nil {
		if errors.Is(err, status.ErrSoldOut) {
			return nil, s.flagCapacityConflict(ctx, session, draft)
		}
		return nil, err
	}

	result := s.result(ctx, ticket, duplicate)
	if !duplicate {
		slog.Info("Ticket issued", "ticket_id", ticket.ID, "event_id", ticket.EventID, "owner_id", ticket.OwnerID, "ref", ref)
		s.publishIssued(ctx, result)
	}
	return result, nil
}

// flagCapacityConflict records a payment that was captured for an event
// that sold out in the meantime. The buyer gets no ticket and the record
// waits for manual remediation.
func (s *ConfirmationService) flagCapacityConflict(ctx context.Context, session *models.CheckoutSession, draft models.TicketDraft) error {
	monitoring.TrackCapacityConflict()

	rec, err := s.store.RecordReconciliation(ctx, models.Reconciliation{
		PaymentRef: draft.PaymentRef,
		EventID:    draft.EventID,
		OwnerID:    draft.OwnerID,
		OwnerName:  draft.OwnerName,
		Contact:    draft.Contact,
		Amount:     strings.TrimSpace(session.Amount.StringFixed(2) + " " + session.Currency),
		Reason:     "payment captured after the event sold out",
	})
	if err != nil {
		slog.Error("Failed to record capacity conflict",
			"ref", draft.PaymentRef, "event_id", draft.EventID, "owner_id", draft.OwnerID, "error", err)
	} else {
		slog.Error("Paid checkout could not be honoured, manual reconciliation required",
			"reconciliation_id", rec.ID, "ref", draft.PaymentRef, "event_id", draft.EventID, "owner_id", draft.OwnerID)
	}

	return fmt.Errorf("%w: %w", status.ErrCapacityConflict, status.ErrSoldOut)
}

func (s *ConfirmationService) result(ctx context.Context, ticket *models.Ticket, duplicate bool) *models.ConfirmResult {
	result := &models.ConfirmResult{Ticket: ticket, Duplicate: duplicate}
	if event, err := s.store.GetEvent(ctx, ticket.EventID); err == nil {
		result.Event = event
	}
	return result
}

func (s *ConfirmationService) publishIssued(ctx context.Context, result *models.ConfirmResult) {
	if s.publisher == nil {
		return
	}

	evt := models.TicketIssued{
		TicketID:  result.Ticket.ID,
		EventID:   result.Ticket.EventID,
		OwnerID:   result.Ticket.OwnerID,
		OwnerName: result.Ticket.OwnerName,
	}
	if result.Event != nil {
		evt.EventName = result.Event.Name
		evt.EventDate = result.Event.Date
		evt.Location = result.Event.Location
	}

	// the ticket is already stored, a lost notification is only logged
	if err := s.publisher.PublishTicketIssued(context.WithoutCancel(ctx), evt); err != nil {
		slog.Error("Failed to publish ticket issued", "ticket_id", evt.TicketID, "error", err)
	}
}

func draftFromMetadata(ref string, md map[string]string) (models.TicketDraft, error) {
	d := models.TicketDraft{
		EventID:    md[models.MetaEventID],
		OwnerID:    md[models.MetaOwnerID],
		OwnerName:  md[models.MetaOwnerName],
		Contact:    md[models.MetaContact],
		PaymentRef: ref,
	}

	var missing []string
	if d.EventID == "" {
		missing = append(missing, models.MetaEventID)
	}
	if d.OwnerID == "" {
		missing = append(missing, models.MetaOwnerID)
	}
	if len(missing) > 0 {
		return d, fmt.Errorf("%w: missing %s", status.ErrInvalidMetadata, strings.Join(missing, ", "))
	}
	return d, nil
}
