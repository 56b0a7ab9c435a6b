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

// CheckoutService creates gateway checkouts. It keeps no record of them;
// the buyer data travels as checkout metadata.
type CheckoutService struct {
	inventory *InventoryGuard
	gateway   payment.Gateway
	appURL    string
	currency  string
}

func NewCheckoutService(inventory *InventoryGuard, gateway payment.Gateway, appURL, currency string) *CheckoutService {
	return &CheckoutService{
		inventory: inventory,
		gateway:   gateway,
		appURL:    strings.TrimRight(appURL, "/"),
		currency:  currency,
	}
}

func (s *CheckoutService) StartCheckout(ctx context.Context, req models.CheckoutRequest) (string, error) {
	if req.EventID == "" || req.OwnerID == "" {
		monitoring.TrackCheckout("invalid")
		return "", fmt.Errorf("%w: event and owner are required", status.ErrValidation)
	}

	event, err := s.inventory.Authorize(ctx, req.EventID)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrSoldOut):
			monitoring.TrackCheckout("sold_out")
		case errors.Is(err, status.ErrEventNotFound):
			monitoring.TrackCheckout("not_found")
		default:
			monitoring.TrackCheckout("error")
		}
		return "", err
	}

	session, err := s.gateway.CreateCheckout(ctx, payment.CheckoutInput{
		ItemName:    fmt.Sprintf("Ticket: %s", event.Name),
		Amount:      event.Price,
		Currency:    s.currency,
		SuccessURL:  s.appURL + "/payment_confirmation?ref={CHECKOUT_SESSION_ID}",
		CancelURL:   s.appURL + "/events",
		Metadata:    req.Metadata(),
		Description: fmt.Sprintf("%s, %s, %s", event.Name, event.Date, event.Location),
	})
	if err != nil {
		monitoring.TrackCheckout("gateway_error")
		slog.Error("Failed to create checkout", "event_id", req.EventID, "owner_id", req.OwnerID, "error", err)
		return "", err
	}

	monitoring.TrackCheckout("created")
	slog.Info("Checkout created", "event_id", req.EventID, "owner_id", req.OwnerID, "ref", session.Ref)
	return session.URL, nil
}
