package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"partyflow/internal/services"
	"partyflow/internal/status"
	"partyflow/models"
	"partyflow/utils"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type Confirmer interface {
	Confirm(ctx context.Context, ref string) (*models.ConfirmResult, error)
}

// PaymentMarker completes a sandbox checkout.
type PaymentMarker interface {
	MarkPaid(ref string) error
}

type PaymentHandler struct {
	checkout    services.CheckoutStarter
	confirmer   Confirmer
	phoneRegion string
}

func NewPaymentHandler(checkout services.CheckoutStarter, confirmer Confirmer, phoneRegion string) *PaymentHandler {
	return &PaymentHandler{
		checkout:    checkout,
		confirmer:   confirmer,
		phoneRegion: phoneRegion,
	}
}

// Checkout - start a hosted checkout for one ticket
func (h *PaymentHandler) Checkout(e *core.RequestEvent) error {
	var req models.CheckoutRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	req.EventID = strings.TrimSpace(req.EventID)
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	req.OwnerName = strings.TrimSpace(req.OwnerName)
	if req.EventID == "" || req.OwnerID == "" || req.OwnerName == "" {
		return apis.NewBadRequestError("event_id, user_id and user_name are required", nil)
	}

	phone, err := services.NormalizePhone(req.Contact, h.phoneRegion)
	if err != nil {
		return apis.NewBadRequestError("Invalid phone number", err)
	}
	req.Contact = phone

	checkoutURL, err := h.checkout.StartCheckout(e.Request.Context(), req)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]string{"checkout_url": checkoutURL})
}

// PaymentConfirmation - landing page the gateway redirects the buyer to
func (h *PaymentHandler) PaymentConfirmation(e *core.RequestEvent) error {
	ref := e.Request.URL.Query().Get("ref")

	result, err := h.confirmer.Confirm(e.Request.Context(), ref)
	if err != nil {
		code, msg := errorStatus(err)
		if code >= http.StatusInternalServerError {
			slog.Error("Payment confirmation failed", "ref", ref, "error", err)
		}
		return renderPage(e, code, problemView, problemPage{
			Title:   problemTitle(code, err),
			Message: msg,
			Pending: code == http.StatusAccepted,
			Ref:     ref,
		})
	}

	page := confirmationPage{
		Code:      utils.TicketCode(result.Ticket.ID),
		OwnerName: result.Ticket.OwnerName,
		Duplicate: result.Duplicate,
	}
	if result.Event != nil {
		page.EventName = result.Event.Name
		page.EventDate = result.Event.Date
		page.Location = result.Event.Location
	}
	return renderPage(e, http.StatusOK, confirmationView, page)
}

// DevCheckout - pays a sandbox checkout and sends the buyer on to the
// confirmation page, standing in for the hosted payment page
func DevCheckout(marker PaymentMarker) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		ref := e.Request.URL.Query().Get("ref")
		if ref == "" {
			return apis.NewBadRequestError("Missing ref", nil)
		}
		if err := marker.MarkPaid(ref); err != nil {
			return apis.NewNotFoundError("Checkout not found", err)
		}
		return e.Redirect(http.StatusSeeOther, fmt.Sprintf("/payment_confirmation?ref=%s", url.QueryEscape(ref)))
	}
}

func problemTitle(code int, err error) string {
	if errors.Is(err, status.ErrCheckoutNotFound) {
		return "Payment not found"
	}
	switch code {
	case http.StatusAccepted:
		return "Payment pending"
	case http.StatusConflict:
		return "Event sold out"
	case http.StatusNotFound:
		return "Event not found"
	default:
		return "Payment not confirmed"
	}
}
