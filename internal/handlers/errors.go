package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"partyflow/internal/status"

	"github.com/pocketbase/pocketbase/apis"
)

// errorStatus maps a service error to an HTTP status and a message that is
// safe to show to the caller.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, status.ErrCapacityConflict):
		return http.StatusConflict, "The event sold out before your payment was confirmed. Our team will contact you about a refund."
	case errors.Is(err, status.ErrEventNotFound):
		return http.StatusNotFound, "Event not found."
	case errors.Is(err, status.ErrCheckoutNotFound):
		return http.StatusNotFound, "No payment was found for this reference."
	case errors.Is(err, status.ErrTicketNotFound):
		return http.StatusNotFound, "Ticket not found."
	case errors.Is(err, status.ErrSoldOut):
		return http.StatusBadRequest, "Sorry, this event is sold out."
	case errors.Is(err, status.ErrPaymentNotComplete):
		return http.StatusAccepted, "Your payment has not been completed yet."
	case errors.Is(err, status.ErrInvalidMetadata):
		return http.StatusBadRequest, "The payment is missing ticket details."
	case errors.Is(err, status.ErrValidation):
		return http.StatusBadRequest, "Invalid request."
	case errors.Is(err, status.ErrReminderRunning):
		return http.StatusConflict, "A reminder run is already in progress."
	case errors.Is(err, status.ErrExternalService), errors.Is(err, status.ErrCircuitOpen):
		return http.StatusBadGateway, "The payment provider is unavailable. Please try again later."
	default:
		return http.StatusInternalServerError, "Something went wrong."
	}
}

// apiError converts a service error into a PocketBase API error.
func apiError(err error) error {
	code, msg := errorStatus(err)
	switch code {
	case http.StatusBadRequest:
		return apis.NewBadRequestError(msg, err)
	case http.StatusNotFound:
		return apis.NewNotFoundError(msg, err)
	case http.StatusInternalServerError:
		slog.Error("Request failed", "error", err)
		return apis.NewInternalServerError(msg, err)
	default:
		return apis.NewApiError(code, msg, err)
	}
}
