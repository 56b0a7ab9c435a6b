package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"partyflow/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type AdminStore interface {
	CreateEvent(ctx context.Context, in models.EventInput) (*models.Event, error)
	SalesStats(ctx context.Context) (*models.SalesStats, error)
	ListOpenReconciliations(ctx context.Context) ([]models.Reconciliation, error)
}

type Notifier interface {
	Broadcast(ctx context.Context, eventID, text string) (models.DeliveryReport, error)
	SendDailyReminders(ctx context.Context) (*models.ReminderRun, error)
}

// AdminHandler serves the superuser-only routes. Authentication is enforced
// by the router middleware.
type AdminHandler struct {
	store    AdminStore
	notifier Notifier
}

func NewAdminHandler(store AdminStore, notifier Notifier) *AdminHandler {
	return &AdminHandler{store: store, notifier: notifier}
}

// CreateEvent - add a sellable event
func (h *AdminHandler) CreateEvent(e *core.RequestEvent) error {
	var in models.EventInput
	if err := e.BindBody(&in); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	event, err := h.store.CreateEvent(e.Request.Context(), in)
	if err != nil {
		return apiError(err)
	}

	slog.Info("Event created", "event_id", event.ID, "name", event.Name, "date", event.Date, "capacity", event.TotalCapacity)
	return e.JSON(http.StatusCreated, event)
}

// Stats - revenue and tickets sold
func (h *AdminHandler) Stats(e *core.RequestEvent) error {
	stats, err := h.store.SalesStats(e.Request.Context())
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, stats)
}

// Reconciliations - paid checkouts that are waiting for a refund or a seat
func (h *AdminHandler) Reconciliations(e *core.RequestEvent) error {
	items, err := h.store.ListOpenReconciliations(e.Request.Context())
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"reconciliations": items})
}

// Broadcast - message every ticket holder of an event
func (h *AdminHandler) Broadcast(e *core.RequestEvent) error {
	var req struct {
		EventID string `json:"event_id"`
		Message string `json:"message"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if strings.TrimSpace(req.EventID) == "" || strings.TrimSpace(req.Message) == "" {
		return apis.NewBadRequestError("event_id and message are required", nil)
	}

	report, err := h.notifier.Broadcast(e.Request.Context(), req.EventID, req.Message)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, report)
}

// RunReminders - run the daily reminder scan now
func (h *AdminHandler) RunReminders(e *core.RequestEvent) error {
	run, err := h.notifier.SendDailyReminders(e.Request.Context())
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, run)
}
