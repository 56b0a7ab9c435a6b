package cmd

import (
	"partyflow/internal/handlers"
	"partyflow/internal/services/payment"
	"partyflow/security"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (a *app) registerRoutes(e *core.ServeEvent) {
	limiter := security.NewRateLimiter(a.redis, a.cfg.RateLimitPerMinute)

	eventHandler := handlers.NewEventHandler(a.inventory, a.store)
	paymentHandler := handlers.NewPaymentHandler(a.checkout, a.confirmation, a.cfg.PhoneRegion)
	adminHandler := handlers.NewAdminHandler(a.store, a.notifications)

	// Buyer endpoints
	e.Router.GET("/events", eventHandler.ListEvents).Bind(limiter.Middleware())
	e.Router.GET("/tickets/{ownerId}", eventHandler.OwnerTickets).Bind(limiter.Middleware())
	e.Router.POST("/checkout", paymentHandler.Checkout).Bind(limiter.Middleware(), limiter.AntiBot())
	e.Router.GET("/payment_confirmation", paymentHandler.PaymentConfirmation).Bind(limiter.Middleware())

	// Admin endpoints
	e.Router.POST("/broadcast", adminHandler.Broadcast).Bind(apis.RequireSuperuserAuth())

	admin := e.Router.Group("/admin")
	admin.Bind(apis.RequireSuperuserAuth())
	admin.POST("/events", adminHandler.CreateEvent)
	admin.GET("/stats", adminHandler.Stats)
	admin.GET("/reconciliations", adminHandler.Reconciliations)
	admin.POST("/reminders/run", adminHandler.RunReminders)

	// Hosted payment page stand-in for the sandbox gateway
	if sandbox := sandboxGateway(a.gateway); sandbox != nil && a.cfg.IsDevelopment() {
		e.Router.GET("/dev/checkout", handlers.DevCheckout(sandbox))
	}

	e.Router.GET("/health", handlers.Health(a.redis))
	if a.cfg.EnableMetrics {
		e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
	}
}

func sandboxGateway(gw payment.Gateway) *payment.SandboxGateway {
	for gw != nil {
		if sandbox, ok := gw.(*payment.SandboxGateway); ok {
			return sandbox
		}
		wrapped, ok := gw.(interface{ Unwrap() payment.Gateway })
		if !ok {
			return nil
		}
		gw = wrapped.Unwrap()
	}
	return nil
}
