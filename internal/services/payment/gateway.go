package payment

import (
	"context"
	"fmt"
	"time"

	"partyflow/models"

	"github.com/shopspring/decimal"
)

// Provider names a payment gateway implementation.
type Provider string

const (
	ProviderStripe  Provider = "stripe"
	ProviderSandbox Provider = "sandbox"
)

// CheckoutInput describes one hosted checkout with a single line item.
type CheckoutInput struct {
	ItemName    string
	Amount      decimal.Decimal
	Currency    string
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
	Description string
}

// Gateway is the external payment service. Metadata passed to
// CreateCheckout must come back unchanged from GetCheckout.
type Gateway interface {
	Provider() Provider
	CreateCheckout(ctx context.Context, in CheckoutInput) (*models.CheckoutSession, error)
	GetCheckout(ctx context.Context, ref string) (*models.CheckoutSession, error)
}

type Config struct {
	Provider        Provider
	StripeSecretKey string
	AppURL          string

	Timeout             time.Duration
	CircuitMaxRequests  uint32
	CircuitFailureRatio float64
	CircuitTimeout      time.Duration
}

// NewGateway builds the configured provider wrapped with a timeout and a
// circuit breaker.
func NewGateway(cfg Config) (Gateway, error) {
	var gw Gateway

	switch cfg.Provider {
	case ProviderStripe:
		if cfg.StripeSecretKey == "" {
			return nil, fmt.Errorf("stripe gateway requires a secret key")
		}
		gw = NewStripeGateway(cfg.StripeSecretKey, nil)

	case ProviderSandbox:
		gw = NewSandboxGateway(cfg.AppURL)

	default:
		return nil, fmt.Errorf("unsupported payment provider: %s", cfg.Provider)
	}

	return NewGuardedGateway(gw, GuardSettings{
		Timeout:      cfg.Timeout,
		MaxRequests:  cfg.CircuitMaxRequests,
		FailureRatio: cfg.CircuitFailureRatio,
		OpenTimeout:  cfg.CircuitTimeout,
	}), nil
}
