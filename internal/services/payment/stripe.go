package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"partyflow/internal/status"
	"partyflow/models"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeGateway creates hosted Stripe Checkout sessions.
type StripeGateway struct {
	api *client.API
}

// NewStripeGateway returns a gateway using key. Passing nil backends uses
// the public Stripe API.
func NewStripeGateway(key string, backends *stripe.Backends) *StripeGateway {
	api := &client.API{}
	api.Init(key, backends)
	return &StripeGateway{api: api}
}

func (g *StripeGateway) Provider() Provider {
	return ProviderStripe
}

func (g *StripeGateway) CreateCheckout(ctx context.Context, in CheckoutInput) (*models.CheckoutSession, error) {
	currency := strings.ToLower(in.Currency)

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(in.SuccessURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(in.ItemName),
					},
					UnitAmount: stripe.Int64(toMinorUnits(in.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if in.CancelURL != "" {
		params.CancelURL = stripe.String(in.CancelURL)
	}
	if in.Description != "" {
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Description: stripe.String(in.Description),
		}
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout: %w", err)
	}
	return sessionFromStripe(s), nil
}

func (g *StripeGateway) GetCheckout(ctx context.Context, ref string) (*models.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := g.api.CheckoutSessions.Get(ref, params)
	if err != nil {
		if isResourceMissing(err) {
			return nil, fmt.Errorf("stripe get checkout %s: %w", ref, status.ErrCheckoutNotFound)
		}
		return nil, fmt.Errorf("stripe get checkout %s: %w", ref, err)
	}
	return sessionFromStripe(s), nil
}

func isResourceMissing(err error) bool {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == stripe.ErrorCodeResourceMissing || se.HTTPStatusCode == http.StatusNotFound
}

func sessionFromStripe(s *stripe.CheckoutSession) *models.CheckoutSession {
	return &models.CheckoutSession{
		Ref:      s.ID,
		URL:      s.URL,
		Status:   paymentStatus(s),
		Amount:   fromMinorUnits(s.AmountTotal),
		Currency: string(s.Currency),
		Metadata: s.Metadata,
	}
}

func paymentStatus(s *stripe.CheckoutSession) models.PaymentStatus {
	if s.Status == stripe.CheckoutSessionStatusExpired {
		return models.PaymentExpired
	}

	switch s.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid:
		return models.PaymentPaid
	case stripe.CheckoutSessionPaymentStatusUnpaid:
		return models.PaymentUnpaid
	case stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return models.PaymentNoneDue
	default:
		return models.PaymentUnknown
	}
}

// Stripe amounts are integers in the currency's minor unit.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func fromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}
